// Package replication keeps two battle replicas in lockstep over a relay
// connection. The host owns the authoritative start state and pushes full
// snapshots (game_start bootstrap and resync); afterwards both sides apply
// their own intents optimistically, forward them, and re-validate
// everything the peer sends. A remote intent that fails validation is a
// trust breach, not a soft error: it is reported and answered with a
// resync rather than silently skipped.
package replication

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	"neontactics.gg/internal/persistence/snapshot"
	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/game"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/tuning"
	"neontactics.gg/internal/transport/peer"
)

// Wire is the subset of the peer connection a session drives. *peer.Conn
// satisfies it; tests substitute a loopback.
type Wire interface {
	Recv() <-chan peer.Message
	SendAction(protocol.GameActionMsg) error
	SendError(code, message string) error
}

type Session struct {
	log  *log.Logger
	wire Wire
	eng  *game.Engine

	roomID   string
	localID  string
	remoteID string
	isHost   bool

	tun  tuning.Tuning
	cats *catalogs.Catalogs
}

// NewHost builds the authoritative start state and its session. Start must
// be called before intents flow; it pushes the bootstrap snapshot.
func NewHost(wire Wire, logger *log.Logger, start protocol.GameStartMsg, seed int64,
	tun tuning.Tuning, cats *catalogs.Catalogs, m *mapfile.Map) (*Session, error) {

	st, err := game.NewState(game.Config{
		Seed:    seed,
		Players: start.Players,
		Tuning:  tun,
		Cats:    cats,
		Map:     m.ForPlayers(start.Players[0], start.Players[1]),
	})
	if err != nil {
		return nil, fmt.Errorf("host state: %w", err)
	}
	s := newSession(wire, logger, start, st.Players()[0], tun, cats)
	s.isHost = true
	s.eng = game.NewEngine(st, logger)
	return s, nil
}

// NewGuest waits on nothing: the caller hands it the SYNC_STATE payload
// received after game_start.
func NewGuest(wire Wire, logger *log.Logger, start protocol.GameStartMsg, syncData []byte,
	tun tuning.Tuning, cats *catalogs.Catalogs) (*Session, error) {

	st, err := restoreFromSync(syncData, tun, cats)
	if err != nil {
		return nil, err
	}
	s := newSession(wire, logger, start, start.Players[1], tun, cats)
	s.eng = game.NewEngine(st, logger)
	return s, nil
}

func newSession(wire Wire, logger *log.Logger, start protocol.GameStartMsg, localID string,
	tun tuning.Tuning, cats *catalogs.Catalogs) *Session {
	if logger == nil {
		logger = log.Default()
	}
	remote := start.Players[0]
	if remote == localID {
		remote = start.Players[1]
	}
	return &Session{
		log:      logger,
		wire:     wire,
		roomID:   start.RoomID,
		localID:  localID,
		remoteID: remote,
		tun:      tun,
		cats:     cats,
	}
}

func (s *Session) Engine() *game.Engine { return s.eng }
func (s *Session) LocalID() string      { return s.localID }

// Run drives the engine loop and the inbound message stream until the
// context ends or the connection dies.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() { engineDone <- s.eng.Run(ctx) }()
	defer s.eng.Stop()

	if s.isHost {
		if err := s.PushSync(); err != nil {
			return fmt.Errorf("bootstrap sync: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-engineDone:
			return err
		case msg, okRecv := <-s.wire.Recv():
			if !okRecv {
				return fmt.Errorf("connection closed")
			}
			if err := s.handle(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(msg peer.Message) error {
	switch msg.Type {
	case protocol.TypeGameAction:
		return s.handleAction(*msg.GameAction)
	case protocol.TypeErrorMessage:
		e := msg.Error
		s.log.Printf("peer error %s: %s", e.Code, e.Message)
		// The peer declared itself out of sync; the host answers with a
		// fresh snapshot, the guest waits for one.
		if s.isHost && (e.Code == protocol.ErrStale || e.Code == protocol.ErrTrust) {
			return s.PushSync()
		}
		if !s.isHost && e.Code == protocol.ErrRoomNotFound {
			return fmt.Errorf("room closed: %s", e.Message)
		}
		return nil
	default:
		s.log.Printf("ignoring %s frame mid-battle", msg.Type)
		return nil
	}
}

func (s *Session) handleAction(msg protocol.GameActionMsg) error {
	if msg.PlayerID != s.remoteID {
		s.log.Printf("action from unexpected player %s", msg.PlayerID)
		return s.wire.SendError(protocol.ErrTrust, "action from unknown player")
	}

	if msg.Action == protocol.ActionSyncState {
		return s.applySync(msg)
	}

	in, err := game.DecodeIntent(msg, game.SourceRemote)
	if err != nil {
		s.log.Printf("undecodable %s from peer: %v", msg.Action, err)
		return s.wire.SendError(protocol.ErrProtoBadRequest, err.Error())
	}

	// The sender stamps its pre-intent digest. The tick clocks of the two
	// peers free-run, so a mismatch here is advisory; the hard divergence
	// signal is a remote intent failing validation below.
	if msg.Digest != "" {
		var local string
		s.eng.Do(func(st *game.State) { local = st.Digest() })
		if local != msg.Digest {
			s.log.Printf("digest drift before %s (local %.8s, peer %.8s)", msg.Action, local, msg.Digest)
		}
	}

	applied := s.eng.Apply(in)
	if !applied.Result.OK {
		s.log.Printf("rejected remote %s from %s: %s %s",
			msg.Action, msg.PlayerID, applied.Result.Code, applied.Result.Message)
		if err := s.wire.SendError(protocol.ErrTrust,
			fmt.Sprintf("remote %s rejected: %s", msg.Action, applied.Result.Code)); err != nil {
			return err
		}
		return s.resyncAfterDivergence()
	}
	return nil
}

func (s *Session) resyncAfterDivergence() error {
	if s.isHost {
		return s.PushSync()
	}
	// The guest cannot repair itself; it flags staleness and the host
	// pushes.
	return s.wire.SendError(protocol.ErrStale, "replica out of sync, requesting snapshot")
}

// Submit applies a local intent and forwards it on success. The pre-intent
// digest is captured atomically with the application so the peer's check is
// meaningful.
func (s *Session) Submit(in game.Intent) game.Result {
	in.Player = s.localID
	in.Source = game.SourceLocal

	var (
		pre string
		res game.Result
	)
	s.eng.Do(func(st *game.State) {
		pre = st.Digest()
		res = st.Apply(in)
	})
	if !res.OK {
		return res
	}
	if err := s.forward(in, pre); err != nil {
		s.log.Printf("forward %s: %v", in.Action, err)
	}
	return res
}

// Click resolves a board click locally and forwards whatever intents it
// committed, so click semantics and replay semantics stay one and the same.
func (s *Session) Click(pos grid.Pos) (game.Result, error) {
	var (
		res       game.Result
		committed []game.Intent
		pre       string
	)
	s.eng.Do(func(st *game.State) {
		pre = st.Digest()
		res, committed = st.ClickTile(s.localID, pos)
	})
	for i, in := range committed {
		digest := ""
		if i == 0 {
			digest = pre
		}
		if err := s.forward(in, digest); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Session) forward(in game.Intent, digest string) error {
	msg, err := protocol.EncodeAction(s.roomID, s.localID, in.Action, in.Payload(), digest)
	if err != nil {
		return err
	}
	return s.wire.SendAction(msg)
}

// PushSync exports a snapshot and sends it as a SYNC_STATE action. Host
// only; a guest never originates authority. The export realigns the host's
// own draw stream with the one the restoring guest derives, so shared
// draws stay in lockstep after the sync.
func (s *Session) PushSync() error {
	if !s.isHost {
		return fmt.Errorf("guest cannot push snapshots")
	}
	var snap snapshot.GameV1
	s.eng.Do(func(st *game.State) { snap = st.ExportForSync(s.roomID) })
	raw, err := snapshot.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	msg, err := protocol.EncodeAction(s.roomID, s.localID, protocol.ActionSyncState,
		protocol.SyncStateData{Snapshot: base64.StdEncoding.EncodeToString(raw)}, "")
	if err != nil {
		return err
	}
	return s.wire.SendAction(msg)
}

func (s *Session) applySync(msg protocol.GameActionMsg) error {
	if s.isHost {
		s.log.Printf("ignoring SYNC_STATE from guest")
		return s.wire.SendError(protocol.ErrTrust, "guest pushed a snapshot")
	}
	st, err := restoreFromSync(msg.Data, s.tun, s.cats)
	if err != nil {
		s.log.Printf("bad snapshot from host: %v", err)
		return s.wire.SendError(protocol.ErrProtoBadRequest, err.Error())
	}
	s.eng.Replace(st)
	s.log.Printf("resynced to tick %d", st.Tick())
	return nil
}

func restoreFromSync(data []byte, tun tuning.Tuning, cats *catalogs.Catalogs) (*game.State, error) {
	var payload protocol.SyncStateData
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("sync payload: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(payload.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("sync payload: %w", err)
	}
	snap, err := snapshot.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("sync snapshot: %w", err)
	}
	st, err := game.Restore(snap, tun, cats)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return st, nil
}
