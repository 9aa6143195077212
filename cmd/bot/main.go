// Command bot is a headless peer used to smoke-test a relay: it opens or
// joins a lobby, runs a full replication session, and skips every one of
// its turns until the match ends or the connection drops. Two bots pointed
// at the same relay exercise the whole lobby/forward/resync path without a
// UI in the loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/replication"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/game"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/tuning"
	"neontactics.gg/internal/transport/peer"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8090/v1/ws", "relay websocket url")
		room      = flag.String("room", "", "room to join; empty opens a new lobby")
		mapID     = flag.String("map", "skirmish", "map id when opening a lobby")
		mapsDir   = flag.String("maps", "./maps", "map directory (host side)")
		configDir = flag.String("configs", "./configs", "config directory")
		schema    = flag.String("map_schema", "", "map schema path, empty skips validation")
		seed      = flag.Int64("seed", 0, "battle seed when hosting, 0 draws from the clock")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tun, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		logger.Printf("load tuning: %v (using defaults)", err)
		tun = tuning.Default()
	}

	conn, err := peer.Dial(ctx, *url)
	if err != nil {
		logger.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	var sess *replication.Session
	if *room == "" {
		sess, err = host(ctx, logger, conn, *mapID, *mapsDir, *schema, *seed, tun, cats)
	} else {
		sess, err = join(ctx, logger, conn, *room, tun, cats)
	}
	if err != nil {
		logger.Fatalf("session setup: %v", err)
	}
	logger.Printf("playing as %s", sess.LocalID())

	go autoplay(ctx, logger, sess)

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("session: %v", err)
	}
}

func host(ctx context.Context, logger *log.Logger, conn *peer.Conn, mapID, mapsDir, schema string,
	seed int64, tun tuning.Tuning, cats *catalogs.Catalogs) (*replication.Session, error) {

	var codec *mapfile.Codec
	if schema != "" {
		c, err := mapfile.NewCodec(schema)
		if err != nil {
			return nil, err
		}
		codec = c
	}
	m, err := codec.Load(filepath.Join(mapsDir, mapID+".json"))
	if err != nil {
		return nil, fmt.Errorf("load map %s: %w", mapID, err)
	}

	if err := conn.CreateLobby(mapID); err != nil {
		return nil, err
	}
	created, err := await(ctx, conn, protocol.TypeLobbyCreated)
	if err != nil {
		return nil, err
	}
	logger.Printf("lobby %s open on map %s, waiting for an opponent", created.LobbyCreated.RoomID, mapID)

	start, err := await(ctx, conn, protocol.TypeGameStart)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return replication.NewHost(conn, logger, *start.GameStart, seed, tun, cats, m)
}

func join(ctx context.Context, logger *log.Logger, conn *peer.Conn, room string,
	tun tuning.Tuning, cats *catalogs.Catalogs) (*replication.Session, error) {

	if err := conn.JoinLobby(room); err != nil {
		return nil, err
	}
	start, err := await(ctx, conn, protocol.TypeGameStart)
	if err != nil {
		return nil, err
	}
	logger.Printf("joined room %s", start.GameStart.RoomID)

	// The host's first frame after game_start is the bootstrap snapshot.
	boot, err := await(ctx, conn, protocol.TypeGameAction)
	if err != nil {
		return nil, err
	}
	if boot.GameAction.Action != protocol.ActionSyncState {
		return nil, fmt.Errorf("first action from host is %s, want %s", boot.GameAction.Action, protocol.ActionSyncState)
	}
	return replication.NewGuest(conn, logger, *start.GameStart, boot.GameAction.Data, tun, cats)
}

// await reads frames until one of the wanted type arrives. Relay errors
// before the session starts are fatal.
func await(ctx context.Context, conn *peer.Conn, want string) (peer.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return peer.Message{}, ctx.Err()
		case msg, ok := <-conn.Recv():
			if !ok {
				if err := conn.Err(); err != nil {
					return peer.Message{}, err
				}
				return peer.Message{}, fmt.Errorf("connection closed")
			}
			if msg.Type == protocol.TypeErrorMessage {
				return peer.Message{}, fmt.Errorf("relay error %s: %s", msg.Error.Code, msg.Error.Message)
			}
			if msg.Type == want {
				return msg, nil
			}
		}
	}
}

// autoplay skips the bot's turns at a slow human-ish cadence.
func autoplay(ctx context.Context, logger *log.Logger, sess *replication.Session) {
	ticker := time.NewTicker(750 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var (
			turn   string
			over   bool
			winner string
		)
		sess.Engine().Do(func(st *game.State) {
			turn, over, winner = st.CurrentTurn(), st.Over(), st.Winner()
		})
		if over {
			logger.Printf("match over, winner=%s", winner)
			return
		}
		if turn != sess.LocalID() {
			continue
		}
		if res := sess.Submit(game.Intent{Action: protocol.ActionSkipTurn}); !res.OK {
			logger.Printf("skip rejected: %s %s", res.Code, res.Message)
		}
	}
}
