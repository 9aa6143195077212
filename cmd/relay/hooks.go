package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"neontactics.gg/internal/persistence/indexdb"
	"neontactics.gg/internal/persistence/journal"
	"neontactics.gg/internal/persistence/snapshot"
	"neontactics.gg/internal/protocol"
)

// snapshotRef replaces the inline SYNC_STATE payload in journal entries;
// the snapshot bytes live in their own file next to the journal.
type snapshotRef struct {
	SnapshotPath string `json:"snapshotPath"`
	Tick         uint64 `json:"tick"`
}

// matchHooks journals forwarded actions per room and keeps the match index
// current. Snapshot payloads are unpacked to standalone files so a journal
// plus its snapshots fully replays a match.
type matchHooks struct {
	log *log.Logger
	idx *indexdb.SQLiteIndex

	journalDir  string
	snapshotDir string

	mu      sync.Mutex
	writers map[string]*journal.Writer
}

func newMatchHooks(logger *log.Logger, idx *indexdb.SQLiteIndex, dataDir string) *matchHooks {
	return &matchHooks{
		log:         logger,
		idx:         idx,
		journalDir:  filepath.Join(dataDir, "journals"),
		snapshotDir: filepath.Join(dataDir, "snapshots"),
		writers:     map[string]*journal.Writer{},
	}
}

func (h *matchHooks) MatchStarted(roomID, mapID string, players [2]string) {
	w, err := journal.Create(h.journalDir, journal.Header{
		RoomID:          roomID,
		ProtocolVersion: protocol.Version,
		MapID:           mapID,
		Players:         players[:],
	})
	if err != nil {
		h.log.Printf("journal for %s: %v", roomID, err)
		return
	}
	h.mu.Lock()
	h.writers[roomID] = w
	h.mu.Unlock()

	if err := h.idx.RecordMatchStart(indexdb.MatchStart{
		ID:              roomID,
		MapID:           mapID,
		Players:         players,
		ProtocolVersion: protocol.Version,
		JournalPath:     w.PathName(),
		StartedAt:       time.Now().UTC(),
	}); err != nil {
		h.log.Printf("index match %s: %v", roomID, err)
	}
}

func (h *matchHooks) ActionForwarded(roomID string, msg protocol.GameActionMsg) {
	h.mu.Lock()
	w := h.writers[roomID]
	h.mu.Unlock()
	if w == nil {
		return
	}

	data := msg.Data
	if msg.Action == protocol.ActionSyncState {
		ref, err := h.storeSnapshot(roomID, msg.Data)
		if err != nil {
			h.log.Printf("snapshot for %s: %v", roomID, err)
			return
		}
		data, _ = json.Marshal(ref)
	}

	e := journal.Entry{
		PlayerID: msg.PlayerID,
		Action:   msg.Action,
		Data:     data,
		Digest:   msg.Digest,
	}
	if err := w.Append(e); err != nil {
		h.log.Printf("journal append %s: %v", roomID, err)
		return
	}
	h.idx.IndexAction(roomID, e)
}

// storeSnapshot writes the decoded snapshot bytes to disk and returns the
// journal reference. The file keeps the wire encoding, so replay reads it
// with the normal snapshot codec.
func (h *matchHooks) storeSnapshot(roomID string, payload []byte) (snapshotRef, error) {
	var syncMsg protocol.SyncStateData
	if err := json.Unmarshal(payload, &syncMsg); err != nil {
		return snapshotRef{}, fmt.Errorf("sync payload: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(syncMsg.Snapshot)
	if err != nil {
		return snapshotRef{}, fmt.Errorf("sync payload: %w", err)
	}
	snap, err := snapshot.Decode(raw)
	if err != nil {
		return snapshotRef{}, fmt.Errorf("sync snapshot: %w", err)
	}
	if err := os.MkdirAll(h.snapshotDir, 0o755); err != nil {
		return snapshotRef{}, err
	}
	path := filepath.Join(h.snapshotDir, fmt.Sprintf("%s-%d.snap.zst", roomID, snap.Header.Tick))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return snapshotRef{}, err
	}
	return snapshotRef{SnapshotPath: path, Tick: snap.Header.Tick}, nil
}

func (h *matchHooks) MatchEnded(roomID string) {
	h.mu.Lock()
	w := h.writers[roomID]
	delete(h.writers, roomID)
	h.mu.Unlock()
	if w != nil {
		if err := w.Close(); err != nil {
			h.log.Printf("journal close %s: %v", roomID, err)
		}
	}
	// The relay never learns the winner; the row records that the room
	// closed. The replay tool derives outcomes from the journal.
	if err := h.idx.RecordMatchEnd(roomID, "", 0, ""); err != nil {
		h.log.Printf("index match end %s: %v", roomID, err)
	}
}

func (h *matchHooks) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, w := range h.writers {
		_ = w.Close()
		delete(h.writers, id)
	}
}
