// Command replay re-runs a recorded match journal against a fresh battle
// state and reports whether every action still validates. The first
// SYNC_STATE entry bootstraps the state; digests recorded from live play
// are compared as drift (the live peers' clocks free-run), -strict turns
// drift into a failure.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"neontactics.gg/internal/persistence/journal"
	"neontactics.gg/internal/persistence/snapshot"
	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/game"
	"neontactics.gg/internal/sim/tuning"
)

type snapshotRef struct {
	SnapshotPath string `json:"snapshotPath"`
	Tick         uint64 `json:"tick"`
}

func main() {
	var (
		journalPath = flag.String("journal", "", "path to <room>.jsonl.zst")
		configDir   = flag.String("configs", "./configs", "config directory")
		strict      = flag.Bool("strict", false, "fail on digest drift, not only on rejected actions")
		verbose     = flag.Bool("v", false, "print every replayed action")
	)
	flag.Parse()

	if *journalPath == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tun, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err, "(using defaults)")
		tun = tuning.Default()
	}

	r, err := journal.Open(*journalPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer r.Close()

	hdr := r.Header()
	fmt.Printf("journal room=%s map=%s players=%v proto=%s started=%s\n",
		hdr.RoomID, hdr.MapID, hdr.Players, hdr.ProtocolVersion, hdr.StartedAt.Format("2006-01-02 15:04:05"))

	var (
		st       *game.State
		applied  int
		rejected int
		drift    int
		resyncs  int
	)
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "read journal:", err)
			os.Exit(1)
		}

		if e.Action == protocol.ActionSyncState {
			st, err = restoreRef(e.Data, tun, cats)
			if err != nil {
				fmt.Fprintf(os.Stderr, "seq %d: %v\n", e.Seq, err)
				os.Exit(1)
			}
			resyncs++
			if *verbose {
				fmt.Printf("seq %4d  SYNC_STATE -> tick %d\n", e.Seq, st.Tick())
			}
			continue
		}
		if st == nil {
			fmt.Fprintf(os.Stderr, "seq %d: %s before any snapshot\n", e.Seq, e.Action)
			os.Exit(1)
		}

		if e.Digest != "" && e.Digest != st.Digest() {
			drift++
		}

		in, err := game.DecodeIntent(protocol.GameActionMsg{
			Type:     protocol.TypeGameAction,
			PlayerID: e.PlayerID,
			Action:   e.Action,
			Data:     e.Data,
		}, game.SourceRemote)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seq %d: decode %s: %v\n", e.Seq, e.Action, err)
			os.Exit(1)
		}
		res := st.Apply(in)
		if res.OK {
			applied++
		} else {
			rejected++
			fmt.Fprintf(os.Stderr, "seq %4d  %s by %s REJECTED: %s %s\n",
				e.Seq, e.Action, e.PlayerID, res.Code, res.Message)
		}
		if *verbose && res.OK {
			fmt.Printf("seq %4d  %s by %s ok\n", e.Seq, e.Action, e.PlayerID)
		}
	}

	if st == nil {
		fmt.Fprintln(os.Stderr, "journal holds no snapshot; nothing to replay")
		os.Exit(1)
	}

	fmt.Printf("replay done: applied=%d rejected=%d drift=%d resyncs=%d round=%d turn=%s",
		applied, rejected, drift, resyncs, st.Round(), st.CurrentTurn())
	if st.Over() {
		fmt.Printf(" winner=%s", st.Winner())
	}
	fmt.Println()

	if rejected > 0 || (*strict && drift > 0) {
		os.Exit(1)
	}
}

func restoreRef(data []byte, tun tuning.Tuning, cats *catalogs.Catalogs) (*game.State, error) {
	var ref snapshotRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("snapshot ref: %w", err)
	}
	raw, err := os.ReadFile(ref.SnapshotPath)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	st, err := game.Restore(snap, tun, cats)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return st, nil
}
