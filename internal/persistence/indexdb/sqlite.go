// Package indexdb keeps a queryable sqlite index next to the journals: the
// map library the relay serves and a row per match with its outcome. The
// journal files remain the source of truth; losing the index loses nothing
// that cannot be rebuilt.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"neontactics.gg/internal/persistence/journal"
	"neontactics.gg/internal/sim/mapfile"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan actionRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type actionRow struct {
	MatchID string
	Entry   journal.Entry
}

// MatchStart is the row written when a room goes live.
type MatchStart struct {
	ID              string
	MapID           string
	Players         [2]string
	Seed            int64
	ProtocolVersion string
	JournalPath     string
	StartedAt       time.Time
}

type MatchRow struct {
	ID           string
	MapID        string
	Players      [2]string
	Seed         int64
	Winner       string
	Rounds       int
	StartedAt    time.Time
	FinishedAt   time.Time
	SnapshotPath string
	JournalPath  string
}

type MapRow struct {
	ID        string
	Name      string
	Path      string
	Width     int
	Height    int
	Digest    string
	UpdatedAt time.Time
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Buffered so a burst of forwarded actions never stalls the room.
		ch: make(chan actionRow, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS maps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			map_id TEXT NOT NULL,
			player_a TEXT NOT NULL,
			player_b TEXT NOT NULL,
			seed INTEGER NOT NULL,
			protocol_version TEXT NOT NULL,
			winner TEXT NOT NULL DEFAULT '',
			rounds INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			snapshot_path TEXT NOT NULL DEFAULT '',
			journal_path TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_started ON matches(started_at);`,
		`CREATE TABLE IF NOT EXISTS actions (
			match_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			action TEXT NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (match_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_player ON actions(match_id, player_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordMatchStart writes the match row synchronously; a relay that cannot
// index a match should find out before the first action flows.
func (s *SQLiteIndex) RecordMatchStart(m MatchStart) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO matches(id,map_id,player_a,player_b,seed,protocol_version,started_at,journal_path)
		 VALUES(?,?,?,?,?,?,?,?)`,
		m.ID, m.MapID, m.Players[0], m.Players[1], m.Seed, m.ProtocolVersion,
		m.StartedAt.UTC().Format(time.RFC3339Nano), m.JournalPath,
	)
	return err
}

func (s *SQLiteIndex) RecordMatchEnd(id, winner string, rounds int, snapshotPath string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE matches SET winner=?, rounds=?, finished_at=?, snapshot_path=? WHERE id=?`,
		winner, rounds, time.Now().UTC().Format(time.RFC3339Nano), snapshotPath, id,
	)
	return err
}

// IndexAction queues one journal entry for the writer goroutine. Entries
// are dropped if the indexer falls behind; the journal remains the source
// of truth.
func (s *SQLiteIndex) IndexAction(matchID string, e journal.Entry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- actionRow{MatchID: matchID, Entry: e}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insert, err := s.db.Prepare(`INSERT OR REPLACE INTO actions(match_id,seq,tick,player_id,action,digest) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
		}
		return
	}
	defer insert.Close()

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 512
		commitWait  = 2 * time.Second
	)
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			tx = txx
		}
		e := r.Entry
		if _, err := tx.Stmt(insert).Exec(r.MatchID, int64(e.Seq), int64(e.Tick), e.PlayerID, e.Action, e.Digest); err != nil {
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitWait {
			commit()
		}
	}
	commit()
}

// UpsertMaps scans dir for map documents, validates each through the codec
// and refreshes the map library table. Invalid documents are reported, not
// indexed.
func (s *SQLiteIndex) UpsertMaps(dir string, codec *mapfile.Codec) (int, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, []error{err}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var (
		count int
		errs  []error
	)
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m, err := codec.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ent.Name(), err))
			continue
		}
		id := strings.TrimSuffix(ent.Name(), ".json")
		sum := sha256.Sum256(raw)
		b := m.Terrain.Bounds()
		_, err = s.db.Exec(
			`INSERT OR REPLACE INTO maps(id,name,path,width,height,digest,updated_at) VALUES(?,?,?,?,?,?,?)`,
			id, id, path, b.Width, b.Height, hex.EncodeToString(sum[:]), now,
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ent.Name(), err))
			continue
		}
		count++
	}
	return count, errs
}

func (s *SQLiteIndex) Maps() ([]MapRow, error) {
	rows, err := s.db.Query(`SELECT id,name,path,width,height,digest,updated_at FROM maps ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MapRow
	for rows.Next() {
		var (
			r  MapRow
			ts string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.Width, &r.Height, &r.Digest, &ts); err != nil {
			return nil, err
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) MapByID(id string) (MapRow, error) {
	var (
		r  MapRow
		ts string
	)
	err := s.db.QueryRow(`SELECT id,name,path,width,height,digest,updated_at FROM maps WHERE id=?`, id).
		Scan(&r.ID, &r.Name, &r.Path, &r.Width, &r.Height, &r.Digest, &ts)
	if err != nil {
		return MapRow{}, err
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return r, nil
}

func (s *SQLiteIndex) Match(id string) (MatchRow, error) {
	row := s.db.QueryRow(
		`SELECT id,map_id,player_a,player_b,seed,winner,rounds,started_at,finished_at,snapshot_path,journal_path
		 FROM matches WHERE id=?`, id)
	return scanMatch(row)
}

// RecentMatches returns up to limit matches, newest first.
func (s *SQLiteIndex) RecentMatches(limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id,map_id,player_a,player_b,seed,winner,rounds,started_at,finished_at,snapshot_path,journal_path
		 FROM matches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatchRow
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActionCount reports how many indexed actions a match has.
func (s *SQLiteIndex) ActionCount(matchID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM actions WHERE match_id=?`, matchID).Scan(&n)
	return n, err
}

type scanner interface{ Scan(dest ...any) error }

func scanMatch(r scanner) (MatchRow, error) {
	var (
		m                 MatchRow
		started, finished string
	)
	err := r.Scan(&m.ID, &m.MapID, &m.Players[0], &m.Players[1], &m.Seed,
		&m.Winner, &m.Rounds, &started, &finished, &m.SnapshotPath, &m.JournalPath)
	if err != nil {
		return MatchRow{}, err
	}
	m.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished != "" {
		m.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	}
	return m, nil
}
