// Package journal records every accepted action of a match as one JSONL
// entry, zstd-compressed on disk. A journal plus the match seed is a full
// replay: feeding the entries back through the engine reproduces the battle
// digest for digest.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Header is the first line of every journal file.
type Header struct {
	Kind            string    `json:"kind"` // always "header"
	RoomID          string    `json:"roomId"`
	ProtocolVersion string    `json:"protocol_version"`
	Seed            int64     `json:"seed"`
	MapID           string    `json:"mapId,omitempty"`
	Players         []string  `json:"players"`
	StartedAt       time.Time `json:"startedAt"`
}

// Entry is one accepted action. Data holds the action payload verbatim as it
// went over the wire; Digest is the state digest right after the action
// committed and is what replay verification checks against.
type Entry struct {
	Seq      uint64          `json:"seq"`
	Tick     uint64          `json:"tick"`
	PlayerID string          `json:"playerId"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data,omitempty"`
	Digest   string          `json:"digest"`
}

// Path returns the journal file for a room under baseDir.
func Path(baseDir, roomID string) string {
	return filepath.Join(baseDir, roomID+".jsonl.zst")
}

// Writer appends entries to a single match journal. Every entry is flushed
// through the compressor so a crash loses at most the entry being written.
type Writer struct {
	mu   sync.Mutex
	seq  uint64
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
	path string
}

func Create(baseDir string, hdr Header) (*Writer, error) {
	if hdr.RoomID == "" {
		return nil, errors.New("journal: header missing room id")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	path := Path(baseDir, hdr.RoomID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024), path: path}

	hdr.Kind = "header"
	if hdr.StartedAt.IsZero() {
		hdr.StartedAt = time.Now().UTC()
	}
	if err := w.writeLine(hdr); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) PathName() string { return w.path }

// Append records one accepted action and assigns it the next sequence
// number.
func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	e.Seq = w.seq
	return w.writeLine(e)
}

func (w *Writer) writeLine(v any) error {
	if w.w == nil {
		return errors.New("journal: writer closed")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.w != nil {
		_ = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	return err
}

// Reader streams a journal back, header first.
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
	hdr Header
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		dec.Close()
		_ = f.Close()
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("journal %s: empty file", path)
	}
	var hdr Header
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		dec.Close()
		_ = f.Close()
		return nil, fmt.Errorf("journal %s: bad header: %w", path, err)
	}
	if hdr.Kind != "header" {
		dec.Close()
		_ = f.Close()
		return nil, fmt.Errorf("journal %s: first line is not a header", path)
	}
	return &Reader{f: f, dec: dec, sc: sc, hdr: hdr}, nil
}

func (r *Reader) Header() Header { return r.hdr }

// Next returns the following entry, or io.EOF at the end of the journal.
func (r *Reader) Next() (Entry, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return Entry{}, err
		}
		return Entry{}, io.EOF
	}
	var e Entry
	if err := json.Unmarshal(r.sc.Bytes(), &e); err != nil {
		return Entry{}, fmt.Errorf("journal: bad entry: %w", err)
	}
	return e, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// ReadAll loads a whole journal into memory.
func ReadAll(path string) (Header, []Entry, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()
	var out []Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return r.hdr, out, nil
		}
		if err != nil {
			return r.hdr, out, err
		}
		out = append(out, e)
	}
}
