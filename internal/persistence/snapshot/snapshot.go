// Package snapshot serializes a full battle state: a one-line JSON header
// for tooling that only needs metadata, then the gob body, the whole file
// zstd-compressed. The byte forms back SYNC_STATE resyncs over the wire.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"neontactics.gg/internal/sim/grid"
)

type Header struct {
	Version int    `json:"version"`
	RoomID  string `json:"room_id"`
	Tick    uint64 `json:"tick"`
}

// GameV1 is the complete serialized battle. Everything the simulation
// consults is here; presentation-only state (selections, interaction
// modes, path previews) is deliberately not.
type GameV1 struct {
	Header Header `json:"header"`

	Seed     int64     `json:"seed"`
	Turn     int       `json:"turn"`
	Round    int       `json:"round"`
	Current  string    `json:"current"`
	Order    [2]string `json:"order"`
	Winner   string    `json:"winner,omitempty"`
	Over     bool      `json:"over,omitempty"`
	NextUnit uint64    `json:"next_unit"`
	NextCard uint64    `json:"next_card"`

	Bounds grid.Bounds `json:"bounds"`
	Tiles  []TileV1    `json:"tiles"`

	Players      []PlayerV1      `json:"players"`
	Units        []UnitV1        `json:"units"`
	Collectibles []CollectibleV1 `json:"collectibles,omitempty"`
	Timers       []TimerV1       `json:"timers,omitempty"`
	Draft        *DraftV1        `json:"draft,omitempty"`
	NextTimerSeq uint64          `json:"next_timer_seq"`

	Log []LogV1 `json:"log,omitempty"`
}

type TileV1 struct {
	X         int    `json:"x"`
	Z         int    `json:"z"`
	Type      uint8  `json:"type"`
	Elevation int    `json:"elevation,omitempty"`
	Rotation  int    `json:"rotation,omitempty"`
	Zone      string `json:"zone,omitempty"`
}

type PlayerV1 struct {
	ID       string     `json:"id"`
	Credits  int        `json:"credits"`
	Deck     []CardV1   `json:"deck"`
	Talents  []string   `json:"talents,omitempty"`
	Unlocked []string   `json:"unlocked"`
	Offers   []ShopV1   `json:"offers,omitempty"`
	Stock    []ShopV1   `json:"stock,omitempty"`
	Pending  []ShopV1   `json:"pending,omitempty"`
	Revealed []grid.Pos `json:"revealed"`
}

type CardV1 struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Cost     int    `json:"cost"`
}

type ShopV1 struct {
	Type          string `json:"type"`
	Cost          int    `json:"cost"`
	DeliveryTurns int    `json:"delivery_turns,omitempty"`
	PurchaseRound int    `json:"purchase_round,omitempty"`
}

type UnitV1 struct {
	ID       string   `json:"id"`
	Player   string   `json:"player"`
	Pos      grid.Pos `json:"pos"`
	Type     string   `json:"type"`
	Level    int      `json:"level"`
	Rotation int      `json:"rotation,omitempty"`

	HP         int  `json:"hp"`
	MaxHP      int  `json:"max_hp"`
	Energy     int  `json:"energy"`
	MaxEnergy  int  `json:"max_energy"`
	Attack     int  `json:"attack"`
	Range      int  `json:"range"`
	Movement   int  `json:"movement"`
	Size       int  `json:"size"`
	MaxAttacks int  `json:"max_attacks"`
	BlocksLOS  bool `json:"blocks_los,omitempty"`

	StepsTaken        int    `json:"steps_taken,omitempty"`
	AttacksUsed       int    `json:"attacks_used,omitempty"`
	MindControlTarget string `json:"mind_control_target,omitempty"`
	OriginalPlayer    string `json:"original_player,omitempty"`
	TeleportLocked    bool   `json:"teleport_locked,omitempty"`
	Dead              bool   `json:"dead,omitempty"`

	Effects []EffectV1 `json:"effects,omitempty"`

	AttackTarget     string `json:"attack_target,omitempty"`
	AutoAttackTarget string `json:"auto_attack_target,omitempty"`
}

type EffectV1 struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Duration    int    `json:"duration"`
	MaxDuration int    `json:"max_duration"`
}

type CollectibleV1 struct {
	Pos    grid.Pos `json:"pos"`
	Type   string   `json:"type"`
	Amount int      `json:"amount"`
}

type TimerV1 struct {
	Due  uint64 `json:"due"`
	Seq  uint64 `json:"seq"`
	Kind uint8  `json:"kind"`
	Unit string `json:"unit"`
}

type DraftV1 struct {
	Round  int                 `json:"round"`
	Offers map[string][]string `json:"offers"`
	Picked map[string]bool     `json:"picked"`
}

type LogV1 struct {
	Turn   int    `json:"turn"`
	Round  int    `json:"round"`
	Player string `json:"player"`
	Text   string `json:"text"`
}

// WriteSnapshot writes the snapshot to path, creating parent directories.
func WriteSnapshot(path string, snap GameV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := encodeTo(f, snap); err != nil {
		return err
	}
	return f.Close()
}

// ReadSnapshot loads a snapshot file written by WriteSnapshot.
func ReadSnapshot(path string) (GameV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return GameV1{}, err
	}
	defer f.Close()
	return decodeFrom(f)
}

// Encode produces the compressed byte form carried by SYNC_STATE.
func Encode(snap GameV1) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTo(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (GameV1, error) {
	return decodeFrom(bytes.NewReader(b))
}

func encodeTo(w io.Writer, snap GameV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func decodeFrom(r io.Reader) (GameV1, error) {
	var snap GameV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Skip the header line; the gob body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
