// Package snapshot frames backend exports for durable storage.
//
// Frame layout:
//
//	magic   "FSNP"       4 bytes
//	version              1 byte
//	kind                 1 byte  (1 = relational, 2 = fallback)
//	digest  SHA-256      32 bytes, of the uncompressed payload
//	body    gzip member  payload, header carries instance id and time
//
// A raw SQLite database file is also accepted by Decode as a relational
// snapshot, so seed files and exported databases load unchanged.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/roach88/feedstore/internal/store"
)

// ErrCorrupt is matched by every Decode failure.
var ErrCorrupt = errors.New("corrupt snapshot")

// Version is the current frame version.
const Version = 1

var magic = []byte("FSNP")

// sqliteHeader prefixes every SQLite database file.
var sqliteHeader = []byte("SQLite format 3\x00")

const (
	kindRelational byte = 1
	kindFallback   byte = 2
)

const headerLen = 4 + 1 + 1 + sha256.Size

// Snapshot is one backend export plus its metadata.
type Snapshot struct {
	Kind    store.Kind
	Payload []byte

	// Instance identifies the process that wrote the snapshot.
	Instance string

	// CreatedAt has one-second resolution once encoded.
	CreatedAt time.Time
}

// Encode frames s for storage.
func Encode(s Snapshot) ([]byte, error) {
	kb, err := kindByte(s.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	digest := sha256.Sum256(s.Payload)

	var buf bytes.Buffer
	buf.Grow(headerLen + len(s.Payload)/2)
	buf.Write(magic)
	buf.WriteByte(Version)
	buf.WriteByte(kb)
	buf.Write(digest[:])

	gw := gzip.NewWriter(&buf)
	gw.Name = "feedstore-" + s.Kind.String()
	gw.Comment = s.Instance
	if !s.CreatedAt.IsZero() {
		gw.ModTime = s.CreatedAt
	}
	if _, err := gw.Write(s.Payload); err != nil {
		return nil, fmt.Errorf("encode snapshot: compress: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("encode snapshot: compress: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses a framed snapshot or a raw SQLite database file.
// All failures wrap ErrCorrupt.
func Decode(data []byte) (Snapshot, error) {
	if IsSQLiteImage(data) {
		return Snapshot{Kind: store.KindRelational, Payload: data}, nil
	}

	if len(data) < headerLen {
		return Snapshot{}, corrupt("truncated header (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:4], magic) {
		return Snapshot{}, corrupt("bad magic %q", data[:4])
	}
	if data[4] != Version {
		return Snapshot{}, corrupt("unsupported version %d", data[4])
	}

	kind, err := kindOf(data[5])
	if err != nil {
		return Snapshot{}, corrupt("%v", err)
	}

	var want [sha256.Size]byte
	copy(want[:], data[6:headerLen])

	gr, err := gzip.NewReader(bytes.NewReader(data[headerLen:]))
	if err != nil {
		return Snapshot{}, corrupt("gzip header: %v", err)
	}
	defer gr.Close()

	payload, err := io.ReadAll(gr)
	if err != nil {
		return Snapshot{}, corrupt("gzip body: %v", err)
	}
	if sha256.Sum256(payload) != want {
		return Snapshot{}, corrupt("payload digest mismatch")
	}

	s := Snapshot{
		Kind:     kind,
		Payload:  payload,
		Instance: gr.Comment,
	}
	if !gr.ModTime.IsZero() {
		s.CreatedAt = gr.ModTime.UTC()
	}
	return s, nil
}

// IsSQLiteImage reports whether data starts with the SQLite file header.
func IsSQLiteImage(data []byte) bool {
	return bytes.HasPrefix(data, sqliteHeader)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

func kindByte(k store.Kind) (byte, error) {
	switch k {
	case store.KindRelational:
		return kindRelational, nil
	case store.KindFallback:
		return kindFallback, nil
	default:
		return 0, fmt.Errorf("unknown backend kind %q", k)
	}
}

func kindOf(b byte) (store.Kind, error) {
	switch b {
	case kindRelational:
		return store.KindRelational, nil
	case kindFallback:
		return store.KindFallback, nil
	default:
		return "", fmt.Errorf("unknown kind byte %d", b)
	}
}
