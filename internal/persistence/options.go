package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/feedstore/internal/slot"
	"github.com/roach88/feedstore/internal/store"
)

// Mode selects how the Facade chooses its backend.
type Mode string

const (
	// ModeAuto tries the relational backend and falls back permanently
	// to the record store if it cannot be initialized.
	ModeAuto Mode = "auto"

	// ModeRelational uses only the relational backend. If it cannot be
	// initialized every operation fails with ENGINE_UNAVAILABLE.
	ModeRelational Mode = "relational"

	// ModeFallback uses only the record store.
	ModeFallback Mode = "fallback"
)

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeRelational, ModeFallback:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want auto, relational or fallback)", s)
	}
}

const (
	// DefaultKeyPrefix prefixes every slot key.
	DefaultKeyPrefix = "feedstore"

	// DefaultUserCacheSize bounds the user-by-id cache.
	DefaultUserCacheSize = 256
)

// Slots is the durable blob store the Facade snapshots into.
// *slot.Store implements it.
type Slots interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Stat(ctx context.Context, key string) (slot.Info, bool, error)
}

// RelationalOpener creates an empty relational backend.
type RelationalOpener func(ctx context.Context) (store.Backend, error)

// Options configure a Facade. The zero value is usable: auto mode, an
// in-memory slot store, the system clock and slog.Default().
type Options struct {
	Mode  Mode
	Slots Slots

	// KeyPrefix prefixes slot keys; DefaultKeyPrefix when empty.
	KeyPrefix string

	// Seed is loaded into the relational backend when its slot is empty.
	// Either a framed snapshot or a raw SQLite database file.
	Seed []byte

	// OpenRelational overrides how the relational backend is created.
	OpenRelational RelationalOpener

	Clock  store.Clock
	Logger *slog.Logger

	// BackupInterval, when positive, writes the backup slot periodically.
	BackupInterval time.Duration

	// UserCacheSize bounds the user-by-id cache. Zero selects
	// DefaultUserCacheSize; negative disables the cache.
	UserCacheSize int

	// Registerer receives the Facade's metrics. A private registry is
	// used when nil.
	Registerer prometheus.Registerer

	// InstanceID is written into snapshot metadata. A UUIDv7 is
	// generated when empty.
	InstanceID string
}

// keys names the slots used for one prefix.
type keys struct {
	prefix string
}

func (k keys) main(kind store.Kind) string {
	if kind == store.KindRelational {
		return k.prefix + "_database"
	}
	return k.prefix + "_records"
}

func (k keys) backup(kind store.Kind) string {
	return k.main(kind) + "_backup"
}

func (k keys) quarantine(at time.Time) string {
	return fmt.Sprintf("%s_corrupt_%d", k.prefix, at.Unix())
}

// validInstanceID reports whether id fits the gzip header of a snapshot,
// which carries Latin-1 text without NUL bytes.
func validInstanceID(id string) error {
	for _, r := range id {
		if r == 0 || r > unicode.MaxLatin1 {
			return fmt.Errorf("invalid instance id %q: must be Latin-1 without NUL", id)
		}
	}
	return nil
}
