// Package slot is a named-blob key-value store on top of an afero
// filesystem. Each key maps to one file; saves replace the whole value.
package slot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrInvalidKey is returned for keys outside the allowed alphabet.
var ErrInvalidKey = errors.New("invalid slot key")

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

const (
	slotExt  = ".slot"
	tmpExt   = ".tmp"
	dirPerm  = 0o750
	filePerm = 0o600
)

// Info describes a stored value.
type Info struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store keeps slots as files under a root directory.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at dir on fsys, creating dir if needed.
func New(fsys afero.Fs, dir string) (*Store, error) {
	if err := fsys.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create slot dir %s: %w", dir, err)
	}
	return &Store{fs: fsys, root: dir}, nil
}

// NewOS returns a Store on the host filesystem.
func NewOS(dir string) (*Store, error) {
	return New(afero.NewOsFs(), dir)
}

// NewMemory returns a Store backed by an in-memory filesystem.
func NewMemory() *Store {
	s, err := New(afero.NewMemMapFs(), "/slots")
	if err != nil {
		// MemMapFs.MkdirAll does not fail.
		panic(err)
	}
	return s
}

// ValidKey reports whether key may name a slot.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

func (s *Store) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key+slotExt), nil
}

// Save replaces the value at key. The value is written to a temporary
// file and renamed into place, so a reader sees either the old or the new
// value in full.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return err
	}

	tmp := filepath.Join(s.root, key+"."+uuid.NewString()+tmpExt)
	if err := afero.WriteFile(s.fs, tmp, data, filePerm); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit slot %s: %w", key, err)
	}
	return nil
}

// Load returns the value at key. A missing key reports found == false.
func (s *Store) Load(ctx context.Context, key string) (data []byte, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err = afero.ReadFile(s.fs, p)
	if notExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return data, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !notExist(err) {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// Stat describes the value at key.
func (s *Store) Stat(ctx context.Context, key string) (Info, bool, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, false, err
	}
	p, err := s.path(key)
	if err != nil {
		return Info{}, false, err
	}
	fi, err := s.fs.Stat(p)
	if notExist(err) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("stat slot %s: %w", key, err)
	}
	return Info{Key: key, Size: fi.Size(), ModTime: fi.ModTime()}, true, nil
}

// Keys lists stored keys in lexical order. Keys with the given prefix
// only, when prefix is non-empty.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, slotExt) {
			continue
		}
		key := strings.TrimSuffix(name, slotExt)
		if !ValidKey(key) || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist)
}
