package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/feedstore/internal/model"
)

// ErrNotLoggedIn is returned when an action needs a current user.
var ErrNotLoggedIn = errors.New("please log in first")

// Blobs is the slot subset a Session needs.
type Blobs interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// Session remembers the logged-in user between runs.
type Session struct {
	blobs Blobs
	key   string
}

// NewSession stores the current user under <prefix>_current_user.
func NewSession(blobs Blobs, prefix string) *Session {
	return &Session{blobs: blobs, key: prefix + "_current_user"}
}

// Set records u as the current user. The credential is never stored.
func (s *Session) Set(ctx context.Context, u model.User) error {
	u.Credential = ""
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.blobs.Save(ctx, s.key, data)
}

// Current returns the current user, or ErrNotLoggedIn.
func (s *Session) Current(ctx context.Context) (model.User, error) {
	data, found, err := s.blobs.Load(ctx, s.key)
	if err != nil {
		return model.User{}, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return model.User{}, ErrNotLoggedIn
	}

	var u model.User
	if err := json.Unmarshal(data, &u); err != nil || u.ID == 0 {
		return model.User{}, ErrNotLoggedIn
	}
	return u, nil
}

// Clear logs the current user out.
func (s *Session) Clear(ctx context.Context) error {
	return s.blobs.Delete(ctx, s.key)
}

// Resolve returns the current user after confirming it still exists.
func (s *Session) Resolve(ctx context.Context, users Users) (model.User, error) {
	u, err := s.Current(ctx)
	if err != nil {
		return model.User{}, err
	}
	fresh, found, err := users.GetUserByID(ctx, u.ID)
	if err != nil {
		return model.User{}, fmt.Errorf("resolve session: %w", err)
	}
	if !found {
		return model.User{}, ErrNotLoggedIn
	}
	return fresh, nil
}
