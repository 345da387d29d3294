package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/feedstore/internal/testutil"
)

// createTestStore opens an in-memory store with a deterministic clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath,
		WithClock(testutil.NewDeterministicClock()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateUser(t *testing.T, s *Store, name, email string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), name, email, "cred-"+name)
	require.NoError(t, err)
	return id
}
