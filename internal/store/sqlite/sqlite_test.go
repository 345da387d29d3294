package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range requiredTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_FilePragmas(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "wal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestOpen_MigratesLegacySchema(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, `
		DROP INDEX idx_posts_created;
		DROP INDEX idx_comments_post;
		PRAGMA user_version = 0;
	`); err != nil {
		t.Fatalf("downgrade failed: %v", err)
	}

	if err := runMigrations(ctx, s.db); err != nil {
		t.Fatalf("runMigrations() failed: %v", err)
	}

	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
	var n int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name IN ('idx_posts_created','idx_comments_post')",
	).Scan(&n); err != nil {
		t.Fatalf("index query failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 listing indexes, got %d", n)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-01T09:00:00.000000Z", "2024-01-01T09:00:00.000000Z"},
		{"2024-01-01 09:00:00", "2024-01-01T09:00:00.000000Z"},
		{"2024-01-01T09:00:00.5Z", "2024-01-01T09:00:00.500000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := formatTime(parseTime(tt.in))
			if got != tt.want {
				t.Errorf("parseTime(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	if !parseTime("not a time").IsZero() {
		t.Error("expected zero time for garbage")
	}
}
