package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/feedstore/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - schema as written by the browser client, no indexes
// 1 - listing indexes on posts.created_at and comments.post_id
const currentSchemaVersion = 1

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the relational backend.
type Store struct {
	db     *sql.DB
	path   string
	clock  store.Clock
	logger *slog.Logger
}

var _ store.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created_at values.
func WithClock(c store.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates or opens a SQLite database at path, or an in-memory one
// for MemoryPath. Applies required pragmas and migrations.
//
// The pool is pinned to one connection: SQLite allows one writer, and an
// in-memory database exists only on the connection that created it.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		clock:  store.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sqlite")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db, path); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s.db = db
	s.logger.Debug("database opened", "path", path)
	return s, nil
}

// Kind reports store.KindRelational.
func (s *Store) Kind() store.Kind { return store.KindRelational }

// Close closes the database. An in-memory database is discarded.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// execQuerier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func applyPragmas(ctx context.Context, db execQuerier, path string) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != MemoryPath {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(ctx context.Context, db execQuerier) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(ctx context.Context, db execQuerier) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if version != currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// migrateToV1 adds the listing indexes to images written by the browser
// client. Fresh databases already have them from schema.sql.
func migrateToV1(ctx context.Context, db execQuerier) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at, id);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
