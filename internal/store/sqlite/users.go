package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/store"
)

// CreateUser inserts a user. A duplicate email is a constraint violation.
func (s *Store) CreateUser(ctx context.Context, name, email, credential string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, password, created_at)
		VALUES (?, ?, ?, ?)
	`, name, email, credential, s.now())
	if err != nil {
		if store.IsConstraintViolation(mapError("create user", err)) {
			return 0, store.NewConstraintError("email already exists", err)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user: last insert id: %w", err)
	}
	return id, nil
}

// AuthenticateUser returns the user whose email and credential both match,
// credential included.
func (s *Store) AuthenticateUser(ctx context.Context, email, credential string) (model.User, bool, error) {
	var (
		u       model.User
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, created_at
		FROM users
		WHERE email = ? AND password = ?
	`, email, credential).Scan(&u.ID, &u.Name, &u.Email, &u.Credential, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("authenticate user: %w", err)
	}
	u.CreatedAt = parseTime(created.String)
	return u, true, nil
}

// GetUserByID returns the user without its credential.
func (s *Store) GetUserByID(ctx context.Context, id int64) (model.User, bool, error) {
	var (
		u       model.User
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM users
		WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("get user %d: %w", id, err)
	}
	u.CreatedAt = parseTime(created.String)
	return u, true, nil
}
