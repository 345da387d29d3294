package store

import (
	"context"

	"github.com/roach88/feedstore/internal/model"
)

// Kind identifies a backend implementation.
type Kind string

const (
	// KindRelational is the SQLite-backed store.
	KindRelational Kind = "relational"

	// KindFallback is the in-memory record store.
	KindFallback Kind = "fallback"
)

// String returns the kind name.
func (k Kind) String() string { return string(k) }

// Backend is the persistence capability set shared by every storage
// implementation.
//
// Every method is atomic with respect to every other method on the same
// Backend. In particular ToggleLike's existence check and mutation, and
// the likes_count adjustment, happen as one step.
//
// Lookups report absence with found == false and a nil error.
// Constraint failures are returned as *Error with ErrCodeConstraintViolation.
type Backend interface {
	Kind() Kind

	CreateUser(ctx context.Context, name, email, credential string) (int64, error)
	AuthenticateUser(ctx context.Context, email, credential string) (model.User, bool, error)
	GetUserByID(ctx context.Context, id int64) (model.User, bool, error)

	CreatePost(ctx context.Context, post model.NewPost) (int64, error)
	GetAllPosts(ctx context.Context) ([]model.Post, error)
	GetPostByID(ctx context.Context, id int64) (model.Post, bool, error)

	AddComment(ctx context.Context, postID, userID int64, content string) (int64, error)
	GetCommentsByPostID(ctx context.Context, postID int64) ([]model.Comment, error)

	ToggleLike(ctx context.Context, postID, userID int64) (bool, error)
	IsPostLikedByUser(ctx context.Context, postID, userID int64) (bool, error)

	// CountMismatches lists posts whose likes_count disagrees with their Like rows.
	CountMismatches(ctx context.Context) ([]model.CountMismatch, error)

	// Export returns the backend's complete state as an opaque payload.
	Export(ctx context.Context) ([]byte, error)

	// Import replaces the backend's state with an exported payload.
	// On error the prior state is left intact.
	Import(ctx context.Context, payload []byte) error

	Close() error
}
