// Package feed applies the client-side rules for publishing posts,
// commenting and liking before handing off to the persistence API.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/feedstore/internal/model"
)

// ErrPostNotFound is returned when an action names a missing post.
var ErrPostNotFound = errors.New("post not found")

// ErrEmptyComment is returned for a comment with no visible content.
var ErrEmptyComment = errors.New("please enter a comment")

// ErrMissingFields is returned when a post lacks a title or description.
var ErrMissingFields = errors.New("please fill in all required fields")

// Posts is the subset of the persistence API the feed needs.
type Posts interface {
	CreatePost(ctx context.Context, post model.NewPost) (int64, error)
	GetPostByID(ctx context.Context, id int64) (model.Post, bool, error)
	AddComment(ctx context.Context, postID, userID int64, content string) (int64, error)
	ToggleLike(ctx context.Context, postID, userID int64) (bool, error)
}

// PostRequest is a new post as entered by a user. Media fields hold data
// URLs.
type PostRequest struct {
	Title       string `validate:"required"`
	Description string `validate:"required"`
	Tags        string
	Image       string `validate:"omitempty,datauri"`
	Audio       string `validate:"omitempty,datauri"`
	Video       string `validate:"omitempty,datauri"`
}

// Service publishes posts, comments and likes for a logged-in user.
type Service struct {
	posts    Posts
	validate *validator.Validate
}

// NewService returns a Service over posts.
func NewService(posts Posts) *Service {
	return &Service{
		posts:    posts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Publish creates a post authored by author.
func (s *Service) Publish(ctx context.Context, author model.User, req PostRequest) (int64, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			return 0, ErrMissingFields
		}
		return 0, fmt.Errorf("invalid post: %w", err)
	}

	return s.posts.CreatePost(ctx, model.NewPost{
		Title:       req.Title,
		Description: req.Description,
		Tags:        model.NormalizeTags(req.Tags),
		Image:       req.Image,
		Audio:       req.Audio,
		Video:       req.Video,
		AuthorID:    author.ID,
	})
}

// Comment adds trimmed content to postID on behalf of user.
func (s *Service) Comment(ctx context.Context, user model.User, postID int64, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, ErrEmptyComment
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return 0, err
	}
	return s.posts.AddComment(ctx, postID, user.ID, content)
}

// ToggleLike flips user's like on postID.
func (s *Service) ToggleLike(ctx context.Context, user model.User, postID int64) (bool, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return false, err
	}
	return s.posts.ToggleLike(ctx, postID, user.ID)
}

func (s *Service) requirePost(ctx context.Context, postID int64) error {
	_, found, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}
	return nil
}
