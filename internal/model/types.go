package model

import "time"

// User is a registered account.
//
// Credential is only populated by authentication lookups; lookups by id
// strip it.
type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Credential string    `json:"credential,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewPost holds the caller-supplied fields of a post.
type NewPost struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"` // comma-delimited
	Image       string `json:"image_data,omitempty"`
	Audio       string `json:"audio_data,omitempty"`
	Video       string `json:"video_data,omitempty"`
	AuthorID    int64  `json:"author_id"`
}

// Post is a stored post joined with its author's name.
type Post struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        string    `json:"tags"`
	Image       string    `json:"image_data,omitempty"`
	Audio       string    `json:"audio_data,omitempty"`
	Video       string    `json:"video_data,omitempty"`
	AuthorID    int64     `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	CreatedAt   time.Time `json:"created_at"`
	LikesCount  int64     `json:"likes_count"`
}

// TagList returns the post's tags as a slice.
func (p Post) TagList() []string {
	return SplitTags(p.Tags)
}

// Comment is a stored comment joined with its author's name.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Like records that a user likes a post. At most one exists per (post, user).
type Like struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CountMismatch reports a post whose denormalized likes_count disagrees
// with the number of Like rows referencing it.
type CountMismatch struct {
	PostID     int64 `json:"post_id"`
	LikesCount int64 `json:"likes_count"`
	LikeRows   int64 `json:"like_rows"`
}

// UnknownUserName is displayed when a referenced user cannot be resolved.
const UnknownUserName = "Unknown User"

// Timestamp normalizes t for storage: UTC, microsecond precision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
