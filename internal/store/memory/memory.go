// Package memory implements store.Backend as record lists in process
// memory. It needs no engine and cannot fail to initialize, which makes
// it the fallback when SQLite is unavailable.
//
// One mutex guards all state, so every operation is atomic with respect
// to every other. References between records are not enforced; joins
// that miss resolve to model.UnknownUserName.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/store"
)

// Store is the fallback backend.
type Store struct {
	mu     sync.Mutex
	st     state
	clock  store.Clock
	logger *slog.Logger
}

var _ store.Backend = (*Store)(nil)

// state is the exported document. Ids come from per-collection sequences
// that travel with the data.
type state struct {
	UserSeq    int64           `json:"user_seq"`
	PostSeq    int64           `json:"post_seq"`
	CommentSeq int64           `json:"comment_seq"`
	LikeSeq    int64           `json:"like_seq"`
	Users      []userRecord    `json:"users"`
	Posts      []postRecord    `json:"posts"` // newest first
	Comments   []commentRecord `json:"comments"`
	Likes      []model.Like    `json:"likes"`
}

type userRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
}

type postRecord struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        string    `json:"tags"`
	Image       string    `json:"image_data,omitempty"`
	Audio       string    `json:"audio_data,omitempty"`
	Video       string    `json:"video_data,omitempty"`
	AuthorID    int64     `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	LikesCount  int64     `json:"likes_count"`
}

type commentRecord struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

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

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		st:     emptyState(),
		clock:  store.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "memory")
	return s
}

func emptyState() state {
	return state{
		Users:    []userRecord{},
		Posts:    []postRecord{},
		Comments: []commentRecord{},
		Likes:    []model.Like{},
	}
}

// Kind reports store.KindFallback.
func (s *Store) Kind() store.Kind { return store.KindFallback }

// Close is a no-op; state lives until the Store is dropped.
func (s *Store) Close() error { return nil }

func (s *Store) now() time.Time {
	return model.Timestamp(s.clock.Now())
}

// userName resolves a user's display name. Callers hold s.mu.
func (s *Store) userName(id int64) string {
	for i := range s.st.Users {
		if s.st.Users[i].ID == id {
			return s.st.Users[i].Name
		}
	}
	return model.UnknownUserName
}

// CreateUser appends a user. A duplicate email is a constraint violation.
func (s *Store) CreateUser(ctx context.Context, name, email, credential string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.Users {
		if u.Email == email {
			return 0, store.NewConstraintError("email already exists", nil)
		}
	}

	s.st.UserSeq++
	u := userRecord{
		ID:        s.st.UserSeq,
		Name:      name,
		Email:     email,
		Password:  credential,
		CreatedAt: s.now(),
	}
	s.st.Users = append(s.st.Users, u)
	return u.ID, nil
}

// AuthenticateUser returns the user whose email and credential both match.
func (s *Store) AuthenticateUser(ctx context.Context, email, credential string) (model.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.Users {
		if u.Email == email && u.Password == credential {
			return model.User{
				ID:         u.ID,
				Name:       u.Name,
				Email:      u.Email,
				Credential: u.Password,
				CreatedAt:  u.CreatedAt,
			}, true, nil
		}
	}
	return model.User{}, false, nil
}

// GetUserByID returns the user without its credential.
func (s *Store) GetUserByID(ctx context.Context, id int64) (model.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.Users {
		if u.ID == id {
			return model.User{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}, true, nil
		}
	}
	return model.User{}, false, nil
}

// CreatePost prepends a post with likes_count 0.
func (s *Store) CreatePost(ctx context.Context, post model.NewPost) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.PostSeq++
	p := postRecord{
		ID:          s.st.PostSeq,
		Title:       post.Title,
		Description: post.Description,
		Tags:        model.NormalizeTags(post.Tags),
		Image:       post.Image,
		Audio:       post.Audio,
		Video:       post.Video,
		AuthorID:    post.AuthorID,
		CreatedAt:   s.now(),
	}
	s.st.Posts = append([]postRecord{p}, s.st.Posts...)
	return p.ID, nil
}

func (s *Store) joinPost(p postRecord) model.Post {
	return model.Post{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Tags:        p.Tags,
		Image:       p.Image,
		Audio:       p.Audio,
		Video:       p.Video,
		AuthorID:    p.AuthorID,
		AuthorName:  s.userName(p.AuthorID),
		CreatedAt:   p.CreatedAt,
		LikesCount:  p.LikesCount,
	}
}

// GetAllPosts returns posts in stored order, newest first.
func (s *Store) GetAllPosts(ctx context.Context) ([]model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := make([]model.Post, 0, len(s.st.Posts))
	for _, p := range s.st.Posts {
		posts = append(posts, s.joinPost(p))
	}
	return posts, nil
}

// GetPostByID returns one post joined with its author's name.
func (s *Store) GetPostByID(ctx context.Context, id int64) (model.Post, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Post{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.st.Posts {
		if p.ID == id {
			return s.joinPost(p), true, nil
		}
	}
	return model.Post{}, false, nil
}

// AddComment appends a comment.
func (s *Store) AddComment(ctx context.Context, postID, userID int64, content string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.CommentSeq++
	c := commentRecord{
		ID:        s.st.CommentSeq,
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.st.Comments = append(s.st.Comments, c)
	return c.ID, nil
}

// GetCommentsByPostID returns a post's comments oldest first.
func (s *Store) GetCommentsByPostID(ctx context.Context, postID int64) ([]model.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	comments := []model.Comment{}
	for _, c := range s.st.Comments {
		if c.PostID != postID {
			continue
		}
		comments = append(comments, model.Comment{
			ID:        c.ID,
			PostID:    c.PostID,
			UserID:    c.UserID,
			UserName:  s.userName(c.UserID),
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	return comments, nil
}

// ToggleLike adds the (post, user) like if absent, otherwise removes it,
// adjusting the post's likes_count under the same lock.
func (s *Store) ToggleLike(ctx context.Context, postID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.postIndex(postID)

	for i, l := range s.st.Likes {
		if l.PostID == postID && l.UserID == userID {
			s.st.Likes = append(s.st.Likes[:i], s.st.Likes[i+1:]...)
			if post >= 0 {
				s.st.Posts[post].LikesCount = max(0, s.st.Posts[post].LikesCount-1)
			}
			return false, nil
		}
	}

	s.st.LikeSeq++
	s.st.Likes = append(s.st.Likes, model.Like{
		ID:        s.st.LikeSeq,
		PostID:    postID,
		UserID:    userID,
		CreatedAt: s.now(),
	})
	if post >= 0 {
		s.st.Posts[post].LikesCount++
	}
	return true, nil
}

func (s *Store) postIndex(id int64) int {
	for i := range s.st.Posts {
		if s.st.Posts[i].ID == id {
			return i
		}
	}
	return -1
}

// IsPostLikedByUser reports whether the (post, user) like exists.
func (s *Store) IsPostLikedByUser(ctx context.Context, postID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.st.Likes {
		if l.PostID == postID && l.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// CountMismatches lists posts whose likes_count differs from their like
// records, ordered by post id.
func (s *Store) CountMismatches(ctx context.Context) ([]model.CountMismatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make(map[int64]int64, len(s.st.Posts))
	for _, l := range s.st.Likes {
		rows[l.PostID]++
	}

	out := []model.CountMismatch{}
	for _, p := range s.st.Posts {
		if p.LikesCount != rows[p.ID] {
			out = append(out, model.CountMismatch{PostID: p.ID, LikesCount: p.LikesCount, LikeRows: rows[p.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

// Export returns the state as indented JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}
	return data, nil
}

// Import replaces the state with an exported document. The document is
// checked before anything changes; on error the prior state is intact.
func (s *Store) Import(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := decodeState(payload)
	if err != nil {
		return fmt.Errorf("import records: %w", err)
	}

	s.mu.Lock()
	s.st = next
	s.mu.Unlock()

	s.logger.Info("records imported",
		"users", len(next.Users),
		"posts", len(next.Posts),
		"comments", len(next.Comments),
		"likes", len(next.Likes),
	)
	return nil
}

func decodeState(payload []byte) (state, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var st state
	if err := dec.Decode(&st); err != nil {
		return state{}, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return state{}, errors.New("decode: trailing data after document")
	}

	if st.Users == nil {
		st.Users = []userRecord{}
	}
	if st.Posts == nil {
		st.Posts = []postRecord{}
	}
	if st.Comments == nil {
		st.Comments = []commentRecord{}
	}
	if st.Likes == nil {
		st.Likes = []model.Like{}
	}

	if err := st.validate(); err != nil {
		return state{}, err
	}
	return st, nil
}

// validate enforces the invariants the operations rely on and raises
// each sequence to at least the largest id in its collection.
func (st *state) validate() error {
	emails := make(map[string]bool, len(st.Users))
	for _, u := range st.Users {
		if emails[u.Email] {
			return fmt.Errorf("duplicate email %q", u.Email)
		}
		emails[u.Email] = true
		st.UserSeq = max(st.UserSeq, u.ID)
	}

	for _, p := range st.Posts {
		if p.LikesCount < 0 {
			return fmt.Errorf("post %d: negative likes_count", p.ID)
		}
		st.PostSeq = max(st.PostSeq, p.ID)
	}

	for _, c := range st.Comments {
		st.CommentSeq = max(st.CommentSeq, c.ID)
	}

	pairs := make(map[[2]int64]bool, len(st.Likes))
	for _, l := range st.Likes {
		key := [2]int64{l.PostID, l.UserID}
		if pairs[key] {
			return fmt.Errorf("duplicate like for post %d user %d", l.PostID, l.UserID)
		}
		pairs[key] = true
		st.LikeSeq = max(st.LikeSeq, l.ID)
	}
	return nil
}
