// Package persistence is the single entry point to feedstore data.
//
// A Facade picks a backend once, at startup, then serves every operation
// through it. Callers never see which backend is active: both return the
// same results, the same *store.Error codes, and the same ids.
//
// Every successful mutation schedules a snapshot of the whole store into
// a durable slot. Snapshots are written by one background goroutine and
// never delay the caller.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/slot"
	"github.com/roach88/feedstore/internal/store"
	"github.com/roach88/feedstore/internal/store/sqlite"
)

// ErrClosed is returned by operations on a closed Facade.
var ErrClosed = errors.New("persistence: facade closed")

var errWriterStopped = errors.New("persistence: snapshot writer stopped")

// Facade serves the persistence API over the selected backend.
type Facade struct {
	opts     Options
	keys     keys
	logger   *slog.Logger
	metrics  *Metrics
	instance string

	ready    chan struct{}
	backend  store.Backend
	initErr  error
	fellBack error // why auto mode chose the fallback, if it did
	seeded   bool

	users *lru.Cache // nil when disabled

	writer *snapshotWriter
	cancel context.CancelFunc
	bg     sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error

	mu            sync.Mutex
	lastBackupAt  time.Time
	lastBackupErr error
}

// New creates a Facade and starts its initialization in the background.
// It returns immediately; operations wait until initialization is done.
func New(opts Options) (*Facade, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if !slot.ValidKey(opts.KeyPrefix) {
		return nil, fmt.Errorf("invalid key prefix %q", opts.KeyPrefix)
	}
	if opts.Slots == nil {
		opts.Slots = slot.NewMemory()
	}
	if opts.Clock == nil {
		opts.Clock = store.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.InstanceID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate instance id: %w", err)
		}
		opts.InstanceID = id.String()
	}
	if err := validInstanceID(opts.InstanceID); err != nil {
		return nil, err
	}

	f := &Facade{
		opts:     opts,
		keys:     keys{prefix: opts.KeyPrefix},
		logger:   opts.Logger.With("component", "persistence"),
		metrics:  NewMetrics(opts.Registerer),
		instance: opts.InstanceID,
		ready:    make(chan struct{}),
	}
	if f.opts.OpenRelational == nil {
		f.opts.OpenRelational = f.openSQLite
	}

	size := opts.UserCacheSize
	if size == 0 {
		size = DefaultUserCacheSize
	}
	if size > 0 {
		if f.users, err = lru.New(size); err != nil {
			return nil, fmt.Errorf("create user cache: %w", err)
		}
	}

	f.writer = newSnapshotWriter(f.writeSnapshot)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	f.bg.Add(2)
	go func() {
		defer f.bg.Done()
		f.initialize(ctx)
	}()
	go func() {
		defer f.bg.Done()
		// Writes outlive cancellation so Close can drain them.
		f.writer.Run(context.WithoutCancel(ctx))
	}()

	if opts.BackupInterval > 0 {
		f.bg.Add(1)
		go func() {
			defer f.bg.Done()
			f.runBackups(ctx, opts.BackupInterval)
		}()
	}

	return f, nil
}

func (f *Facade) openSQLite(ctx context.Context) (store.Backend, error) {
	return sqlite.Open(ctx, sqlite.MemoryPath,
		sqlite.WithClock(f.opts.Clock),
		sqlite.WithLogger(f.opts.Logger),
	)
}

// await blocks until initialization is done and returns the backend.
func (f *Facade) await(ctx context.Context) (store.Backend, error) {
	select {
	case <-f.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.backend, nil
}

// Ready is closed once initialization has finished, successfully or not.
func (f *Facade) Ready() <-chan struct{} {
	return f.ready
}

// Backend reports the kind of the active backend.
func (f *Facade) Backend(ctx context.Context) (store.Kind, error) {
	b, err := f.await(ctx)
	if err != nil {
		return "", err
	}
	return b.Kind(), nil
}

// Metrics returns the Facade's collectors.
func (f *Facade) Metrics() *Metrics {
	return f.metrics
}

// CreateUser registers a user and returns its id. A duplicate email is
// a constraint violation.
func (f *Facade) CreateUser(ctx context.Context, name, email, credential string) (int64, error) {
	b, err := f.await(ctx)
	if err == nil {
		var id int64
		if id, err = b.CreateUser(ctx, name, email, credential); err == nil {
			f.mutated("create_user", "id", id)
			f.metrics.observeOp("create_user", nil)
			return id, nil
		}
	}
	f.metrics.observeOp("create_user", err)
	return 0, err
}

// AuthenticateUser returns the user whose email and credential both
// match. The returned user carries its credential.
func (f *Facade) AuthenticateUser(ctx context.Context, email, credential string) (model.User, bool, error) {
	b, err := f.await(ctx)
	if err != nil {
		f.metrics.observeOp("authenticate_user", err)
		return model.User{}, false, err
	}
	u, found, err := b.AuthenticateUser(ctx, email, credential)
	f.metrics.observeLookup("authenticate_user", found, err)
	return u, found, err
}

// GetUserByID returns a user without its credential.
func (f *Facade) GetUserByID(ctx context.Context, id int64) (model.User, bool, error) {
	b, err := f.await(ctx)
	if err != nil {
		f.metrics.observeOp("get_user", err)
		return model.User{}, false, err
	}

	if f.users != nil {
		if v, ok := f.users.Get(id); ok {
			f.metrics.UserCacheLookupsTotal.WithLabelValues("hit").Inc()
			f.metrics.observeOp("get_user", nil)
			return v.(model.User), true, nil
		}
		f.metrics.UserCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	u, found, err := b.GetUserByID(ctx, id)
	if err == nil && found && f.users != nil {
		f.users.Add(id, u)
	}
	f.metrics.observeLookup("get_user", found, err)
	return u, found, err
}

// CreatePost stores a post with zero likes and returns its id.
func (f *Facade) CreatePost(ctx context.Context, post model.NewPost) (int64, error) {
	b, err := f.await(ctx)
	if err == nil {
		var id int64
		if id, err = b.CreatePost(ctx, post); err == nil {
			f.mutated("create_post", "id", id, "author_id", post.AuthorID)
			f.metrics.observeOp("create_post", nil)
			return id, nil
		}
	}
	f.metrics.observeOp("create_post", err)
	return 0, err
}

// GetAllPosts returns every post, newest first, with its author's name.
func (f *Facade) GetAllPosts(ctx context.Context) ([]model.Post, error) {
	b, err := f.await(ctx)
	if err != nil {
		f.metrics.observeOp("get_all_posts", err)
		return nil, err
	}
	posts, err := b.GetAllPosts(ctx)
	f.metrics.observeOp("get_all_posts", err)
	return posts, err
}

// GetPostByID returns one post with its author's name.
func (f *Facade) GetPostByID(ctx context.Context, id int64) (model.Post, bool, error) {
	b, err := f.await(ctx)
	if err != nil {
		f.metrics.observeOp("get_post", err)
		return model.Post{}, false, err
	}
	p, found, err := b.GetPostByID(ctx, id)
	f.metrics.observeLookup("get_post", found, err)
	return p, found, err
}

// AddComment stores a comment and returns its id.
func (f *Facade) AddComment(ctx context.Context, postID, userID int64, content string) (int64, error) {
	b, err := f.await(ctx)
	if err == nil {
		var id int64
		if id, err = b.AddComment(ctx, postID, userID, content); err == nil {
			f.mutated("add_comment", "id", id, "post_id", postID)
			f.metrics.observeOp("add_comment", nil)
			return id, nil
		}
	}
	f.metrics.observeOp("add_comment", err)
	return 0, err
}

// GetCommentsByPostID returns a post's comments oldest first.
func (f *Facade) GetCommentsByPostID(ctx context.Context, postID int64) ([]model.Comment, error) {
	b, err := f.await(ctx)
	if err != nil {
		f.metrics.observeOp("get_comments", err)
		return nil, err
	}
	comments, err := b.GetCommentsByPostID(ctx, postID)
	f.metrics.observeOp("get_comments", err)
	return comments, err
}

// ToggleLike flips whether userID likes postID and returns the new state.
func (f *Facade) ToggleLike(ctx context.Context, postID, userID int64) (bool, error) {
	b, err := f.await(ctx)
	if err == nil {
		var liked bool
		if liked, err = b.ToggleLike(ctx, postID, userID); err == nil {
			f.mutated("toggle_like", "post_id", postID, "user_id", userID, "liked", liked)
			f.metrics.observeOp("toggle_like", nil)
			return liked, nil
		}
	}
	f.metrics.observeOp("toggle_like", err)
	return false, err
}

// IsPostLikedByUser reports whether userID likes postID.
func (f *Facade) IsPostLikedByUser(ctx context.Context, postID, userID int64) (bool, error) {
	b, err := f.await(ctx)
	if err != nil {
		f.metrics.observeOp("is_liked", err)
		return false, err
	}
	liked, err := b.IsPostLikedByUser(ctx, postID, userID)
	f.metrics.observeOp("is_liked", err)
	return liked, err
}

// Check lists posts whose likes_count disagrees with their likes.
// A consistent store returns an empty slice.
func (f *Facade) Check(ctx context.Context) ([]model.CountMismatch, error) {
	b, err := f.await(ctx)
	if err != nil {
		return nil, err
	}
	return b.CountMismatches(ctx)
}

// mutated logs a successful mutation and schedules a snapshot.
func (f *Facade) mutated(op string, attrs ...any) {
	f.logger.Debug(op, attrs...)
	f.writer.Request()
}

// Flush waits until every snapshot requested before the call is written
// and returns the latest write's error.
func (f *Facade) Flush(ctx context.Context) error {
	if _, err := f.await(ctx); err != nil {
		if f.initErr != nil && errors.Is(err, f.initErr) {
			return nil
		}
		return err
	}
	return f.writer.Flush(ctx)
}

// Close flushes pending snapshots, stops background work and closes the
// backend. Later operations return ErrClosed.
//
// Close waits for initialization first. If ctx ends before that, Close
// returns ctx.Err() and the Facade stays open, so Close may be retried.
func (f *Facade) Close(ctx context.Context) error {
	select {
	case <-f.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	f.closeOnce.Do(func() {
		flushErr := f.writer.Flush(ctx)
		f.closed.Store(true)
		f.writer.Stop()
		f.cancel()
		f.bg.Wait()

		var closeErr error
		if f.backend != nil {
			closeErr = f.backend.Close()
		}
		f.closeErr = errors.Join(flushErr, closeErr)
		f.logger.Info("closed", "instance", f.instance)
	})
	return f.closeErr
}
