package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/persistence"
	"github.com/roach88/feedstore/internal/slot"
	"github.com/roach88/feedstore/internal/store"
	"github.com/roach88/feedstore/internal/testutil"
)

// Harness executes scenario steps against one Facade.
type Harness struct {
	facade *persistence.Facade
	clock  *testutil.DeterministicClock
	logger *slog.Logger

	// ids holds the values bound by "as".
	ids map[string]int64
}

// opFunc performs one operation and fills in ev. An error carrying a
// store error code is a step outcome; any other error aborts the run.
type opFunc func(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error

var operations = map[string]opFunc{
	"create_user":   opCreateUser,
	"authenticate":  opAuthenticate,
	"get_user":      opGetUser,
	"create_post":   opCreatePost,
	"get_all_posts": opGetAllPosts,
	"get_post":      opGetPost,
	"add_comment":   opAddComment,
	"get_comments":  opGetComments,
	"toggle_like":   opToggleLike,
	"is_liked":      opIsLiked,
	"check":         opCheck,
	"reload":        opReload,
}

// Run executes a scenario against a fresh Facade of the given kind.
//
// Each run uses in-memory slots and a deterministic clock, so the same
// scenario always yields the same trace.
func Run(scenario *Scenario, kind store.Kind) (*Result, error) {
	ctx := context.Background()

	mode := persistence.ModeFallback
	if kind == store.KindRelational {
		mode = persistence.ModeRelational
	}

	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	facade, err := persistence.New(persistence.Options{
		Mode:          mode,
		Slots:         slot.NewMemory(),
		Clock:         clock,
		Logger:        logger,
		UserCacheSize: -1,
		InstanceID:    "harness",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create facade: %w", err)
	}
	defer facade.Close(ctx)

	if _, err := facade.Backend(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", kind, err)
	}

	h := &Harness{
		facade: facade,
		clock:  clock,
		logger: logger,
		ids:    map[string]int64{},
	}

	result := NewResult(kind.String())
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Facade:   facade,
		Ctx:      ctx,
		Bindings: h.ids,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSetup runs all setup steps. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []FlowStep, result *Result) error {
	for i, step := range setup {
		ev, err := h.execute(ctx, len(result.Trace)+1, step)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if !ev.OK {
			return fmt.Errorf("setup step %d: %s failed with %s", i, step.Op, ev.Error)
		}
		result.AddTrace(ev)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		ev, err := h.execute(ctx, len(result.Trace)+1, step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		result.AddTrace(ev)

		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}

		h.logger.Info("flow step completed",
			"step", ev.Step,
			"op", ev.Op,
			"ok", ev.OK,
			"error", ev.Error,
		)
	}
	return nil
}

// execute resolves bindings, runs the step and records its outcome.
func (h *Harness) execute(ctx context.Context, seq int, step FlowStep) (TraceEvent, error) {
	args, err := h.resolve(step.Args)
	if err != nil {
		return TraceEvent{}, err
	}

	ev := TraceEvent{Step: seq, Op: step.Op, Args: args}
	op, ok := operations[step.Op]
	if !ok {
		return TraceEvent{}, fmt.Errorf("unknown op %q", step.Op)
	}

	err = op(ctx, h, args, &ev)
	if code := store.CodeOf(err); code != "" {
		ev.Error = string(code)
	} else if err != nil {
		return TraceEvent{}, fmt.Errorf("%s: %w", step.Op, err)
	} else {
		ev.OK = true
	}

	if step.As != "" && ev.OK {
		h.ids[step.As] = ev.ID
	}
	return ev, nil
}

// resolve replaces "$name" strings with bound ids.
func (h *Harness) resolve(args map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if ref, ok := v.(string); ok && strings.HasPrefix(ref, "$") {
			id, bound := h.ids[ref[1:]]
			if !bound {
				return nil, fmt.Errorf("args.%s: %s is not bound", k, ref)
			}
			v = id
		}
		out[k] = v
	}
	return out, nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(expect *ExpectClause, ev TraceEvent) []string {
	if expect == nil {
		if !ev.OK {
			return []string{fmt.Sprintf("expected success, got %s", ev.Error)}
		}
		return nil
	}

	var msgs []string
	if expect.Error != "" {
		if ev.Error != expect.Error {
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %q", expect.Error, ev.Error))
		}
		return msgs
	}
	if !ev.OK {
		return []string{fmt.Sprintf("expected success, got %s", ev.Error)}
	}

	if expect.ID != nil && *expect.ID != ev.ID {
		msgs = append(msgs, fmt.Sprintf("expected id %d, got %d", *expect.ID, ev.ID))
	}
	if expect.Found != nil && (ev.Found == nil || *ev.Found != *expect.Found) {
		msgs = append(msgs, fmt.Sprintf("expected found=%t, got %s", *expect.Found, fmtBool(ev.Found)))
	}
	if expect.Liked != nil && (ev.Liked == nil || *ev.Liked != *expect.Liked) {
		msgs = append(msgs, fmt.Sprintf("expected liked=%t, got %s", *expect.Liked, fmtBool(ev.Liked)))
	}
	if expect.LikesCount != nil && (ev.LikesCount == nil || *ev.LikesCount != *expect.LikesCount) {
		msgs = append(msgs, fmt.Sprintf("expected likes_count=%d, got %s", *expect.LikesCount, fmtInt64(ev.LikesCount)))
	}
	if expect.Count != nil && (ev.Count == nil || *ev.Count != *expect.Count) {
		got := "unset"
		if ev.Count != nil {
			got = fmt.Sprint(*ev.Count)
		}
		msgs = append(msgs, fmt.Sprintf("expected count=%d, got %s", *expect.Count, got))
	}
	if expect.Author != "" && expect.Author != ev.Author {
		msgs = append(msgs, fmt.Sprintf("expected author %q, got %q", expect.Author, ev.Author))
	}
	return msgs
}

func fmtBool(b *bool) string {
	if b == nil {
		return "unset"
	}
	return fmt.Sprint(*b)
}

func fmtInt64(n *int64) string {
	if n == nil {
		return "unset"
	}
	return fmt.Sprint(*n)
}

// Operations.

func opCreateUser(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	id, err := h.facade.CreateUser(ctx, str(args, "name"), str(args, "email"), str(args, "credential"))
	ev.ID = id
	return err
}

func opAuthenticate(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	u, found, err := h.facade.AuthenticateUser(ctx, str(args, "email"), str(args, "credential"))
	if err != nil {
		return err
	}
	ev.Found = boolPtr(found)
	ev.ID = u.ID
	ev.Author = u.Name
	return nil
}

func opGetUser(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	id, err := num(args, "user")
	if err != nil {
		return err
	}
	u, found, err := h.facade.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	ev.Found = boolPtr(found)
	ev.ID = u.ID
	ev.Author = u.Name
	return nil
}

func opCreatePost(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	author, err := num(args, "author")
	if err != nil {
		return err
	}
	id, err := h.facade.CreatePost(ctx, model.NewPost{
		Title:       str(args, "title"),
		Description: str(args, "description"),
		Tags:        str(args, "tags"),
		Image:       str(args, "image"),
		Audio:       str(args, "audio"),
		Video:       str(args, "video"),
		AuthorID:    author,
	})
	ev.ID = id
	return err
}

func opGetAllPosts(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	posts, err := h.facade.GetAllPosts(ctx)
	if err != nil {
		return err
	}
	ev.Count = intPtr(len(posts))
	if len(posts) > 0 {
		// The newest post leads the feed.
		ev.ID = posts[0].ID
		ev.Author = posts[0].AuthorName
	}
	return nil
}

func opGetPost(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	id, err := num(args, "post")
	if err != nil {
		return err
	}
	p, found, err := h.facade.GetPostByID(ctx, id)
	if err != nil {
		return err
	}
	ev.Found = boolPtr(found)
	if found {
		ev.ID = p.ID
		ev.Author = p.AuthorName
		ev.LikesCount = int64Ptr(p.LikesCount)
	}
	return nil
}

func opAddComment(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	postID, err := num(args, "post")
	if err != nil {
		return err
	}
	userID, err := num(args, "user")
	if err != nil {
		return err
	}
	id, err := h.facade.AddComment(ctx, postID, userID, str(args, "content"))
	ev.ID = id
	return err
}

func opGetComments(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	postID, err := num(args, "post")
	if err != nil {
		return err
	}
	comments, err := h.facade.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return err
	}
	ev.Count = intPtr(len(comments))
	if len(comments) > 0 {
		// The oldest comment leads the thread.
		ev.ID = comments[0].ID
		ev.Author = comments[0].UserName
	}
	return nil
}

func opToggleLike(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	postID, err := num(args, "post")
	if err != nil {
		return err
	}
	userID, err := num(args, "user")
	if err != nil {
		return err
	}
	liked, err := h.facade.ToggleLike(ctx, postID, userID)
	if err != nil {
		return err
	}
	ev.Liked = boolPtr(liked)

	p, found, err := h.facade.GetPostByID(ctx, postID)
	if err != nil {
		return err
	}
	if found {
		ev.LikesCount = int64Ptr(p.LikesCount)
	}
	return nil
}

func opIsLiked(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	postID, err := num(args, "post")
	if err != nil {
		return err
	}
	userID, err := num(args, "user")
	if err != nil {
		return err
	}
	liked, err := h.facade.IsPostLikedByUser(ctx, postID, userID)
	if err != nil {
		return err
	}
	ev.Liked = boolPtr(liked)
	return nil
}

func opCheck(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	mismatches, err := h.facade.Check(ctx)
	if err != nil {
		return err
	}
	ev.Count = intPtr(len(mismatches))
	return nil
}

// opReload exports the store and imports the result back.
func opReload(ctx context.Context, h *Harness, args map[string]interface{}, ev *TraceEvent) error {
	blob, err := h.facade.Export(ctx)
	if err != nil {
		return err
	}
	return h.facade.Import(ctx, blob)
}

// str returns a string argument, or "" when absent.
func str(args map[string]interface{}, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// num returns an integer argument. YAML integers decode as int; bound
// ids are int64.
func num(args map[string]interface{}, key string) (int64, error) {
	switch v := args[key].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	case nil:
		return 0, fmt.Errorf("args.%s is required", key)
	}
	return 0, fmt.Errorf("args.%s: want integer, got %T", key, args[key])
}
