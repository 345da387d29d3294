package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/feedstore/internal/feed"
	"github.com/roach88/feedstore/internal/model"
)

// PostOptions holds flags for post create.
type PostOptions struct {
	*RootOptions
	Title       string
	Description string
	Tags        string
	Image       string
	Audio       string
	Video       string
}

// PostDetail is a post with its comments, as shown by post show.
type PostDetail struct {
	model.Post
	Comments []model.Comment `json:"comments"`
	Liked    bool            `json:"liked"`
}

// NewPostCommand creates the post command group.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish and browse posts",
	}

	cmd.AddCommand(newPostCreateCommand(rootOpts))
	cmd.AddCommand(newPostListCommand(rootOpts))
	cmd.AddCommand(newPostShowCommand(rootOpts))

	return cmd
}

func newPostCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a post as the logged-in user",
		Long: `Publish a post as the logged-in user.

Media files are embedded as data URLs. Their type is detected from content.

Example:
  feedstore post create --title "Go tips" --description "Use errors.Is" \
    --tags "go, errors" --image ./diagram.png`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				return createPost(ctx, e, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "post title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "post body")
	cmd.Flags().StringVar(&opts.Tags, "tags", "", "comma-separated tags")
	cmd.Flags().StringVar(&opts.Image, "image", "", "image file to attach")
	cmd.Flags().StringVar(&opts.Audio, "audio", "", "audio file to attach")
	cmd.Flags().StringVar(&opts.Video, "video", "", "video file to attach")

	return cmd
}

func createPost(ctx context.Context, e *env, opts *PostOptions) error {
	author, err := e.currentUser(ctx)
	if err != nil {
		return err
	}

	req := feed.PostRequest{
		Title:       opts.Title,
		Description: opts.Description,
		Tags:        opts.Tags,
	}
	for _, m := range []struct {
		path, family string
		dst          *string
	}{
		{opts.Image, "image", &req.Image},
		{opts.Audio, "audio", &req.Audio},
		{opts.Video, "video", &req.Video},
	} {
		url, err := dataURL(m.path, m.family)
		if err != nil {
			_ = e.out.Error(CodeValidation, err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid media", err)
		}
		*m.dst = url
		if url != "" {
			e.out.VerboseLog("attached %s (%s)", m.path, humanize.IBytes(uint64(len(url))))
		}
	}

	id, err := e.feed.Publish(ctx, author, req)
	if err != nil {
		return e.out.Fail("failed to create post", err)
	}

	if e.out.Format == "json" {
		return e.out.Success(map[string]int64{"id": id})
	}
	fmt.Fprintf(e.out.Writer, "Created post %d\n", id)
	return nil
}

func newPostListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List posts, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				posts, err := e.store.GetAllPosts(ctx)
				if err != nil {
					return e.out.Fail("failed to list posts", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(posts)
				}
				if len(posts) == 0 {
					fmt.Fprintln(e.out.Writer, "No posts yet.")
					return nil
				}
				rows := make([][]string, 0, len(posts))
				for _, p := range posts {
					rows = append(rows, []string{
						strconv.FormatInt(p.ID, 10),
						p.Title,
						p.AuthorName,
						strings.Join(p.TagList(), " "),
						strconv.FormatInt(p.LikesCount, 10),
						mediaSummary(p),
						relativeTime(p.CreatedAt),
					})
				}
				return e.out.Table([]string{"ID", "Title", "Author", "Tags", "Likes", "Media", "Posted"}, rows)
			})
		},
	}
}

func newPostShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <post-id>",
		Short:         "Show a post with its comments",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				id, err := parseID(e.out, "post id", args[0])
				if err != nil {
					return err
				}
				return showPost(ctx, e, id)
			})
		},
	}
}

func showPost(ctx context.Context, e *env, id int64) error {
	post, found, err := e.store.GetPostByID(ctx, id)
	if err != nil {
		return e.out.Fail("lookup failed", err)
	}
	if !found {
		return e.out.Fail("lookup failed", fmt.Errorf("%w: %d", feed.ErrPostNotFound, id))
	}

	comments, err := e.store.GetCommentsByPostID(ctx, id)
	if err != nil {
		return e.out.Fail("failed to load comments", err)
	}

	detail := PostDetail{Post: post, Comments: comments}
	if u, err := e.session.Current(ctx); err == nil {
		if detail.Liked, err = e.store.IsPostLikedByUser(ctx, id, u.ID); err != nil {
			return e.out.Fail("failed to load like state", err)
		}
	}

	if e.out.Format == "json" {
		return e.out.Success(detail)
	}

	w := e.out.Writer
	fmt.Fprintf(w, "%s\n", post.Title)
	fmt.Fprintf(w, "by %s, %s\n\n", post.AuthorName, relativeTime(post.CreatedAt))
	fmt.Fprintf(w, "%s\n\n", post.Description)
	if tags := post.TagList(); len(tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(tags, ", "))
	}
	if media := mediaSummary(post); media != "" {
		fmt.Fprintf(w, "Media: %s\n", media)
	}
	likes := fmt.Sprintf("%d %s", post.LikesCount, plural(post.LikesCount, "like", "likes"))
	if detail.Liked {
		likes += " (you like this)"
	}
	fmt.Fprintln(w, likes)

	fmt.Fprintf(w, "\nComments (%d)\n", len(comments))
	for _, c := range comments {
		fmt.Fprintf(w, "  %s, %s: %s\n", c.UserName, relativeTime(c.CreatedAt), c.Content)
	}
	return nil
}

// mediaSummary lists the MIME types of a post's attachments.
func mediaSummary(p model.Post) string {
	var types []string
	for _, url := range []string{p.Image, p.Audio, p.Video} {
		if t := mediaType(url); t != "" {
			types = append(types, t)
		}
	}
	return strings.Join(types, " ")
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// parseID parses a positive row id argument.
func parseID(out *OutputFormatter, what, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		msg := fmt.Sprintf("invalid %s %q", what, arg)
		_ = out.Error(CodeValidation, msg, nil)
		return 0, NewExitError(ExitCommandError, msg)
	}
	return id, nil
}
