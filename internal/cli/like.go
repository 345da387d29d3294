package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// LikeResult reports a post's like state for the current user.
type LikeResult struct {
	PostID     int64 `json:"post_id"`
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likes_count"`
}

// NewLikeCommand creates the like command group.
func NewLikeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "like",
		Short: "Like and unlike posts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "toggle <post-id>",
		Short:         "Like a post, or unlike it if already liked",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				return runLike(ctx, e, args[0], true)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "status <post-id>",
		Short:         "Show whether the logged-in user likes a post",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				return runLike(ctx, e, args[0], false)
			})
		},
	})

	return cmd
}

func runLike(ctx context.Context, e *env, arg string, toggle bool) error {
	postID, err := parseID(e.out, "post id", arg)
	if err != nil {
		return err
	}
	user, err := e.currentUser(ctx)
	if err != nil {
		return err
	}

	var liked bool
	if toggle {
		liked, err = e.feed.ToggleLike(ctx, user, postID)
	} else {
		liked, err = e.store.IsPostLikedByUser(ctx, postID, user.ID)
	}
	if err != nil {
		return e.out.Fail("like failed", err)
	}

	post, _, err := e.store.GetPostByID(ctx, postID)
	if err != nil {
		return e.out.Fail("lookup failed", err)
	}
	res := LikeResult{PostID: postID, Liked: liked, LikesCount: post.LikesCount}

	if e.out.Format == "json" {
		return e.out.Success(res)
	}
	state := "not liked"
	if liked {
		state = "liked"
	}
	fmt.Fprintf(e.out.Writer, "Post %d: %s (%d %s)\n",
		postID, state, res.LikesCount, plural(res.LikesCount, "like", "likes"))
	return nil
}
