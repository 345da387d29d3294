package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewCommentCommand creates the comment command group.
func NewCommentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Comment on posts",
	}

	cmd.AddCommand(newCommentAddCommand(rootOpts))
	cmd.AddCommand(newCommentListCommand(rootOpts))

	return cmd
}

func newCommentAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <post-id> <text>...",
		Short: "Comment on a post as the logged-in user",
		Long: `Comment on a post as the logged-in user.

Example:
  feedstore comment add 3 Nice write-up, thanks!`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				postID, err := parseID(e.out, "post id", args[0])
				if err != nil {
					return err
				}
				user, err := e.currentUser(ctx)
				if err != nil {
					return err
				}

				id, err := e.feed.Comment(ctx, user, postID, strings.Join(args[1:], " "))
				if err != nil {
					return e.out.Fail("failed to add comment", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(map[string]int64{"id": id})
				}
				fmt.Fprintf(e.out.Writer, "Added comment %d to post %d\n", id, postID)
				return nil
			})
		},
	}
}

func newCommentListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <post-id>",
		Short:         "List a post's comments, oldest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				postID, err := parseID(e.out, "post id", args[0])
				if err != nil {
					return err
				}
				comments, err := e.store.GetCommentsByPostID(ctx, postID)
				if err != nil {
					return e.out.Fail("failed to list comments", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(comments)
				}
				if len(comments) == 0 {
					fmt.Fprintln(e.out.Writer, "No comments yet.")
					return nil
				}
				rows := make([][]string, 0, len(comments))
				for _, c := range comments {
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10),
						c.UserName,
						c.Content,
						relativeTime(c.CreatedAt),
					})
				}
				return e.out.Table([]string{"ID", "Author", "Comment", "Posted"}, rows)
			})
		},
	}
}
