package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/feedstore/internal/account"
	"github.com/roach88/feedstore/internal/model"
)

// UserOptions holds flags for the user commands.
type UserOptions struct {
	*RootOptions
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register, log in and inspect users",
	}

	cmd.AddCommand(newUserRegisterCommand(rootOpts))
	cmd.AddCommand(newUserLoginCommand(rootOpts))
	cmd.AddCommand(newUserLogoutCommand(rootOpts))
	cmd.AddCommand(newUserWhoamiCommand(rootOpts))
	cmd.AddCommand(newUserShowCommand(rootOpts))

	return cmd
}

func newUserRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Long: `Create an account and log in as it.

Example:
  feedstore user register --name Alice --email alice@example.com \
    --password secret123 --confirm-password secret123`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				return registerUser(ctx, e, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (at least 6 characters)")
	cmd.Flags().StringVar(&opts.ConfirmPassword, "confirm-password", "", "password again")

	return cmd
}

func registerUser(ctx context.Context, e *env, opts *UserOptions) error {
	req := account.RegisterRequest{
		Name:            opts.Name,
		Email:           opts.Email,
		Password:        opts.Password,
		ConfirmPassword: opts.ConfirmPassword,
	}
	if _, err := e.accounts.Register(ctx, req); err != nil {
		return e.out.Fail("registration failed", err)
	}

	// Registration logs the new user in.
	u, err := e.accounts.Login(ctx, account.LoginRequest{Email: opts.Email, Password: opts.Password})
	if err != nil {
		return e.out.Fail("login after registration failed", err)
	}
	if err := e.session.Set(ctx, u); err != nil {
		return e.out.Fail("failed to save session", err)
	}

	return outputUser(e.out, u, "Registered and logged in as")
}

func newUserLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "login",
		Short:         "Log in with email and password",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				u, err := e.accounts.Login(ctx, account.LoginRequest{Email: opts.Email, Password: opts.Password})
				if err != nil {
					return e.out.Fail("login failed", err)
				}
				if err := e.session.Set(ctx, u); err != nil {
					return e.out.Fail("failed to save session", err)
				}
				return outputUser(e.out, u, "Logged in as")
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")

	return cmd
}

func newUserLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Forget the current user",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				if err := e.session.Clear(ctx); err != nil {
					return e.out.Fail("failed to clear session", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(map[string]bool{"logged_out": true})
				}
				fmt.Fprintln(e.out.Writer, "Logged out")
				return nil
			})
		},
	}
}

func newUserWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whoami",
		Short:         "Show the logged-in user",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				u, err := e.currentUser(ctx)
				if err != nil {
					return err
				}
				return outputUser(e.out, u, "Logged in as")
			})
		},
	}
}

func newUserShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <user-id>",
		Short:         "Show a user by id",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				id, err := parseID(e.out, "user id", args[0])
				if err != nil {
					return err
				}
				u, found, err := e.store.GetUserByID(ctx, id)
				if err != nil {
					return e.out.Fail("lookup failed", err)
				}
				if !found {
					_ = e.out.Error(CodeNotFound, fmt.Sprintf("user %d not found", id), nil)
					return NewExitError(ExitFailure, fmt.Sprintf("user %d not found", id))
				}
				return outputUser(e.out, u, "User")
			})
		},
	}
}

func outputUser(out *OutputFormatter, u model.User, label string) error {
	u.Credential = ""
	if out.Format == "json" {
		return out.Success(u)
	}
	fmt.Fprintf(out.Writer, "%s %s <%s> (id %d, joined %s)\n",
		label, u.Name, u.Email, u.ID, relativeTime(u.CreatedAt))
	return nil
}

// relativeTime renders t like the feed does: "5 minutes ago".
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}
