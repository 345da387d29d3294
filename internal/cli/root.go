package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is an optional YAML config file.
	Config string

	// DataDir and Mode override the loaded configuration when set.
	DataDir string
	Mode    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the feedstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "feedstore",
		Short: "feedstore - local social feed storage",
		Long: `A local store for users, posts, comments and likes.

Data lives in a relational database snapshotted into a data directory.
If the database engine cannot start, feedstore falls back to a record
store with the same behaviour.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding snapshots (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Mode, "mode", "", "backend mode: auto|relational|fallback (overrides config)")

	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewPostCommand(opts))
	cmd.AddCommand(NewCommentCommand(opts))
	cmd.AddCommand(NewLikeCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
