package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/feedstore/internal/persistence"
)

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect, export, import and check the store",
	}

	cmd.AddCommand(newDBStatusCommand(rootOpts))
	cmd.AddCommand(newDBExportCommand(rootOpts))
	cmd.AddCommand(newDBImportCommand(rootOpts))
	cmd.AddCommand(newDBBackupCommand(rootOpts))
	cmd.AddCommand(newDBCheckCommand(rootOpts))

	return cmd
}

func newDBStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the active backend and snapshot slots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}

			// Status works even when the backend failed to start.
			select {
			case <-e.store.Ready():
			case <-ctx.Done():
				return e.close(ctx, e.out.Fail("store unavailable", ctx.Err()))
			}

			st, err := e.store.Status(ctx)
			if err != nil {
				return e.close(ctx, e.out.Fail("failed to read status", err))
			}
			e.out.Backend = st.Backend.String()

			metrics, err := gatherMetrics(e.metrics)
			if err != nil {
				return e.close(ctx, e.out.Fail("failed to read metrics", err))
			}
			return e.close(ctx, outputStatus(e.out, e.cfg.DataDir, StatusReport{Status: st, Metrics: metrics}))
		},
	}
}

// StatusReport is the output of db status: the Facade's status and the
// metrics this process collected.
type StatusReport struct {
	persistence.Status
	Metrics map[string]float64 `json:"metrics"`
}

func outputStatus(out *OutputFormatter, dataDir string, report StatusReport) error {
	if out.Format == "json" {
		return out.Success(report)
	}

	st := report.Status

	backend := st.Backend.String()
	if backend == "" {
		backend = "none"
	}
	rows := [][]string{
		{"Data dir", dataDir},
		{"Mode", string(st.Mode)},
		{"Backend", backend},
		{"Instance", st.Instance},
	}
	if st.InitError != "" {
		rows = append(rows, []string{"Init error", st.InitError})
	}
	if st.FallbackReason != "" {
		rows = append(rows, []string{"Fallback reason", st.FallbackReason})
	}
	rows = append(rows,
		slotRow("Snapshot", st.Snapshot),
		slotRow("Backup", st.Backup),
	)
	if !st.LastBackupAt.IsZero() {
		rows = append(rows, []string{"Last backup", st.LastBackupAt.Format(time.RFC3339)})
	}
	if st.LastSnapshotError != "" {
		rows = append(rows, []string{"Snapshot error", st.LastSnapshotError})
	}
	if st.LastBackupError != "" {
		rows = append(rows, []string{"Backup error", st.LastBackupError})
	}

	return out.Table([]string{"Field", "Value"}, rows)
}

func slotRow(label string, s persistence.SlotStatus) []string {
	if !s.Present {
		return []string{label, s.Key + " (empty)"}
	}
	return []string{label, fmt.Sprintf("%s, %s, written %s",
		s.Key, humanize.Bytes(uint64(s.Size)), relativeTime(s.ModTime))}
}

func newDBExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write a snapshot of the store to a file",
		Long: `Write a framed snapshot of the active backend to a file.

The file can be restored with "feedstore db import" on a store using the
same backend kind.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				blob, err := e.store.Export(ctx)
				if err != nil {
					return e.out.Fail("export failed", err)
				}
				if err := os.WriteFile(args[0], blob, 0o600); err != nil {
					return e.out.Fail("export failed", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(map[string]interface{}{"path": args[0], "bytes": len(blob)})
				}
				fmt.Fprintf(e.out.Writer, "Exported %s to %s\n", humanize.Bytes(uint64(len(blob))), args[0])
				return nil
			})
		},
	}
}

func newDBImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the store's contents with a snapshot file",
		Long: `Replace the store's contents with a snapshot file.

The file may be a snapshot written by "feedstore db export" or, for the
relational backend, a plain SQLite database file. An invalid file leaves
the store unchanged.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				blob, err := os.ReadFile(args[0])
				if err != nil {
					return e.out.Fail("import failed", err)
				}
				if err := e.store.Import(ctx, blob); err != nil {
					return e.out.Fail("import failed", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(map[string]interface{}{"path": args[0], "bytes": len(blob)})
				}
				fmt.Fprintf(e.out.Writer, "Imported %s from %s\n", humanize.Bytes(uint64(len(blob))), args[0])
				return nil
			})
		},
	}
}

func newDBBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "backup",
		Short:         "Copy the current state into the backup slot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				key, err := e.store.Backup(ctx)
				if err != nil {
					return e.out.Fail("backup failed", err)
				}
				if e.out.Format == "json" {
					return e.out.Success(map[string]string{"slot": key})
				}
				fmt.Fprintf(e.out.Writer, "Backed up to slot %s\n", key)
				return nil
			})
		},
	}
}

func newDBCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify like counts match like records",
		Long: `Verify that every post's likes_count equals the number of likes
referencing it. Exits 1 when any post disagrees.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, e *env) error {
				mismatches, err := e.store.Check(ctx)
				if err != nil {
					return e.out.Fail("check failed", err)
				}

				if len(mismatches) == 0 {
					if e.out.Format == "json" {
						return e.out.Success(mismatches)
					}
					fmt.Fprintln(e.out.Writer, "✓ Like counts consistent")
					return nil
				}

				msg := fmt.Sprintf("%d post(s) with inconsistent like counts", len(mismatches))
				if e.out.Format == "json" {
					_ = e.out.Error("COUNT_MISMATCH", msg, mismatches)
				} else {
					fmt.Fprintf(e.out.Writer, "✗ %s\n", msg)
					rows := make([][]string, 0, len(mismatches))
					for _, m := range mismatches {
						rows = append(rows, []string{
							strconv.FormatInt(m.PostID, 10),
							strconv.FormatInt(m.LikesCount, 10),
							strconv.FormatInt(m.LikeRows, 10),
						})
					}
					if err := e.out.Table([]string{"Post", "likes_count", "Likes"}, rows); err != nil {
						return err
					}
				}
				return NewExitError(ExitFailure, msg)
			})
		},
	}
}
