package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/feedstore/internal/account"
	"github.com/roach88/feedstore/internal/config"
	"github.com/roach88/feedstore/internal/feed"
	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/persistence"
	"github.com/roach88/feedstore/internal/slot"
)

// envFiles are read for FEEDSTORE_* settings when present.
var envFiles = []string{".env"}

// env is everything a command needs, built from the merged configuration.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	out      *OutputFormatter
	slots    *slot.Store
	metrics  *prometheus.Registry
	store    *persistence.Facade
	accounts *account.Service
	session  *account.Session
	feed     *feed.Service
}

// loadConfig merges the config file, environment and global flags.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(config.Options{Path: opts.Config, EnvFiles: envFiles})
	if err != nil {
		return config.Config{}, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openEnv loads configuration and starts the persistence Facade.
// Callers must call close.
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	out := newFormatter(cmd, opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = out.Error(CodeValidation, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	slots, err := slot.NewOS(cfg.DataDir)
	if err != nil {
		return nil, out.Fail("failed to open data directory", err)
	}

	seed, err := readSeed(cfg.SeedPath)
	if err != nil {
		return nil, out.Fail("failed to read seed", err)
	}
	if cfg.SeedPath != "" && seed == nil {
		logger.Warn("seed file not found", "path", cfg.SeedPath)
	}

	mode, err := persistence.ParseMode(cfg.Mode)
	if err != nil {
		return nil, out.Fail("invalid mode", err)
	}

	reg := prometheus.NewRegistry()
	facade, err := persistence.New(persistence.Options{
		Mode:           mode,
		Slots:          slots,
		KeyPrefix:      cfg.KeyPrefix,
		Seed:           seed,
		Logger:         logger,
		BackupInterval: cfg.BackupInterval,
		UserCacheSize:  cfg.UserCacheSize,
		Registerer:     reg,
	})
	if err != nil {
		return nil, out.Fail("failed to start store", err)
	}

	out.VerboseLog("data dir: %s, mode: %s", cfg.DataDir, mode)

	return &env{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		slots:    slots,
		metrics:  reg,
		store:    facade,
		accounts: account.NewService(facade, logger),
		session:  account.NewSession(slots, cfg.KeyPrefix),
		feed:     feed.NewService(facade),
	}, nil
}

// readSeed returns nil when path is empty or missing.
func readSeed(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ready waits for the Facade and records the active backend on the
// formatter.
func (e *env) ready(ctx context.Context) error {
	kind, err := e.store.Backend(ctx)
	if err != nil {
		return e.out.Fail("store unavailable", err)
	}
	e.out.Backend = kind.String()
	return nil
}

// close flushes pending snapshots. A flush failure is reported but does
// not override an earlier command error.
func (e *env) close(ctx context.Context, cmdErr error) error {
	err := e.store.Close(ctx)
	if err != nil {
		e.logger.Error("error closing store", "error", err)
		if cmdErr == nil {
			return e.out.Fail("failed to persist changes", err)
		}
	}
	return cmdErr
}

// withEnv runs fn against an open, ready environment.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := openEnv(cmd, opts)
	if err != nil {
		return err
	}
	if err := e.ready(ctx); err != nil {
		return e.close(ctx, err)
	}
	return e.close(ctx, fn(ctx, e))
}

// currentUser resolves the logged-in user.
func (e *env) currentUser(ctx context.Context) (model.User, error) {
	u, err := e.session.Resolve(ctx, e.store)
	if err != nil {
		return model.User{}, e.out.Fail("not logged in", err)
	}
	return u, nil
}
