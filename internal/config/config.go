// Package config loads feedstore settings.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, .env files, FEEDSTORE_* environment variables. Command-line flags
// are applied by the caller. The merged result is checked against an
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FEEDSTORE_"

// Config holds feedstore settings.
type Config struct {
	DataDir        string        `yaml:"data_dir" json:"data_dir"`
	Mode           string        `yaml:"mode" json:"mode"`
	KeyPrefix      string        `yaml:"key_prefix" json:"key_prefix"`
	SeedPath       string        `yaml:"seed_path" json:"seed_path,omitempty"`
	BackupInterval time.Duration `yaml:"backup_interval" json:"backup_interval"`
	UserCacheSize  int           `yaml:"user_cache_size" json:"user_cache_size"`
	LogLevel       string        `yaml:"log_level" json:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:        ".feedstore",
		Mode:           "auto",
		KeyPrefix:      "feedstore",
		BackupInterval: 30 * time.Second,
		UserCacheSize:  256,
		LogLevel:       "info",
	}
}

// Options control where Load looks.
type Options struct {
	// Path is a YAML file. Empty means no file; a missing file is an error.
	Path string

	// EnvFiles are .env files read if present. Process environment
	// variables take precedence over their values.
	EnvFiles []string

	// LookupEnv reads the process environment; os.LookupEnv when nil.
	LookupEnv func(string) (string, bool)
}

// Load merges defaults, file and environment, then validates.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := cfg.mergeFile(opts.Path); err != nil {
			return Config{}, err
		}
	}

	env, err := readEnv(opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.mergeEnv(env); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with the interval as text.
type fileConfig struct {
	DataDir        *string `yaml:"data_dir"`
	Mode           *string `yaml:"mode"`
	KeyPrefix      *string `yaml:"key_prefix"`
	SeedPath       *string `yaml:"seed_path"`
	BackupInterval *string `yaml:"backup_interval"`
	UserCacheSize  *int    `yaml:"user_cache_size"`
	LogLevel       *string `yaml:"log_level"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.DataDir, fc.DataDir)
	setString(&c.Mode, fc.Mode)
	setString(&c.KeyPrefix, fc.KeyPrefix)
	setString(&c.SeedPath, fc.SeedPath)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.UserCacheSize != nil {
		c.UserCacheSize = *fc.UserCacheSize
	}
	if fc.BackupInterval != nil {
		d, err := time.ParseDuration(*fc.BackupInterval)
		if err != nil {
			return fmt.Errorf("parse config %s: backup_interval: %w", path, err)
		}
		c.BackupInterval = d
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// readEnv returns FEEDSTORE_* variables from env files overlaid with the
// process environment.
func readEnv(opts Options) (map[string]string, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	env := map[string]string{}
	for _, file := range opts.EnvFiles {
		vals, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", file, err)
		}
		for k, v := range vals {
			if strings.HasPrefix(k, EnvPrefix) {
				env[k] = v
			}
		}
	}

	for _, name := range envNames {
		if v, ok := lookup(EnvPrefix + name); ok {
			env[EnvPrefix+name] = v
		}
	}
	return env, nil
}

var envNames = []string{
	"DATA_DIR", "MODE", "KEY_PREFIX", "SEED_PATH",
	"BACKUP_INTERVAL", "USER_CACHE_SIZE", "LOG_LEVEL",
}

func (c *Config) mergeEnv(env map[string]string) error {
	get := func(name string) (string, bool) {
		v, ok := env[EnvPrefix+name]
		return v, ok
	}

	if v, ok := get("DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("MODE"); ok {
		c.Mode = v
	}
	if v, ok := get("KEY_PREFIX"); ok {
		c.KeyPrefix = v
	}
	if v, ok := get("SEED_PATH"); ok {
		c.SeedPath = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("BACKUP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sBACKUP_INTERVAL: %w", EnvPrefix, err)
		}
		c.BackupInterval = d
	}
	if v, ok := get("USER_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sUSER_CACHE_SIZE: %w", EnvPrefix, err)
		}
		c.UserCacheSize = n
	}
	return nil
}

// Validate checks c against the CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if c.BackupInterval < 0 {
		return fmt.Errorf("invalid config: backup_interval must not be negative")
	}

	v := schema.Unify(ctx.Encode(c.fields()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fields is c in the shape the schema describes.
func (c Config) fields() map[string]any {
	return map[string]any{
		"data_dir":        c.DataDir,
		"mode":            c.Mode,
		"key_prefix":      c.KeyPrefix,
		"seed_path":       c.SeedPath,
		"backup_interval": c.BackupInterval.String(),
		"user_cache_size": c.UserCacheSize,
		"log_level":       c.LogLevel,
	}
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
