package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "feedstore.yaml", `
data_dir: /var/lib/feedstore
mode: fallback
key_prefix: roklearn
backup_interval: 5m
user_cache_size: -1
log_level: debug
`)

	cfg, err := Load(Options{Path: path, LookupEnv: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/feedstore", cfg.DataDir)
	assert.Equal(t, "fallback", cfg.Mode)
	assert.Equal(t, "roklearn", cfg.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.BackupInterval)
	assert.Equal(t, -1, cfg.UserCacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")
	cfg, err := Load(Options{Path: path, LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "colour: blue\n"},
		{"bad interval", "backup_interval: soon\n"},
		{"not yaml", "mode: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "c.yaml", tt.body)
			_, err := Load(Options{Path: path, LookupEnv: noEnv})
			require.Error(t, err)
		})
	}

	_, err := Load(Options{Path: filepath.Join(t.TempDir(), "missing.yaml"), LookupEnv: noEnv})
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "c.yaml", "mode: fallback\nlog_level: warn\n")
	cfg, err := Load(Options{
		Path: path,
		LookupEnv: envOf(map[string]string{
			"FEEDSTORE_MODE":            "relational",
			"FEEDSTORE_USER_CACHE_SIZE": "16",
			"FEEDSTORE_BACKUP_INTERVAL": "0",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "relational", cfg.Mode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 16, cfg.UserCacheSize)
	assert.Equal(t, time.Duration(0), cfg.BackupInterval)
}

func TestLoad_EnvFile(t *testing.T) {
	dotenv := writeFile(t, ".env", "FEEDSTORE_KEY_PREFIX=fromfile\nFEEDSTORE_LOG_LEVEL=error\nOTHER=ignored\n")

	cfg, err := Load(Options{
		EnvFiles:  []string{dotenv, filepath.Join(t.TempDir(), "absent.env")},
		LookupEnv: envOf(map[string]string{"FEEDSTORE_LOG_LEVEL": "debug"}),
	})
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.KeyPrefix)
	assert.Equal(t, "debug", cfg.LogLevel, "process environment wins over .env")
}

func TestLoad_EnvErrors(t *testing.T) {
	for _, env := range []map[string]string{
		{"FEEDSTORE_USER_CACHE_SIZE": "many"},
		{"FEEDSTORE_BACKUP_INTERVAL": "weekly"},
	} {
		_, err := Load(Options{LookupEnv: envOf(env)})
		assert.Error(t, err, "%v", env)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"seed path", func(c *Config) { c.SeedPath = "db.sqlite" }, true},
		{"fractional interval", func(c *Config) { c.BackupInterval = 1500 * time.Millisecond }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, false},
		{"bad mode", func(c *Config) { c.Mode = "sometimes" }, false},
		{"bad prefix", func(c *Config) { c.KeyPrefix = "Has Space" }, false},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, false},
		{"cache below -1", func(c *Config) { c.UserCacheSize = -2 }, false},
		{"negative interval", func(c *Config) { c.BackupInterval = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	for level, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR",
	} {
		cfg.LogLevel = level
		assert.Equal(t, want, cfg.Level().String())
	}
}
