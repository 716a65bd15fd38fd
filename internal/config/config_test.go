package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"QASYNC_CONFIG_PATH", "QASYNC_STATE_BACKEND", "QASYNC_STATE_PATH", "QASYNC_LOG_LEVEL",
		"QASYNC_LOG_FORMAT", "QASYNC_SOURCE", "QASYNC_SLACK_TOKEN", "QASYNC_TRACKER",
		"QASYNC_LINEAR_API_KEY", "QASYNC_SERVER_HOST", "QASYNC_SERVER_PORT", "QASYNC_API_KEY",
		"QASYNC_TRANSPORT",
	} {
		t.Setenv(key, "")
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "file", cfg.State.Backend)
	require.Equal(t, filepath.Join(home, ".qa-sync", "state.json"), cfg.State.Path)
	require.Equal(t, 30*time.Second, cfg.Sync.PollInterval)
	require.Equal(t, 3, cfg.Sync.MaxAttempts)
	require.True(t, cfg.Sync.IntentLog)
	require.Equal(t, 30, cfg.Sync.TitleMax)
	require.InDelta(t, 0.6, cfg.Dedup.Threshold, 1e-9)
	require.Equal(t, "stdio", cfg.Transport.Mode)
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state:
  backend: sqlite
  path: /tmp/qa.db
sync:
  poll_interval: 1m
  intent_log: false
dedup:
  threshold: 0.8
tracker:
  kind: local
log:
  level: debug
`), 0o600))
	t.Setenv("QASYNC_LOG_LEVEL", "warn")
	t.Setenv("QASYNC_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.State.Backend)
	require.Equal(t, "/tmp/qa.db", cfg.State.Path)
	require.Equal(t, time.Minute, cfg.Sync.PollInterval)
	require.False(t, cfg.Sync.IntentLog)
	require.InDelta(t, 0.8, cfg.Dedup.Threshold, 1e-9)
	require.Equal(t, "local", cfg.Tracker.Kind)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 3, cfg.Sync.MaxAttempts, "unset keys keep defaults")
}

func TestLoad_DefaultFileInHome(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".qa-sync"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".qa-sync", "config.yaml"), []byte("source:\n  kind: jsonl\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "jsonl", cfg.Source.Kind)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("QASYNC_SERVER_PORT", "abc")
	_, err = Load("")
	require.ErrorContains(t, err, "QASYNC_SERVER_PORT")

	t.Setenv("QASYNC_SERVER_PORT", "")
	t.Setenv("QASYNC_STATE_BACKEND", "postgres")
	_, err = Load("")
	require.ErrorContains(t, err, "state.backend")
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state: [\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "parse config file")
}
