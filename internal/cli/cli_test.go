package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/qasync/internal/source"
	"github.com/rpggio/qasync/internal/source/jsonl"
)

type env struct {
	dir        string
	configPath string
	events     *jsonl.Source
}

func newEnv(t *testing.T) *env {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"QASYNC_CONFIG_PATH", "QASYNC_STATE_BACKEND", "QASYNC_STATE_PATH", "QASYNC_LOG_LEVEL",
		"QASYNC_LOG_FORMAT", "QASYNC_SOURCE", "QASYNC_TRACKER", "QASYNC_TRANSPORT",
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	e := &env{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		events:     jsonl.New(filepath.Join(dir, "events")),
	}
	cfg := fmt.Sprintf(`state:
  backend: file
  path: %s
source:
  kind: jsonl
  jsonl:
    dir: %s
tracker:
  kind: local
  local:
    path: %s
log:
  level: error
`, filepath.Join(dir, "state.json"), e.events.Dir, filepath.Join(dir, "tracker.db"))
	require.NoError(t, os.WriteFile(e.configPath, []byte(cfg), 0o600))
	return e
}

func (e *env) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", e.configPath}, args...)
	code := execute(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestCLI_CreateListGet(t *testing.T) {
	e := newEnv(t)

	code, out, _ := e.run(t, "create", "demo", `{"channel":"C1","site_url":"https://example.com"}`)
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Project 'demo' created.")

	code, out, _ = e.run(t, "list")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Projects:")
	require.Contains(t, out, "  - demo (channel: C1, records: 0)")

	code, out, _ = e.run(t, "--format", "json", "get", "demo")
	require.Equal(t, ExitSuccess, code)
	var p struct {
		Name   string `json:"name"`
		Config struct {
			Channel string `json:"channel"`
			SiteURL string `json:"site_url"`
		} `json:"config"`
	}
	decodeData(t, out, &p)
	require.Equal(t, "C1", p.Config.Channel)
	require.Equal(t, "https://example.com", p.Config.SiteURL)
}

func TestCLI_CreateFromFileWithFlagOverride(t *testing.T) {
	e := newEnv(t)
	doc := filepath.Join(e.dir, "project.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("channel: C1\nthread: \"1700000000.000100\"\n"), 0o600))

	code, _, _ := e.run(t, "create", "demo", "@"+doc, "--channel", "C2")
	require.Equal(t, ExitSuccess, code)

	code, out, _ := e.run(t, "--format", "json", "get", "demo")
	require.Equal(t, ExitSuccess, code)
	var p struct {
		Config struct {
			Channel string `json:"channel"`
			Thread  string `json:"thread"`
		} `json:"config"`
	}
	decodeData(t, out, &p)
	require.Equal(t, "C2", p.Config.Channel)
	require.Equal(t, "1700000000.000100", p.Config.Thread)
}

func TestCLI_ExitCodes(t *testing.T) {
	e := newEnv(t)
	code, _, _ := e.run(t, "create", "demo")
	require.Equal(t, ExitSuccess, code)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"already exists", []string{"create", "demo"}, ExitAlreadyExists},
		{"not found", []string{"get", "missing"}, ExitNotFound},
		{"stats not found", []string{"stats", "missing"}, ExitNotFound},
		{"missing args", []string{"get"}, ExitUsage},
		{"unknown command", []string{"frobnicate"}, ExitUsage},
		{"unknown flag", []string{"list", "--nope"}, ExitUsage},
		{"bad format", []string{"--format", "xml", "list"}, ExitUsage},
		{"bad category", []string{"mark-synced", "demo", "e1", "QA-1", "feature"}, ExitUsage},
		{"bad interval", []string{"watch", "demo", "soon"}, ExitUsage},
		{"bad config doc", []string{"create", "other", "{not yaml: ["}, ExitUsage},
		{"invalid name", []string{"create", "bad/name"}, ExitUsage},
		{"bad scenarios", []string{"scenarios", "demo", "--total", "1", "--completed", "2"}, ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := e.run(t, tt.args...)
			require.Equal(t, tt.want, code, stderr)
		})
	}
}

func TestCLI_JSONError(t *testing.T) {
	e := newEnv(t)

	code, out, _ := e.run(t, "--format", "json", "get", "missing")
	require.Equal(t, ExitNotFound, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "not_found", resp.Error.Code)
	require.Equal(t, ExitNotFound, resp.Error.ExitCode)
}

func TestCLI_MarkSyncedTwice(t *testing.T) {
	e := newEnv(t)
	code, _, _ := e.run(t, "create", "demo")
	require.Equal(t, ExitSuccess, code)

	code, out, _ := e.run(t, "mark-synced", "demo", "e1", "QA-1", "data-error")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Marked e1 -> QA-1 (data_error)")

	code, out, _ = e.run(t, "mark-synced", "demo", "e1", "QA-2", "bug")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "e1 already synced")

	code, out, _ = e.run(t, "stats", "demo")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Stats for 'demo':")
	require.Contains(t, out, "    - Data errors: 1")
	require.Contains(t, out, "    - Bugs: 0")
}

func TestCLI_SyncStatsStatus(t *testing.T) {
	e := newEnv(t)
	code, _, _ := e.run(t, "create", "demo", "--channel", "C1")
	require.Equal(t, ExitSuccess, code)
	require.NoError(t, e.events.Append("C1",
		source.Event{ID: "1700000001.000100", Text: "결제 버튼 안 눌림"},
		source.Event{ID: "1700000002.000100", Text: "로고 깨짐"},
	))

	code, out, stderr := e.run(t, "sync", "demo")
	require.Equal(t, ExitSuccess, code, stderr)
	require.Contains(t, out, "demo: 2 created, 0 merged, 0 skipped")

	code, out, _ = e.run(t, "--format", "json", "sync", "demo")
	require.Equal(t, ExitSuccess, code)
	var rep struct {
		Created int `json:"created"`
		Skipped int `json:"skipped"`
	}
	decodeData(t, out, &rep)
	require.Equal(t, 0, rep.Created)
	require.Equal(t, 2, rep.Skipped)

	code, out, _ = e.run(t, "stats", "demo")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "  Issues: 2")
	require.Contains(t, out, "    - Bugs: 1")
	require.Contains(t, out, "    - Improvements: 1")

	code, out, _ = e.run(t, "status", "demo")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Project: demo")
	require.Contains(t, out, "  Channel: C1")
	require.Contains(t, out, "  Messages synced: 2")
	require.Contains(t, out, "  Cursor C1: 1700000002.000100")
	require.Contains(t, out, "  Lease: free")

	code, out, _ = e.run(t, "activity", "demo", "--type", "event_synced")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "event_synced")
}

func TestCLI_WatchMaxCycles(t *testing.T) {
	e := newEnv(t)
	code, _, _ := e.run(t, "create", "demo", "--channel", "C1")
	require.Equal(t, ExitSuccess, code)
	require.NoError(t, e.events.Append("C1", source.Event{ID: "1700000001.000100", Text: "버튼 에러남"}))

	code, out, stderr := e.run(t, "--format", "json", "watch", "demo", "1", "--max-cycles", "1")
	require.Equal(t, ExitSuccess, code, stderr)
	var rep struct {
		Cycles  int `json:"cycles"`
		Created int `json:"created"`
	}
	decodeData(t, out, &rep)
	require.Equal(t, 1, rep.Cycles)
	require.Equal(t, 1, rep.Created)
}

func TestCLI_SyncWithoutChannelFails(t *testing.T) {
	e := newEnv(t)
	code, _, _ := e.run(t, "create", "demo")
	require.Equal(t, ExitSuccess, code)

	code, _, stderr := e.run(t, "sync", "demo")
	require.Equal(t, ExitFailure, code)
	require.Contains(t, stderr, "no source channel")
}

func TestCLI_CorruptStateFile(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "state.json"), []byte("{not json"), 0o600))

	code, _, _ := e.run(t, "list")
	require.Equal(t, ExitCorruption, code)

	data, err := os.ReadFile(filepath.Join(e.dir, "state.json"))
	require.NoError(t, err)
	require.Equal(t, "{not json", string(data))
}

func TestCLI_StateIOFailureIsTransient(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.Mkdir(filepath.Join(e.dir, "state.json"), 0o755))

	code, _, stderr := e.run(t, "list")
	require.Equal(t, ExitTransient, code, stderr)

	code, _, stderr = e.run(t, "create", "demo", "--channel", "C1")
	require.Equal(t, ExitTransient, code, stderr)
}

func TestCLI_MissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	t.Setenv("HOME", t.TempDir())
	code := execute(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "list"}, &stdout, &stderr)
	require.Equal(t, ExitUsage, code)
	require.Contains(t, stderr.String(), "loading config")
}
