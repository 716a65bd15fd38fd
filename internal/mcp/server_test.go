package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/qasync/internal/app"
	"github.com/rpggio/qasync/internal/config"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/rpggio/qasync/internal/source"
	"github.com/rpggio/qasync/internal/source/jsonl"
	"github.com/rpggio/qasync/internal/syncer"
)

type testEnv struct {
	app     *app.App
	events  *jsonl.Source
	session *sdkmcp.ClientSession
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.State.Path = filepath.Join(dir, "state.json")
	cfg.Source.Kind = "jsonl"
	cfg.Source.JSONL.Dir = filepath.Join(dir, "events")
	cfg.Tracker.Kind = "local"
	cfg.Tracker.Local.Path = filepath.Join(dir, "tracker.db")

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	server := NewServer(Config{Services: AppServices(a)})
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	_, err = server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return &testEnv{app: a, events: jsonl.New(cfg.Source.JSONL.Dir), session: session}
}

func (e *testEnv) call(t *testing.T, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	res, err := e.session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res
}

// callJSON calls a tool that must succeed and decodes its text content.
func (e *testEnv) callJSON(t *testing.T, name string, args map[string]any, out any) {
	t.Helper()
	res := e.call(t, name, args)
	require.False(t, res.IsError, "tool error: %s", text(res))
	require.NoError(t, json.Unmarshal([]byte(text(res)), out))
}

func text(res *sdkmcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	if tc, ok := res.Content[0].(*sdkmcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestServer_ListsTools(t *testing.T) {
	env := newTestEnv(t)

	tools, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"list_projects", "get_project", "create_project", "project_stats",
		"mark_synced", "sync_project", "project_status", "recent_activity",
	}, names)

	initRes := env.session.InitializeResult()
	require.Equal(t, ServerName, initRes.ServerInfo.Name)
}

func TestServer_ProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var created project.Project
	env.callJSON(t, "create_project", map[string]any{"name": "demo", "channel": "C1"}, &created)
	require.Equal(t, "demo", created.Name)
	require.Equal(t, "C1", created.Config.Channel)

	var list []ProjectSummaryResponse
	env.callJSON(t, "list_projects", map[string]any{}, &list)
	require.Len(t, list, 1)
	require.Equal(t, "C1", list[0].Channel)

	var got project.Project
	env.callJSON(t, "get_project", map[string]any{"name": "demo"}, &got)
	require.Equal(t, "demo", got.Name)

	res := env.call(t, "create_project", map[string]any{"name": "demo"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "ALREADY_EXISTS")

	res = env.call(t, "get_project", map[string]any{"name": "missing"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "PROJECT_NOT_FOUND")
}

func TestServer_SyncAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.app.Projects.Create(ctx, project.CreateRequest{Name: "demo", Config: project.Config{Channel: "C1"}})
	require.NoError(t, err)
	require.NoError(t, env.events.Append("C1",
		source.Event{ID: "1700000001.000100", Text: "결제 버튼 안 눌림"},
		source.Event{ID: "1700000002.000100", Text: "로고 깨짐"},
	))

	var rep syncer.Report
	env.callJSON(t, "sync_project", map[string]any{"name": "demo"}, &rep)
	require.Equal(t, 2, rep.Created)

	env.callJSON(t, "sync_project", map[string]any{"name": "demo"}, &rep)
	require.Equal(t, 0, rep.Created)
	require.Equal(t, 2, rep.Skipped)

	var summary struct {
		Total  int `json:"total"`
		Issues int `json:"issues"`
		Counts struct {
			Bug         int `json:"bug"`
			Improvement int `json:"improvement"`
		} `json:"counts"`
	}
	env.callJSON(t, "project_stats", map[string]any{"name": "demo"}, &summary)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Issues)
	require.Equal(t, 1, summary.Counts.Bug)
	require.Equal(t, 1, summary.Counts.Improvement)

	var status app.Status
	env.callJSON(t, "project_status", map[string]any{"name": "demo"}, &status)
	require.Len(t, status.Cursors, 1)
	require.Equal(t, "1700000002.000100", status.Cursors[0].Position)
}

func TestServer_MarkSynced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.app.Projects.Create(ctx, project.CreateRequest{Name: "demo"})
	require.NoError(t, err)

	args := map[string]any{"project": "demo", "event_id": "e1", "issue_id": "QA-9", "category": "data-error"}
	var resp MarkSyncedResponse
	env.callJSON(t, "mark_synced", args, &resp)
	require.False(t, resp.AlreadySynced)
	require.Equal(t, "data_error", string(resp.Record.Category))

	env.callJSON(t, "mark_synced", args, &resp)
	require.True(t, resp.AlreadySynced)

	args["category"] = "feature"
	res := env.call(t, "mark_synced", args)
	require.True(t, res.IsError)
	require.Contains(t, text(res), "INVALID_INPUT")

	var activity RecentActivityResponse
	env.callJSON(t, "recent_activity", map[string]any{"project": "demo", "types": []string{"marked_synced"}}, &activity)
	require.Len(t, activity.Entries, 1)
}

func TestServer_SyncWithoutChannel(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Projects.Create(context.Background(), project.CreateRequest{Name: "bare"})
	require.NoError(t, err)

	res := env.call(t, "sync_project", map[string]any{"name": "bare"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "NO_CHANNEL")
}

func TestServer_DocResources(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.session.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "qasync://docs/index"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "One message, one outcome")
}

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Equal(t, "PROJECT_NOT_FOUND", MapError(project.ErrProjectNotFound).Code)
	require.Nil(t, MapError(context.Canceled))
	require.ErrorIs(t, MapError(project.ErrAlreadyExists), project.ErrAlreadyExists)
	require.Equal(t, "TRANSIENT", MapError(fmt.Errorf("listing projects: %w", repository.ErrTransient)).Code)
}
