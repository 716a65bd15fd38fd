// Package testserver runs the full qasync stack behind an httptest server
// for functional tests.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/qasync/internal/app"
	"github.com/rpggio/qasync/internal/config"
	"github.com/rpggio/qasync/internal/mcp"
	"github.com/rpggio/qasync/internal/source/jsonl"
	"github.com/rpggio/qasync/internal/transport"
)

type TestServer struct {
	Server *httptest.Server
	App    *app.App
	Events *jsonl.Source
	Token  string
}

// New starts a server with a file state backend, a JSONL source and a
// local tracker, all under t.TempDir. A non-empty token is required as
// bearer API key.
func New(t *testing.T, token string) *TestServer {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.State.Path = filepath.Join(dir, "state.json")
	cfg.Source.Kind = "jsonl"
	cfg.Source.JSONL.Dir = filepath.Join(dir, "events")
	cfg.Tracker.Kind = "local"
	cfg.Tracker.Local.Path = filepath.Join(dir, "tracker.db")
	cfg.Server.APIKey = token

	a, err := app.New(cfg, nil)
	require.NoError(t, err)

	server := mcp.NewServer(mcp.Config{Services: mcp.AppServices(a)})
	httpServer := httptest.NewServer(transport.NewHandler(server, transport.HTTPOptions{APIKey: token}))

	t.Cleanup(func() {
		httpServer.Close()
		_ = a.Close()
	})

	return &TestServer{
		Server: httpServer,
		App:    a,
		Events: jsonl.New(cfg.Source.JSONL.Dir),
		Token:  token,
	}
}

// Connect opens an MCP client session authenticated with token.
func (ts *TestServer) Connect(ctx context.Context, token string) (*sdkmcp.ClientSession, error) {
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	return client.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearer{token: token, base: http.DefaultTransport}},
	}, nil)
}

type bearer struct {
	token string
	base  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	if b.token != "" {
		r.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.base.RoundTrip(r)
}
