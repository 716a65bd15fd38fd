// Package transport serves the MCP tool server over stdio or HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	sessionTimeout  = 30 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// HTTPOptions configures the HTTP handler.
type HTTPOptions struct {
	// APIKey, when set, is required as a bearer token on /mcp.
	APIKey string
}

// NewHandler routes /mcp to the streamable MCP handler and serves /health
// without authentication.
func NewHandler(server *sdkmcp.Server, opts HTTPOptions) http.Handler {
	var mcpHandler http.Handler = sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: sessionTimeout},
	)
	if opts.APIKey != "" {
		mcpHandler = AuthMiddleware(opts.APIKey)(mcpHandler)
	}

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", handleHealth)
	return router
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ServeHTTP listens on addr until ctx is cancelled, then shuts down
// gracefully.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return Serve(ctx, ln, handler, logger)
}

// Serve is ServeHTTP on an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// RunStdio serves one client over stdin/stdout until stdin closes or ctx
// is cancelled. Nothing else may write to stdout meanwhile.
func RunStdio(ctx context.Context, server *sdkmcp.Server, logger *slog.Logger) error {
	logger.Info("starting stdio transport")
	err := server.Run(ctx, &sdkmcp.StdioTransport{})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
