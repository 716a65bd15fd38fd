package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// trafficLoggingMiddleware logs every request and response at debug level.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			log := logger.With("direction", direction, "method", method, "session_id", safeSessionID(req))
			log.Debug("mcp traffic", "stage", "request", "params", formatPayload(safeParams(req)))

			result, err := next(ctx, method, req)
			if strings.HasPrefix(method, "notifications/") {
				return result, err
			}
			if err != nil {
				log.Debug("mcp traffic", "stage", "response", "error", err)
			} else {
				log.Debug("mcp traffic", "stage", "response", "result", formatPayload(result))
			}

			return result, err
		}
	}
}

func safeSessionID(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	// Some requests carry a typed nil session.
	defer func() { recover() }()
	session := req.GetSession()
	if session == nil {
		return ""
	}
	return session.ID()
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	return string(data)
}
