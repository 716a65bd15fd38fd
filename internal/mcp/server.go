package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/qasync/internal/app"
	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/stats"
	"github.com/rpggio/qasync/internal/syncer"
)

// ServerName and ServerVersion identify the server during initialize.
const (
	ServerName    = "qasync"
	ServerVersion = "0.1.0"
)

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	Create(ctx context.Context, req project.CreateRequest) (*project.Project, error)
	List(ctx context.Context) ([]project.ProjectSummary, error)
	Get(ctx context.Context, name string) (*project.Project, error)
}

// RecordService defines record operations needed by MCP.
type RecordService interface {
	MarkSynced(ctx context.Context, req record.CommitRequest) (*record.SyncRecord, error)
}

// StatsService aggregates records per project.
type StatsService interface {
	Project(ctx context.Context, name string) (*stats.Summary, error)
}

// StatusService reports a project's operational state.
type StatusService interface {
	Status(ctx context.Context, name string) (*app.Status, error)
}

// SyncService runs one sync pass for a project.
type SyncService interface {
	Sync(ctx context.Context, projectName string) (*syncer.Report, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Projects ProjectService
	Records  RecordService
	Stats    StatsService
	Status   StatusService
	Sync     SyncService
	Activity ActivityService
}

// Config contains server configuration.
type Config struct {
	Services Services
	Logger   *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	registerTools(server, &handler{services: cfg.Services, logger: logger})

	return server
}

// AppServices exposes an App's services to the tool server.
func AppServices(a *app.App) Services {
	return Services{
		Projects: a.Projects,
		Records:  a.Records,
		Stats:    a.Stats,
		Status:   a,
		Sync:     a,
		Activity: a.Activity,
	}
}
