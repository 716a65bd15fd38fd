package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
)

const defaultActivityLimit = 20

// handler implements the tools against domain services.
type handler struct {
	services Services
	logger   *slog.Logger
}

func (h *handler) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, _ ListProjectsParams) (*sdkmcp.CallToolResult, any, error) {
	list, err := h.services.Projects.List(ctx)
	if err != nil {
		return nil, nil, toolError(err)
	}
	resp := make([]ProjectSummaryResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, ProjectSummaryResponse{
			Name:        p.Name,
			Channel:     p.Channel,
			Thread:      p.Thread,
			RecordCount: p.RecordCount,
			CreatedAt:   p.CreatedAt,
			Corrupt:     p.Corrupt,
		})
	}
	return jsonResult(resp)
}

func (h *handler) getProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetProjectParams) (*sdkmcp.CallToolResult, any, error) {
	p, err := h.services.Projects.Get(ctx, in.Name)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(p)
}

func (h *handler) createProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateProjectParams) (*sdkmcp.CallToolResult, any, error) {
	p, err := h.services.Projects.Create(ctx, project.CreateRequest{
		Name: in.Name,
		Config: project.Config{
			SiteURL:             in.SiteURL,
			PRDRef:              in.PRDRef,
			Channel:             in.Channel,
			Thread:              in.Thread,
			TrackerProjectID:    in.TrackerProjectID,
			TrackerProjectURL:   in.TrackerProjectURL,
			PollIntervalSeconds: in.PollIntervalSeconds,
		},
	})
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(p)
}

func (h *handler) projectStats(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectStatsParams) (*sdkmcp.CallToolResult, any, error) {
	s, err := h.services.Stats.Project(ctx, in.Name)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(s)
}

func (h *handler) markSynced(ctx context.Context, _ *sdkmcp.CallToolRequest, in MarkSyncedParams) (*sdkmcp.CallToolResult, any, error) {
	category, err := record.ParseCategory(in.Category)
	if err != nil {
		return nil, nil, toolError(err)
	}
	if _, err := h.services.Projects.Get(ctx, in.Project); err != nil {
		return nil, nil, toolError(err)
	}
	rec, err := h.services.Records.MarkSynced(ctx, record.CommitRequest{
		Project:  in.Project,
		EventID:  in.EventID,
		IssueID:  in.IssueID,
		Category: category,
	})
	if errors.Is(err, record.ErrDuplicateEvent) {
		return jsonResult(MarkSyncedResponse{AlreadySynced: true})
	}
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(MarkSyncedResponse{Record: rec})
}

func (h *handler) syncProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in SyncProjectParams) (*sdkmcp.CallToolResult, any, error) {
	if h.services.Sync == nil {
		return nil, nil, errors.New("sync is not available on this server")
	}
	rep, err := h.services.Sync.Sync(ctx, in.Name)
	if err != nil {
		return nil, nil, toolError(err)
	}
	h.logger.Info("sync via mcp", "project", in.Name, "created", rep.Created, "merged", rep.Merged, "failed", rep.Failed)
	return jsonResult(rep)
}

func (h *handler) projectStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectStatusParams) (*sdkmcp.CallToolResult, any, error) {
	st, err := h.services.Status.Status(ctx, in.Name)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(st)
}

func (h *handler) recentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in RecentActivityParams) (*sdkmcp.CallToolResult, any, error) {
	if _, err := h.services.Projects.Get(ctx, in.Project); err != nil {
		return nil, nil, toolError(err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	opts := activity.ListActivityOptions{Project: in.Project, Limit: limit}
	if len(in.Types) == 1 {
		t := activity.ActivityType(in.Types[0])
		opts.ActivityType = &t
	}
	entries, err := h.services.Activity.GetRecentActivity(ctx, opts)
	if err != nil {
		return nil, nil, toolError(err)
	}
	if len(in.Types) > 1 {
		entries = slices.DeleteFunc(entries, func(e activity.ActivityEntry) bool {
			return !slices.Contains(in.Types, string(e.ActivityType))
		})
	}
	if entries == nil {
		entries = []activity.ActivityEntry{}
	}
	return jsonResult(RecentActivityResponse{Entries: entries})
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
