package mcp

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *sdkmcp.Server, h *handler) {
	readOnly := &sdkmcp.ToolAnnotations{ReadOnlyHint: true}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List projects with their channel and number of synced events",
		Annotations: readOnly,
	}, h.listProjects)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project",
		Description: "Get a project's stored configuration",
		Annotations: readOnly,
	}, h.getProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_project",
		Description: "Create a project linking a feedback channel (and optional thread) to a tracker project",
	}, h.createProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "project_stats",
		Description: "Count synced events by category, distinct issues, and scenario completion",
		Annotations: readOnly,
	}, h.projectStats)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "mark_synced",
		Description: "Record that an event was handled outside a sync run so it is never filed again",
	}, h.markSynced)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_project",
		Description: "Fetch the project's feedback and file every unsynced message exactly once",
	}, h.syncProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "project_status",
		Description: "Show a project's config, stats, cursors, lease holder, and unfinished creates",
		Annotations: readOnly,
	}, h.projectStatus)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "recent_activity",
		Description: "List the most recent activity entries for a project, newest first",
		Annotations: readOnly,
	}, h.recentActivity)
}
