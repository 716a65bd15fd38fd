package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `qasync files QA feedback from a chat channel as tracker issues, exactly once per message.

Core concepts:
- Project: one feedback channel (optionally one thread) feeding one tracker project.
- Sync record: proof that a message became, or was merged into, exactly one issue. Records are never rewritten.
- Cursor: the newest message a watch has scanned. It only moves forward.
- Lease: one writer per project. A sync started while another holds the lease fails with LEASE_HELD.

Typical workflow:
1) list_projects, then project_status for the project you care about.
2) sync_project to file new feedback. Rerunning it is always safe.
3) project_stats for counts by category; recent_activity for what happened.
4) mark_synced when a message was filed by hand, so sync never files it again.

Docs:
- qasync://docs/index
- qasync://docs/categories
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "qasync://docs/index",
		Name:        "docs_index",
		Title:       "qasync docs index",
		Description: "How a sync run treats each message and what the tools report.",
		Content: `# qasync

## One message, one outcome

Each fetched message ends in exactly one of:

- created: a new issue was filed.
- merged: a similar open issue existed; the message was added as a comment.
- adopted: an earlier run filed the issue but stopped before recording it; the issue was found and recorded.
- skipped: the message already had a record.
- duplicate: another run recorded the message first.
- failed: nothing was recorded; the next run retries it.

## Safety

The tracker is written before the record is committed. A crash in between
leaves a pending create that the next run resolves by searching the tracker
for the issue title, so the message is never filed twice.

## Errors

Tool errors carry a code: PROJECT_NOT_FOUND, ALREADY_EXISTS, NO_CHANNEL,
INVALID_INPUT, LEASE_HELD, STATE_CORRUPT, TRANSIENT.
`,
	},
	{
		URI:         "qasync://docs/categories",
		Name:        "docs_categories",
		Title:       "Feedback categories",
		Description: "How messages are classified into bug, data_error and improvement.",
		Content: `# Categories

Messages are matched against keyword lists in order; the first list with a
hit wins. Messages matching nothing are improvements.

1. bug: 안 됨, 안됨, 에러, 깨짐, 오류, 버그, 작동, 실패, crash, error, broken, fail, bug
2. data_error: 틀림, 안 맞, 중복, 잘못, 데이터, 값이, 표시, wrong, mismatch, duplicate, incorrect
3. improvement: 좋겠, 개선, 추가, 제안, 하면, 있으면, suggest, improve, would be nice, wish

The lists can be replaced with a YAML file (classifier.keywords_path).
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
