// Package linear files issues through the Linear GraphQL API.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rpggio/qasync/internal/tracker"
)

// DefaultEndpoint is the public Linear GraphQL endpoint.
const DefaultEndpoint = "https://api.linear.app/graphql"

// Options configures the client.
type Options struct {
	APIKey   string
	Endpoint string
	TeamID   string
	// LabelIDs maps label names (as produced by issue.Label) to Linear label ids.
	LabelIDs      map[string]string
	RatePerSecond float64
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client implements tracker.Tracker.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a client. The API key and team id are required.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("linear: api key is required")
	}
	if opts.TeamID == "" {
		return nil, errors.New("linear: team id is required")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		logger:  logger,
	}, nil
}

const createIssueMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue { id identifier title url createdAt }
  }
}`

const commentCreateMutation = `mutation CommentCreate($input: CommentCreateInput!) {
  commentCreate(input: $input) {
    success
    comment { id }
  }
}`

const searchIssuesQuery = `query SearchIssues($term: String!, $first: Int!, $filter: IssueFilter) {
  searchIssues(term: $term, first: $first, filter: $filter) {
    nodes { id identifier title url createdAt }
  }
}`

type issueNode struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateIssue files an issue under the configured team and project.
func (c *Client) CreateIssue(ctx context.Context, req tracker.CreateRequest) (*tracker.IssueRef, error) {
	input := map[string]any{
		"teamId":      c.opts.TeamID,
		"title":       req.Title,
		"description": req.Body,
	}
	if req.ProjectID != "" {
		input["projectId"] = req.ProjectID
	}
	var labelIDs []string
	for _, name := range req.Labels {
		if id, ok := c.opts.LabelIDs[name]; ok {
			labelIDs = append(labelIDs, id)
		}
	}
	if len(labelIDs) > 0 {
		input["labelIds"] = labelIDs
	}

	var out struct {
		IssueCreate struct {
			Success bool       `json:"success"`
			Issue   *issueNode `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, createIssueMutation, map[string]any{"input": input}, &out); err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	if !out.IssueCreate.Success || out.IssueCreate.Issue == nil {
		return nil, errors.New("creating issue: linear reported failure")
	}
	return toRef(*out.IssueCreate.Issue, 0), nil
}

// AddComment comments on an issue by id or identifier.
func (c *Client) AddComment(ctx context.Context, issueID, body string) (string, error) {
	var out struct {
		CommentCreate struct {
			Success bool `json:"success"`
			Comment *struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"commentCreate"`
	}
	vars := map[string]any{"input": map[string]any{"issueId": issueID, "body": body}}
	if err := c.do(ctx, commentCreateMutation, vars, &out); err != nil {
		return "", fmt.Errorf("adding comment to %s: %w", issueID, err)
	}
	if !out.CommentCreate.Success || out.CommentCreate.Comment == nil {
		return "", fmt.Errorf("adding comment to %s: linear reported failure", issueID)
	}
	return out.CommentCreate.Comment.ID, nil
}

// Search runs Linear's issue search and scores hits against text.
func (c *Client) Search(ctx context.Context, projectID, text string, limit int) ([]tracker.IssueRef, error) {
	if limit <= 0 {
		limit = 5
	}
	vars := map[string]any{"term": text, "first": limit * 2}
	if projectID != "" {
		vars["filter"] = map[string]any{"project": map[string]any{"id": map[string]any{"eq": projectID}}}
	}

	var out struct {
		SearchIssues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"searchIssues"`
	}
	if err := c.do(ctx, searchIssuesQuery, vars, &out); err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	refs := make([]tracker.IssueRef, 0, len(out.SearchIssues.Nodes))
	for _, n := range out.SearchIssues.Nodes {
		refs = append(refs, *toRef(n, tracker.Similarity(text, n.Title)))
	}
	sortByScore(refs)
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// do sends one GraphQL request. Rate limits, server errors, and network
// failures are wrapped with tracker.ErrTransient.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Transport failures (timeouts, resets, DNS) are all worth a retry.
		return fmt.Errorf("%w: %v", tracker.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", tracker.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: linear returned %s", tracker.ErrTransient, resp.Status)
	case resp.StatusCode >= 400 && !isGraphQLBody(body):
		return fmt.Errorf("linear returned %s: %s", resp.Status, truncate(string(body), 200))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		e := envelope.Errors[0]
		c.logger.Debug("linear graphql error", "code", e.Extensions.Code, "message", e.Message)
		switch strings.ToUpper(e.Extensions.Code) {
		case "RATELIMITED", "INTERNAL_SERVER_ERROR":
			return fmt.Errorf("%w: %s", tracker.ErrTransient, e.Message)
		case "ENTITY_NOT_FOUND", "NOT_FOUND":
			return fmt.Errorf("%w: %s", tracker.ErrNotFound, e.Message)
		}
		return fmt.Errorf("linear: %s", e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

func isGraphQLBody(body []byte) bool {
	return bytes.Contains(body, []byte(`"errors"`))
}

func toRef(n issueNode, score float64) *tracker.IssueRef {
	id := n.Identifier
	if id == "" {
		id = n.ID
	}
	return &tracker.IssueRef{ID: id, Title: n.Title, URL: n.URL, Score: score, CreatedAt: n.CreatedAt}
}

func sortByScore(refs []tracker.IssueRef) {
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Score > refs[j].Score })
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
