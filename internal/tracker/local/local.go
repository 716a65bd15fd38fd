// Package local is a tracker kept in a SQLite database. Issues are indexed
// with FTS5 for candidate lookup and ranked with tracker.Similarity.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/qasync/internal/sqlite"
	"github.com/rpggio/qasync/internal/tracker"
)

const schema = `
CREATE TABLE IF NOT EXISTS issues (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL UNIQUE,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    labels TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id, seq);

CREATE TABLE IF NOT EXISTS issue_comments (
    id TEXT PRIMARY KEY,
    issue_key TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (issue_key) REFERENCES issues(key)
);

CREATE VIRTUAL TABLE IF NOT EXISTS issues_fts USING fts5(
    title,
    body,
    content='issues',
    content_rowid='seq'
);

CREATE TRIGGER IF NOT EXISTS issues_ai AFTER INSERT ON issues BEGIN
    INSERT INTO issues_fts(rowid, title, body)
    VALUES (new.seq, new.title, new.body);
END;

CREATE TRIGGER IF NOT EXISTS issues_ad AFTER DELETE ON issues BEGIN
    INSERT INTO issues_fts(issues_fts, rowid, title, body)
    VALUES('delete', old.seq, old.title, old.body);
END;
`

// recentWindow is how many of a project's newest issues are always scored,
// since FTS tokens miss spacing variants.
const recentWindow = 100

// Options configures the local tracker.
type Options struct {
	// KeyPrefix prefixes issue keys, as in "QA-12".
	KeyPrefix string
	// BaseURL, when set, is joined with the key to form issue URLs.
	BaseURL string
	Now     func() time.Time
}

// Tracker implements tracker.Tracker on SQLite.
type Tracker struct {
	db   *sqlite.DB
	opts Options
	own  bool
}

// Open opens or creates a tracker database at path.
func Open(path string, opts Options) (*Tracker, error) {
	db, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	t, err := New(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	t.own = true
	return t, nil
}

// New applies the tracker schema to an open database.
func New(db *sqlite.DB, opts Options) (*Tracker, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "QA"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply tracker schema: %w", err)
	}
	return &Tracker{db: db, opts: opts}, nil
}

// Close closes the database if Open created it.
func (t *Tracker) Close() error {
	if t.own {
		return t.db.Close()
	}
	return nil
}

// CreateIssue inserts an issue and assigns the next key.
func (t *Tracker) CreateIssue(ctx context.Context, req tracker.CreateRequest) (*tracker.IssueRef, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM issues`).Scan(&next); err != nil {
		return nil, fmt.Errorf("failed to allocate issue key: %w", err)
	}
	key := fmt.Sprintf("%s-%d", t.opts.KeyPrefix, next)
	createdAt := t.opts.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues (seq, key, project_id, title, body, category, labels, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, next, key, req.ProjectID, req.Title, req.Body, string(req.Category), strings.Join(req.Labels, ","), createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &tracker.IssueRef{ID: key, Title: req.Title, URL: t.url(key), CreatedAt: createdAt}, nil
}

// AddComment appends a comment to an existing issue.
func (t *Tracker) AddComment(ctx context.Context, issueID, body string) (string, error) {
	var one int
	err := t.db.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE key = ?`, issueID).Scan(&one)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: issue %s", tracker.ErrNotFound, issueID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up issue: %w", err)
	}

	id := uuid.NewString()
	if _, err := t.db.ExecContext(ctx,
		`INSERT INTO issue_comments (id, issue_key, body, created_at) VALUES (?, ?, ?, ?)`,
		id, issueID, body, t.opts.Now().UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to add comment: %w", err)
	}
	return id, nil
}

// Search scores FTS matches plus the newest issues of the project.
func (t *Tracker) Search(ctx context.Context, projectID, text string, limit int) ([]tracker.IssueRef, error) {
	if limit <= 0 {
		limit = 5
	}
	candidates := map[string]candidate{}

	if match := ftsQuery(text); match != "" {
		rows, err := t.db.QueryContext(ctx, `
			SELECT i.key, i.title, i.created_at
			FROM issues_fts
			JOIN issues i ON i.seq = issues_fts.rowid
			WHERE i.project_id = ? AND issues_fts MATCH ?
			ORDER BY rank
			LIMIT ?
		`, projectID, match, recentWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to search issues: %w", err)
		}
		if err := collect(rows, candidates); err != nil {
			return nil, err
		}
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT key, title, created_at FROM issues WHERE project_id = ? ORDER BY seq DESC LIMIT ?`,
		projectID, recentWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent issues: %w", err)
	}
	if err := collect(rows, candidates); err != nil {
		return nil, err
	}

	var refs []tracker.IssueRef
	for key, c := range candidates {
		score := tracker.Similarity(text, c.title)
		if score <= 0 {
			continue
		}
		refs = append(refs, tracker.IssueRef{ID: key, Title: c.title, URL: t.url(key), Score: score, CreatedAt: c.createdAt})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return refs[i].ID < refs[j].ID
	})
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// Issue is a stored issue with its comments, for inspection.
type Issue struct {
	Key       string
	ProjectID string
	Title     string
	Body      string
	Category  string
	Labels    []string
	Comments  []string
	CreatedAt time.Time
}

// Issues lists a project's issues in creation order.
func (t *Tracker) Issues(ctx context.Context, projectID string) ([]Issue, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT key, project_id, title, body, category, labels, created_at
		FROM issues WHERE project_id = ? ORDER BY seq ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	var issues []Issue
	for rows.Next() {
		var is Issue
		var labels string
		if err := rows.Scan(&is.Key, &is.ProjectID, &is.Title, &is.Body, &is.Category, &labels, &is.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		if labels != "" {
			is.Labels = strings.Split(labels, ",")
		}
		issues = append(issues, is)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}
	rows.Close()

	for i := range issues {
		comments, err := t.comments(ctx, issues[i].Key)
		if err != nil {
			return nil, err
		}
		issues[i].Comments = comments
	}
	return issues, nil
}

func (t *Tracker) comments(ctx context.Context, key string) ([]string, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT body FROM issue_comments WHERE issue_key = ? ORDER BY created_at ASC, rowid ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

func (t *Tracker) url(key string) string {
	if t.opts.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(t.opts.BaseURL, "/") + "/" + key
}

type candidate struct {
	title     string
	createdAt time.Time
}

// collect drains key/title/created_at rows into dst. Rows are closed before
// returning so the single connection is free for the next query.
func collect(rows *sql.Rows, dst map[string]candidate) error {
	defer rows.Close()
	for rows.Next() {
		var key string
		var c candidate
		if err := rows.Scan(&key, &c.title, &c.createdAt); err != nil {
			return fmt.Errorf("failed to scan issue: %w", err)
		}
		c.createdAt = c.createdAt.UTC()
		dst[key] = c
	}
	return rows.Err()
}

// ftsQuery ORs the quoted tokens of text so punctuation cannot break the
// MATCH syntax.
func ftsQuery(text string) string {
	var terms []string
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, `"'.,!?()[]{}:;`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}
