// Package dedup decides whether an event was already handled and whether
// an existing issue already covers it.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/rpggio/qasync/internal/tracker"
)

// DefaultThreshold is the minimum similarity score for a match.
const DefaultThreshold = 0.6

// SyncChecker reports whether an event has a sync record.
type SyncChecker interface {
	IsSynced(ctx context.Context, project, eventID string) (bool, error)
}

// DefaultClockSkew is how far a tracker's creation timestamp may trail the
// local clock before an issue no longer counts as created after an intent.
const DefaultClockSkew = time.Minute

// Options configures a Deduplicator.
type Options struct {
	Threshold     float64
	SearchTimeout time.Duration
	SearchLimit   int
	ClockSkew     time.Duration
	Logger        *slog.Logger
}

// Deduplicator combines the local record lookup with a tracker search.
type Deduplicator struct {
	records SyncChecker
	tracker tracker.Tracker
	opts    Options
	logger  *slog.Logger
}

// New creates a Deduplicator.
func New(records SyncChecker, tr tracker.Tracker, opts Options) *Deduplicator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Second
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = DefaultClockSkew
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deduplicator{records: records, tracker: tr, opts: opts, logger: logger}
}

// Threshold returns the configured match threshold.
func (d *Deduplicator) Threshold() float64 {
	return d.opts.Threshold
}

// IsAlreadySynced is an exact lookup in the state store.
func (d *Deduplicator) IsAlreadySynced(ctx context.Context, project, eventID string) (bool, error) {
	return d.records.IsSynced(ctx, project, eventID)
}

// FindSimilarIssue returns the best issue in scope scoring at least the
// threshold, or nil. Search failures and timeouts return nil: a missed
// match costs a duplicate issue, a failed sync costs the event.
func (d *Deduplicator) FindSimilarIssue(ctx context.Context, scope, summary string) *tracker.IssueRef {
	if summary == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.SearchTimeout)
	defer cancel()

	refs, err := d.tracker.Search(ctx, scope, summary, d.opts.SearchLimit)
	if err != nil {
		d.logger.Warn("similar issue search failed, treating as no match", "scope", scope, "error", err)
		return nil
	}

	var best *tracker.IssueRef
	for i := range refs {
		if refs[i].Score < d.opts.Threshold {
			continue
		}
		if best == nil || refs[i].Score > best.Score {
			best = &refs[i]
		}
	}
	return best
}

// FindCreatedIssue looks for the issue an interrupted create may have filed:
// same title, created no earlier than since. Similar issues do not qualify,
// and neither do issues without a creation time. Search failures return nil.
func (d *Deduplicator) FindCreatedIssue(ctx context.Context, scope, title string, since time.Time) *tracker.IssueRef {
	if title == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.SearchTimeout)
	defer cancel()

	refs, err := d.tracker.Search(ctx, scope, title, d.opts.SearchLimit)
	if err != nil {
		d.logger.Warn("created issue search failed", "scope", scope, "error", err)
		return nil
	}
	earliest := since.Add(-d.opts.ClockSkew)
	for i := range refs {
		if !tracker.SameTitle(refs[i].Title, title) || refs[i].CreatedAt.IsZero() {
			continue
		}
		if refs[i].CreatedAt.Before(earliest) {
			continue
		}
		return &refs[i]
	}
	return nil
}
