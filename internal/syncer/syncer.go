// Package syncer runs the fetch, classify, dedupe, file, commit loop that
// turns source events into tracker issues exactly once per event.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpggio/qasync/internal/classify"
	"github.com/rpggio/qasync/internal/clock"
	"github.com/rpggio/qasync/internal/dedup"
	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/issue"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/rpggio/qasync/internal/retry"
	"github.com/rpggio/qasync/internal/source"
	"github.com/rpggio/qasync/internal/tracker"
)

// DefaultPollInterval is used when neither the caller nor the project sets
// an interval.
const DefaultPollInterval = 30 * time.Second

// DefaultLeaseTTL bounds how long a crashed run blocks other writers.
const DefaultLeaseTTL = 2 * time.Minute

// ErrNoChannel is returned for projects without a source channel.
var ErrNoChannel = errors.New("project has no source channel")

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Projects   *project.Service
	Records    *record.Service
	Cursors    *cursor.Service
	Leases     *lease.Service
	Intents    *intent.Service
	Activity   activity.Repository
	Source     source.Source
	Tracker    tracker.Tracker
	Classifier *classify.Classifier
	Dedup      *dedup.Deduplicator
}

// Options tunes an Orchestrator. Zero values take defaults.
type Options struct {
	// Holder identifies this process in project leases.
	Holder       string
	LeaseTTL     time.Duration
	PollInterval time.Duration
	TitleMax     int
	// FetchLimit caps events fetched per cycle; zero fetches everything.
	FetchLimit int
	// DisableIntentLog skips the write-ahead intent before issue creation.
	DisableIntentLog bool
	// MaxWorkers caps concurrent projects in WatchAll; zero means no cap.
	MaxWorkers int
	Retry      retry.Policy
	Clock      clock.Clock
	Logger     *slog.Logger
	// OnCycle runs after every sync or watch cycle. WatchAll calls it from
	// several goroutines.
	OnCycle func(r *Report)
}

// Orchestrator runs sync and watch for projects.
type Orchestrator struct {
	deps   Deps
	opts   Options
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]State
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Holder == "" {
		opts.Holder = lease.NewHolderID()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TitleMax <= 0 {
		opts.TitleMax = classify.DefaultTitleMax
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.Retry.Clock = clk
	opts.Retry.Logger = logger

	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		clock:  clk,
		logger: logger,
		states: map[string]State{},
	}
}

// Holder returns the lease holder id of this orchestrator.
func (o *Orchestrator) Holder() string {
	return o.opts.Holder
}

// State returns the current phase for a project.
func (o *Orchestrator) State(projectName string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[projectName]; ok {
		return s
	}
	return StateIdle
}

func (o *Orchestrator) setState(projectName string, s State) {
	o.mu.Lock()
	o.states[projectName] = s
	o.mu.Unlock()
	o.logger.Debug("sync state", "project", projectName, "state", s)
}

// Sync fetches the whole window for a project once and processes every
// unsynced event.
func (o *Orchestrator) Sync(ctx context.Context, projectName string) (*Report, error) {
	p, err := o.load(ctx, projectName)
	if err != nil {
		return nil, err
	}
	interval := o.interval(p, 0)

	held, release, err := o.acquire(ctx, p.Name, o.opts.LeaseTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	rep, err := o.cycle(ctx, p, held, "", interval)
	if err != nil {
		return nil, err
	}
	rep.Cycles = 1
	o.notify(rep)
	return rep, nil
}

// Watch polls a project until ctx is cancelled or maxCycles cycles ran
// (maxCycles <= 0 means no limit). Each cycle fetches after the stored
// cursor. Failed cycles are logged and the loop continues; only errors
// that make the project unusable end the watch early.
func (o *Orchestrator) Watch(ctx context.Context, projectName string, interval time.Duration, maxCycles int) (*Report, error) {
	p, err := o.load(ctx, projectName)
	if err != nil {
		return nil, err
	}
	interval = o.interval(p, interval)
	ttl := max(o.opts.LeaseTTL, 2*interval)

	held, release, err := o.acquire(ctx, p.Name, ttl)
	if err != nil {
		return nil, err
	}
	defer release()

	totals := &Report{Project: p.Name, StartedAt: o.clock.Now().UTC()}
	o.logger.Info("watch started", "project", p.Name, "channel", p.Config.Channel, "interval", interval, "max_cycles", maxCycles)

	for n := 1; maxCycles <= 0 || n <= maxCycles; n++ {
		if ctx.Err() != nil {
			totals.Interrupted = true
			break
		}
		if err := held.renew(ctx); err != nil {
			if fatal(err) {
				return totals, err
			}
			o.logger.Warn("lease renewal failed", "project", p.Name, "error", err)
		}

		rep, err := o.watchCycle(ctx, p, held, interval)
		switch {
		case err == nil:
			totals.merge(rep)
			o.notify(rep)
		case ctx.Err() != nil:
			totals.Interrupted = true
		case fatal(err):
			if rep != nil {
				totals.merge(rep)
				o.notify(rep)
			}
			return totals, err
		default:
			totals.Cycles++
			totals.CycleErrors++
			o.logger.Warn("watch cycle failed", "project", p.Name, "cycle", n, "error", err)
		}

		if totals.Interrupted || (maxCycles > 0 && n == maxCycles) {
			break
		}
		if err := o.clock.Sleep(ctx, interval); err != nil {
			totals.Interrupted = true
			break
		}
	}

	totals.State = StateIdle
	totals.FinishedAt = o.clock.Now().UTC()
	o.logger.Info("watch stopped", "project", p.Name, "cycles", totals.Cycles, "processed", totals.Processed, "failed", totals.Failed, "interrupted", totals.Interrupted)
	return totals, nil
}

// WatchAll runs one watch worker per project. An empty list watches every
// readable project. One project's failure does not stop the others; all
// failures are joined into the returned error.
func (o *Orchestrator) WatchAll(ctx context.Context, projectNames []string, interval time.Duration, maxCycles int) ([]*Report, error) {
	if len(projectNames) == 0 {
		summaries, err := o.deps.Projects.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			if s.Corrupt {
				o.logger.Error("skipping unreadable project", "project", s.Name)
				continue
			}
			if s.Channel == "" {
				o.logger.Warn("skipping project without channel", "project", s.Name)
				continue
			}
			projectNames = append(projectNames, s.Name)
		}
	}

	reports := make([]*Report, len(projectNames))
	errs := make([]error, len(projectNames))

	var g errgroup.Group
	if o.opts.MaxWorkers > 0 {
		g.SetLimit(o.opts.MaxWorkers)
	}
	for i, name := range projectNames {
		g.Go(func() error {
			rep, err := o.Watch(ctx, name, interval, maxCycles)
			reports[i] = rep
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

func (o *Orchestrator) watchCycle(ctx context.Context, p *project.Project, held *heldLease, interval time.Duration) (*Report, error) {
	cur, err := o.deps.Cursors.Get(ctx, p.Name, p.Config.Channel)
	if err != nil {
		return nil, err
	}
	return o.cycle(ctx, p, held, cur.Position, interval)
}

// cycle runs one fetch and processes the batch. Each event runs to
// completion even if ctx is cancelled; cancellation is checked between
// events. The cursor moves to the last event before the first failure so a
// failed event is fetched again next cycle. The lease is renewed between
// events; losing it stops the batch and returns the partial report with
// the lease error.
func (o *Orchestrator) cycle(ctx context.Context, p *project.Project, held *heldLease, after string, interval time.Duration) (*Report, error) {
	rep := &Report{Project: p.Name, StartedAt: o.clock.Now().UTC()}
	defer o.setState(p.Name, StateIdle)

	o.setState(p.Name, StateFetching)
	events, err := o.fetch(ctx, p, after)
	if err != nil {
		return nil, err
	}
	rep.Fetched = len(events)

	eventCtx := context.WithoutCancel(ctx)
	safe := after
	blocked := false
	var leaseErr error
	for _, ev := range events {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		if err := held.keep(eventCtx); err != nil {
			o.logger.Error("lost project lease, stopping batch", "project", p.Name, "event", ev.ID, "error", err)
			leaseErr = err
			rep.Interrupted = true
			break
		}
		out := o.process(eventCtx, p, ev)
		rep.add(out)
		if out.Kind == OutcomeFailed {
			blocked = true
		} else if !blocked {
			safe = cursor.Max(safe, ev.ID)
		}
	}

	stored, err := o.deps.Cursors.Advance(eventCtx, p.Name, p.Config.Channel, safe, interval)
	if err != nil {
		return nil, err
	}
	rep.Cursor = stored.Position
	rep.State = StateIdle
	rep.FinishedAt = o.clock.Now().UTC()

	o.logger.Info("sync cycle finished",
		"project", p.Name,
		"fetched", rep.Fetched,
		"processed", rep.Processed,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"cursor", rep.Cursor,
	)
	return rep, leaseErr
}

func (o *Orchestrator) fetch(ctx context.Context, p *project.Project, after string) ([]source.Event, error) {
	policy := o.opts.Retry
	policy.Retryable = source.IsTransient

	var events []source.Event
	err := policy.Do(ctx, "fetch "+p.Config.Channel, func(ctx context.Context) error {
		var err error
		events, err = o.deps.Source.Fetch(ctx, source.FetchRequest{
			Channel: p.Config.Channel,
			Thread:  p.Config.Thread,
			After:   after,
			Limit:   o.opts.FetchLimit,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching events: %w", err)
	}
	return events, nil
}

// process handles one event. Tracker writes always happen before the
// record commit; the intent log covers the gap between them.
func (o *Orchestrator) process(ctx context.Context, p *project.Project, ev source.Event) Outcome {
	out := Outcome{EventID: ev.ID}

	synced, err := o.deps.Dedup.IsAlreadySynced(ctx, p.Name, ev.ID)
	if err != nil {
		return o.fail(ctx, p.Name, out, err)
	}
	if synced {
		out.Kind = OutcomeSkipped
		return out
	}

	o.setState(p.Name, StateProcessing)
	category := o.deps.Classifier.Classify(ev.Text)
	draft := issue.NewDraft(ev, category, o.opts.TitleMax)
	out.Category = category
	out.Title = draft.Title
	scope := p.TrackerScope()

	if !o.opts.DisableIntentLog {
		pending, err := o.deps.Intents.Pending(ctx, p.Name, ev.ID)
		if err != nil {
			return o.fail(ctx, p.Name, out, err)
		}
		if pending != nil {
			if ref := o.deps.Dedup.FindCreatedIssue(ctx, scope, pending.Title, pending.CreatedAt); ref != nil {
				o.logger.Info("adopting issue from interrupted run", "project", p.Name, "event", ev.ID, "issue", ref.ID)
				out.Kind = OutcomeAdopted
				out.IssueID, out.IssueURL = ref.ID, ref.URL
				return o.commit(ctx, p.Name, out, record.CommitRequest{
					Project:  p.Name,
					EventID:  ev.ID,
					IssueID:  ref.ID,
					Category: category,
					Adopted:  true,
				})
			}
		}
	}

	if ref := o.deps.Dedup.FindSimilarIssue(ctx, scope, draft.Title); ref != nil {
		commentID, err := o.addComment(ctx, ref.ID, issue.Comment(ev))
		if err != nil {
			return o.fail(ctx, p.Name, out, err)
		}
		out.Kind = OutcomeMerged
		out.IssueID, out.IssueURL = ref.ID, ref.URL
		return o.commit(ctx, p.Name, out, record.CommitRequest{
			Project:   p.Name,
			EventID:   ev.ID,
			IssueID:   ref.ID,
			Category:  category,
			Merged:    true,
			CommentID: commentID,
		})
	}

	if !o.opts.DisableIntentLog {
		if err := o.deps.Intents.Record(ctx, p.Name, ev.ID, draft.Title); err != nil {
			return o.fail(ctx, p.Name, out, err)
		}
	}
	ref, err := o.createIssue(ctx, scope, draft)
	if err != nil {
		if !o.opts.DisableIntentLog && definitive(err) {
			if rerr := o.deps.Intents.Resolve(ctx, p.Name, ev.ID); rerr != nil {
				o.logger.Warn("failed to clear intent after rejected create", "project", p.Name, "event", ev.ID, "error", rerr)
			}
		}
		return o.fail(ctx, p.Name, out, err)
	}
	out.Kind = OutcomeCreated
	out.IssueID, out.IssueURL = ref.ID, ref.URL
	return o.commit(ctx, p.Name, out, record.CommitRequest{
		Project:  p.Name,
		EventID:  ev.ID,
		IssueID:  ref.ID,
		Category: category,
	})
}

func (o *Orchestrator) createIssue(ctx context.Context, scope string, draft issue.Draft) (*tracker.IssueRef, error) {
	policy := o.opts.Retry
	policy.Retryable = tracker.IsTransient

	var ref *tracker.IssueRef
	err := policy.Do(ctx, "create issue", func(ctx context.Context) error {
		var err error
		ref, err = o.deps.Tracker.CreateIssue(ctx, tracker.CreateRequest{
			ProjectID: scope,
			Title:     draft.Title,
			Body:      draft.Body,
			Category:  draft.Category,
			Labels:    draft.Labels,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	return ref, nil
}

func (o *Orchestrator) addComment(ctx context.Context, issueID, body string) (string, error) {
	policy := o.opts.Retry
	policy.Retryable = tracker.IsTransient

	var id string
	err := policy.Do(ctx, "add comment", func(ctx context.Context) error {
		var err error
		id, err = o.deps.Tracker.AddComment(ctx, issueID, body)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("commenting on %s: %w", issueID, err)
	}
	return id, nil
}

// commit stores the record after a successful tracker write. A duplicate
// means another run committed the event first and counts as success.
func (o *Orchestrator) commit(ctx context.Context, projectName string, out Outcome, req record.CommitRequest) Outcome {
	o.setState(projectName, StateCommitting)

	_, err := o.deps.Records.Commit(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, record.ErrDuplicateEvent):
		out.Kind = OutcomeDuplicate
		eventID := req.EventID
		activity.Log(ctx, o.deps.Activity, o.logger, &activity.ActivityEntry{
			Project:      projectName,
			EventID:      &eventID,
			ActivityType: activity.TypeEventDuplicate,
			Summary:      fmt.Sprintf("%s already committed by another run", req.EventID),
		})
	default:
		// The tracker write happened; the intent, if any, stays pending so
		// the next run adopts the issue instead of filing another.
		o.logger.Error("commit failed after tracker write", "project", projectName, "event", req.EventID, "issue", req.IssueID, "error", err)
		return o.fail(ctx, projectName, out, err)
	}

	if !o.opts.DisableIntentLog {
		if err := o.deps.Intents.Resolve(ctx, projectName, req.EventID); err != nil {
			o.logger.Warn("failed to resolve intent", "project", projectName, "event", req.EventID, "error", err)
		}
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, projectName string, out Outcome, err error) Outcome {
	out.Kind = OutcomeFailed
	out.Error = err.Error()
	o.logger.Warn("event failed", "project", projectName, "event", out.EventID, "error", err)

	eventID := out.EventID
	activity.Log(ctx, o.deps.Activity, o.logger, &activity.ActivityEntry{
		Project:      projectName,
		EventID:      &eventID,
		ActivityType: activity.TypeEventFailed,
		Summary:      fmt.Sprintf("%s failed: %v", out.EventID, err),
	})
	return out
}

func (o *Orchestrator) load(ctx context.Context, projectName string) (*project.Project, error) {
	p, err := o.deps.Projects.Get(ctx, projectName)
	if err != nil {
		return nil, err
	}
	if p.Config.Channel == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, projectName)
	}
	return p, nil
}

func (o *Orchestrator) interval(p *project.Project, requested time.Duration) time.Duration {
	switch {
	case requested > 0:
		return requested
	case p.Config.PollIntervalSeconds > 0:
		return time.Duration(p.Config.PollIntervalSeconds) * time.Second
	}
	return o.opts.PollInterval
}

// heldLease is a lease this orchestrator owns for the length of a run.
type heldLease struct {
	o       *Orchestrator
	project string
	ttl     time.Duration
	renewed time.Time
}

// acquire takes the project lease and returns it with its release func.
func (o *Orchestrator) acquire(ctx context.Context, projectName string, ttl time.Duration) (*heldLease, func(), error) {
	if _, err := o.deps.Leases.Acquire(ctx, projectName, o.opts.Holder, ttl); err != nil {
		return nil, nil, err
	}
	held := &heldLease{o: o, project: projectName, ttl: ttl, renewed: o.clock.Now()}
	return held, func() {
		if err := o.deps.Leases.Release(context.WithoutCancel(ctx), projectName, o.opts.Holder); err != nil {
			o.logger.Warn("failed to release lease", "project", projectName, "error", err)
		}
	}, nil
}

// renew extends the lease unconditionally.
func (l *heldLease) renew(ctx context.Context) error {
	if _, err := l.o.deps.Leases.Renew(ctx, l.project, l.o.opts.Holder, l.ttl); err != nil {
		return fmt.Errorf("renewing lease: %w", err)
	}
	l.renewed = l.o.clock.Now()
	return nil
}

// keep renews the lease once half its TTL has passed since the last
// renewal, so it cannot lapse between two events.
func (l *heldLease) keep(ctx context.Context) error {
	if l.o.clock.Now().Sub(l.renewed) < l.ttl/2 {
		return nil
	}
	return l.renew(ctx)
}

func (o *Orchestrator) notify(rep *Report) {
	if o.opts.OnCycle != nil {
		o.opts.OnCycle(rep)
	}
}

// definitive reports a tracker error after which the issue cannot exist:
// the tracker answered and refused. Transient errors, timeouts, and
// cancellations leave the outcome unknown.
func definitive(err error) bool {
	return !tracker.IsTransient(err) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, context.Canceled)
}

// fatal reports errors that stop a watch instead of being retried next
// cycle.
func fatal(err error) bool {
	return errors.Is(err, repository.ErrPersistenceCorruption) ||
		errors.Is(err, project.ErrProjectNotFound) ||
		errors.Is(err, lease.ErrLeaseHeld)
}
