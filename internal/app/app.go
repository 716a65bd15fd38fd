// Package app wires configuration into the state backend, services, and
// the sync stack shared by the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/qasync/internal/classify"
	"github.com/rpggio/qasync/internal/config"
	"github.com/rpggio/qasync/internal/dedup"
	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/retry"
	"github.com/rpggio/qasync/internal/source"
	"github.com/rpggio/qasync/internal/source/jsonl"
	"github.com/rpggio/qasync/internal/source/slack"
	"github.com/rpggio/qasync/internal/stats"
	"github.com/rpggio/qasync/internal/storage"
	"github.com/rpggio/qasync/internal/syncer"
	"github.com/rpggio/qasync/internal/tracker"
	"github.com/rpggio/qasync/internal/tracker/linear"
	"github.com/rpggio/qasync/internal/tracker/local"
)

// App holds the services for one process.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Backend *storage.Backend

	Projects *project.Service
	Records  *record.Service
	Cursors  *cursor.Service
	Leases   *lease.Service
	Intents  *intent.Service
	Activity *activity.Service
	Stats    *stats.Aggregator

	mu      sync.Mutex
	source  source.Source
	tracker tracker.Tracker
	orch    *syncer.Orchestrator
	closers []func() error
}

// New opens the configured state backend and builds the services.
// Source and tracker adapters are created on first use so read-only
// commands work without credentials.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	backend, err := storage.Open(storage.Options{Kind: cfg.State.Backend, Path: cfg.State.Path, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	return NewWithBackend(cfg, logger, backend), nil
}

// NewWithBackend builds the services on an already open backend.
func NewWithBackend(cfg config.Config, logger *slog.Logger, backend *storage.Backend) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Backend:  backend,
		Projects: project.NewService(backend.Projects, backend.Activity, logger),
		Records:  record.NewService(backend.Records, backend.Activity, logger),
		Cursors:  cursor.NewService(backend.Cursors, backend.Activity, logger),
		Leases:   lease.NewService(backend.Leases, backend.Activity, logger),
		Intents:  intent.NewService(backend.Intents, logger),
		Activity: activity.NewService(backend.Activity, logger),
	}
	a.Stats = stats.New(a.Projects, a.Records)
	a.closers = append(a.closers, backend.Close)
	return a
}

// SetSource replaces the event source, for tests and embedding.
func (a *App) SetSource(s source.Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.source = s
}

// SetTracker replaces the issue tracker, for tests and embedding.
func (a *App) SetTracker(t tracker.Tracker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracker = t
}

// Orchestrator builds a sync orchestrator from config. onCycle may be nil.
func (a *App) Orchestrator(onCycle func(*syncer.Report)) (*syncer.Orchestrator, error) {
	src, err := a.Source()
	if err != nil {
		return nil, err
	}
	tr, err := a.Tracker()
	if err != nil {
		return nil, err
	}
	policy, err := classify.LoadPolicy(a.Config.Classifier.KeywordsPath)
	if err != nil {
		return nil, err
	}

	sc := a.Config.Sync
	return syncer.New(syncer.Deps{
		Projects:   a.Projects,
		Records:    a.Records,
		Cursors:    a.Cursors,
		Leases:     a.Leases,
		Intents:    a.Intents,
		Activity:   a.Backend.Activity,
		Source:     src,
		Tracker:    tr,
		Classifier: classify.New(policy),
		Dedup: dedup.New(a.Records, tr, dedup.Options{
			Threshold:     a.Config.Dedup.Threshold,
			SearchTimeout: a.Config.Dedup.SearchTimeout,
			Logger:        a.Logger,
		}),
	}, syncer.Options{
		LeaseTTL:         sc.LeaseTTL,
		PollInterval:     sc.PollInterval,
		TitleMax:         sc.TitleMax,
		FetchLimit:       sc.FetchLimit,
		DisableIntentLog: !sc.IntentLog,
		MaxWorkers:       sc.MaxWorkers,
		Retry: retry.Policy{
			MaxAttempts:       sc.MaxAttempts,
			InitialBackoff:    sc.InitialBackoff,
			MaxBackoff:        sc.MaxBackoff,
			BackoffMultiplier: 2.0,
			AttemptTimeout:    sc.CallTimeout,
		},
		Logger:  a.Logger,
		OnCycle: onCycle,
	}), nil
}

// Sync runs one sync pass on an orchestrator built on first use.
func (a *App) Sync(ctx context.Context, projectName string) (*syncer.Report, error) {
	a.mu.Lock()
	orch := a.orch
	a.mu.Unlock()
	if orch == nil {
		o, err := a.Orchestrator(nil)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		if a.orch == nil {
			a.orch = o
		}
		orch = a.orch
		a.mu.Unlock()
	}
	return orch.Sync(ctx, projectName)
}

// Source returns the configured event source.
func (a *App) Source() (source.Source, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source != nil {
		return a.source, nil
	}

	sc := a.Config.Source
	switch sc.Kind {
	case "slack":
		c, err := slack.New(slack.Options{
			Token:         sc.Slack.Token,
			BaseURL:       sc.Slack.BaseURL,
			WorkspaceURL:  sc.Slack.WorkspaceURL,
			RatePerSecond: sc.Slack.RatePerSecond,
			Logger:        a.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.source = c
	case "jsonl":
		a.source = jsonl.New(sc.JSONL.Dir)
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
	return a.source, nil
}

// Tracker returns the configured issue tracker.
func (a *App) Tracker() (tracker.Tracker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tracker != nil {
		return a.tracker, nil
	}

	tc := a.Config.Tracker
	switch tc.Kind {
	case "linear":
		c, err := linear.New(linear.Options{
			APIKey:        tc.Linear.APIKey,
			Endpoint:      tc.Linear.Endpoint,
			TeamID:        tc.Linear.TeamID,
			LabelIDs:      tc.Linear.LabelIDs,
			RatePerSecond: tc.Linear.RatePerSecond,
			Logger:        a.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.tracker = c
	case "local":
		t, err := local.Open(tc.Local.Path, local.Options{KeyPrefix: tc.Local.KeyPrefix, BaseURL: tc.Local.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("opening local tracker: %w", err)
		}
		a.tracker = t
		a.closers = append(a.closers, t.Close)
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", tc.Kind)
	}
	return a.tracker, nil
}

// Close releases everything the app opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Status is the operator view of one project.
type Status struct {
	Project        *project.Project `json:"project"`
	Stats          *stats.Summary   `json:"stats"`
	Cursors        []cursor.Cursor  `json:"cursors"`
	Lease          *lease.Lease     `json:"lease,omitempty"`
	PendingIntents []intent.Intent  `json:"pending_intents,omitempty"`
	CheckedAt      time.Time        `json:"checked_at"`
}

// Status gathers a project's config, stats, cursors, lease and intents.
func (a *App) Status(ctx context.Context, name string) (*Status, error) {
	p, err := a.Projects.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	summary, err := a.Stats.Project(ctx, name)
	if err != nil {
		return nil, err
	}
	cursors, err := a.Cursors.List(ctx, name)
	if err != nil {
		return nil, err
	}
	l, err := a.Leases.Current(ctx, name)
	if err != nil {
		return nil, err
	}
	intents, err := a.Intents.List(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Status{
		Project:        p,
		Stats:          summary,
		Cursors:        cursors,
		Lease:          l,
		PendingIntents: intents,
		CheckedAt:      time.Now().UTC(),
	}, nil
}
