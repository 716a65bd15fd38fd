// Package statefile stores sync state in a single JSON document. Every write
// is a read-modify-write under an in-process mutex and an exclusive lock on
// "<path>.lock", and lands through a temp file renamed over the original.
package statefile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rpggio/qasync/internal/repository"
)

const (
	// Version is the document layout version this package writes.
	Version = 1

	// MaxActivity bounds the activity entries kept per project.
	MaxActivity = 200

	defaultLockTimeout = 10 * time.Second
	lockPollInterval   = 10 * time.Millisecond
)

// ErrLockTimeout is returned when another process holds the state file lock
// for longer than the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for state file lock")

// Store is a JSON state file shared by the repositories in this package.
// Reads reuse the last decoded document while the file on disk is
// unchanged; writes always re-read the file under the lock.
type Store struct {
	path        string
	lockTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu sync.Mutex

	cacheMu sync.Mutex
	cached  *snapshot
}

// snapshot pairs a decoded document with the file it was read from.
type snapshot struct {
	info os.FileInfo
	doc  *document
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long writes wait for the file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the document timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open prepares a store at path. The file itself is created on first write.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioErr("failed to create state directory", err)
	}
	s := &Store{
		path:        path,
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Close is a no-op; the store holds no open handles between operations.
func (s *Store) Close() error {
	return nil
}

// document is the on-disk layout. Projects stay raw until touched so one
// undecodable project never blocks the others.
type document struct {
	Version   int                        `json:"version"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Projects  map[string]json.RawMessage `json:"projects"`

	// decoded caches projects by name. Views share them read-only.
	mu      sync.Mutex
	decoded map[string]*projectDoc
	written map[string]bool
}

// ioErr marks a state file I/O failure as transient.
func ioErr(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, repository.ErrTransient, err)
}

// view runs fn against the current document without locking. Renames are
// atomic, so a reader always sees a complete document. fn must not modify
// the document or the projects it decodes.
func (s *Store) view(ctx context.Context, fn func(doc *document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := s.current()
	if err != nil {
		return err
	}
	return fn(doc)
}

// current returns the cached document when the state file is the one it
// was decoded from. Every write renames a new file into place, so a write
// by any process changes the file identity.
func (s *Store) current() (*document, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.empty(), nil
	}
	if err != nil {
		return nil, ioErr("failed to stat state file", err)
	}

	s.cacheMu.Lock()
	c := s.cached
	s.cacheMu.Unlock()
	if c != nil && sameFile(c.info, info) {
		return c.doc, nil
	}

	doc, info, err := s.read()
	if err != nil {
		return nil, err
	}
	if info != nil {
		s.remember(info, doc)
	}
	return doc, nil
}

func (s *Store) remember(info os.FileInfo, doc *document) {
	s.cacheMu.Lock()
	s.cached = &snapshot{info: info, doc: doc}
	s.cacheMu.Unlock()
}

func sameFile(a, b os.FileInfo) bool {
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

// update runs fn under both locks and persists the document if fn succeeds
// and put at least one project.
func (s *Store) update(ctx context.Context, fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, _, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	if !doc.changed() {
		return nil
	}
	doc.UpdatedAt = s.now().UTC()
	info, err := s.write(doc)
	if err != nil {
		return err
	}
	doc.settle()
	s.remember(info, doc)
	return nil
}

func (s *Store) empty() *document {
	now := s.now().UTC()
	return &document{
		Version:   Version,
		CreatedAt: now,
		UpdatedAt: now,
		Projects:  map[string]json.RawMessage{},
	}
}

// read decodes the state file and returns the stat of the exact file read.
// A missing file yields an empty document and nil info.
func (s *Store) read() (*document, os.FileInfo, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.empty(), nil, nil
	}
	if err != nil {
		return nil, nil, ioErr("failed to read state file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, ioErr("failed to read state file", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, ioErr("failed to read state file", err)
	}

	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, nil, fmt.Errorf("%w: state file %s: %v", repository.ErrPersistenceCorruption, s.path, err)
	}
	if doc.Version > Version {
		return nil, nil, fmt.Errorf("%w: state file %s has unsupported version %d", repository.ErrPersistenceCorruption, s.path, doc.Version)
	}
	if doc.Version == 0 {
		doc.Version = Version
	}
	if doc.Projects == nil {
		doc.Projects = map[string]json.RawMessage{}
	}
	return doc, info, nil
}

func (s *Store) write(doc *document) (os.FileInfo, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state file: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return nil, ioErr("failed to create temp state file", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, ioErr("failed to write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, ioErr("failed to sync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, ioErr("failed to close temp state file", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return nil, ioErr("failed to set state file mode", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return nil, ioErr("failed to replace state file", err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.logger.Debug("state directory sync failed", "dir", dir, "error", err)
		}
		d.Close()
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, ioErr("failed to stat state file", err)
	}
	return info, nil
}

// lock takes the cross-process lock, polling until ctx ends or the lock
// timeout passes.
func (s *Store) lock(ctx context.Context) (func(), error) {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, ioErr("failed to open state lock file", err)
	}

	deadline := time.Now().Add(s.lockTimeout)
	for {
		ok, err := tryLock(f)
		if err != nil {
			f.Close()
			return nil, ioErr("failed to lock state file", err)
		}
		if ok {
			return func() {
				if err := unlock(f); err != nil {
					s.logger.Warn("state file unlock failed", "path", s.path, "error", err)
				}
				f.Close()
			}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w: %w: %s", ErrLockTimeout, repository.ErrTransient, s.path)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// projectDoc is one project's persisted state.
type projectDoc struct {
	Name             string               `json:"name"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	Config           configDoc            `json:"config"`
	SyncRecords      map[string]recordDoc `json:"sync_records"`
	Cursors          map[string]cursorDoc `json:"cursors"`
	ScenarioProgress *scenarioDoc         `json:"scenario_progress,omitempty"`
	Lease            *leaseDoc            `json:"lease,omitempty"`
	Intents          map[string]intentDoc `json:"intents,omitempty"`
	Activity         []activityDoc        `json:"activity,omitempty"`
}

type configDoc struct {
	SiteURL             string `json:"site_url"`
	PRDRef              string `json:"prd_ref"`
	Channel             string `json:"channel"`
	Thread              string `json:"thread"`
	TrackerProjectID    string `json:"tracker_project_id"`
	TrackerProjectURL   string `json:"tracker_project_url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

type recordDoc struct {
	IssueID     string    `json:"issue_id"`
	Category    string    `json:"category"`
	Merged      bool      `json:"merged"`
	CommentID   string    `json:"comment_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

type cursorDoc struct {
	Position        string    `json:"position"`
	PolledAt        time.Time `json:"polled_at"`
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
}

type scenarioDoc struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

type leaseDoc struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type intentDoc struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type activityDoc struct {
	ID        int64     `json:"id"`
	EventID   *string   `json:"event_id,omitempty"`
	Type      string    `json:"type"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// project decodes one project, distinguishing missing from undecodable.
// Decoded projects are cached on the document; inside update the caller may
// modify the returned project and put it back.
func (d *document) project(name string) (*projectDoc, error) {
	d.mu.Lock()
	cached, ok := d.decoded[name]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	raw, ok := d.Projects[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var p projectDoc
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: project %q: %v", repository.ErrPersistenceCorruption, name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.SyncRecords == nil {
		p.SyncRecords = map[string]recordDoc{}
	}
	if p.Cursors == nil {
		p.Cursors = map[string]cursorDoc{}
	}
	if p.Intents == nil {
		p.Intents = map[string]intentDoc{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.decoded[name]; ok {
		return cached, nil
	}
	if d.decoded == nil {
		d.decoded = map[string]*projectDoc{}
	}
	d.decoded[name] = &p
	return &p, nil
}

// childWrite decodes a project for a write to its nested state; a missing
// project reports the same error a foreign key would.
func (d *document) childWrite(name string) (*projectDoc, error) {
	p, err := d.project(name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrForeignKeyViolation
	}
	return p, err
}

func (d *document) put(p *projectDoc) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode project %q: %w", p.Name, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Projects[p.Name] = raw
	if d.decoded == nil {
		d.decoded = map[string]*projectDoc{}
	}
	if d.written == nil {
		d.written = map[string]bool{}
	}
	d.decoded[p.Name] = p
	d.written[p.Name] = true
	return nil
}

func (d *document) changed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.written) > 0
}

// settle drops decoded projects that were read but not put, since the
// caller may have modified them, so the document can be shared by views.
func (d *document) settle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name := range d.decoded {
		if !d.written[name] {
			delete(d.decoded, name)
		}
	}
	d.written = nil
}
