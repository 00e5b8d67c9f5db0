// Package session owns one module graph for the lifetime of a build or dev
// session. Graph mutations go through a single writer goroutine that batches
// file events; classification runs immediately against the last published
// dependency index.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/internal/telemetry"
)

// DefaultDebounce is the quiet period that closes a batch of file events.
const DefaultDebounce = 50 * time.Millisecond

// ErrNoExecutor is returned by Execute when no executor is configured.
var ErrNoExecutor = errors.New("session: no executor configured")

// Executor runs independent per-node work, such as transforms.
type Executor interface {
	Execute(ctx context.Context, items []graph.WorkItem) (ExecStats, error)
}

// ExecStats is what an executor reports back.
type ExecStats struct {
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Update describes one applied batch.
type Update struct {
	Batch        int                 `json:"batch"`
	Files        []hmr.FileChange    `json:"files"`
	GraphChanges []graph.GraphChange `json:"graphChanges"`
	GraphHash    string              `json:"graphHash"`
	Nodes        int                 `json:"nodes"`
}

// DigestCache forgets stored digests of files that no longer exist.
// *digestcache.Cache implements it.
type DigestCache interface {
	Remove(path string) error
}

// Options configures a Session.
type Options struct {
	Graph   graph.Options
	Entries []string
	// Classifier defaults to hmr.New with the graph root.
	Classifier *hmr.Classifier
	Debounce   time.Duration
	Executor   Executor
	Telemetry  *telemetry.Telemetry
	// Digests, when set, drops the digest of every deleted file.
	Digests DigestCache
	// OnUpdate is called from the writer goroutine after every batch.
	OnUpdate func(Update)
}

// Session owns a graph and its writer queue.
type Session struct {
	id         string
	graph      *graph.Graph
	entries    []string
	classifier *hmr.Classifier
	debounce   time.Duration
	executor   Executor
	tel        *telemetry.Telemetry
	digests    DigestCache
	onUpdate   func(Update)

	// queued holds changes not yet taken by the writer; wake signals it.
	mu     sync.Mutex
	queued []hmr.FileChange
	wake   chan struct{}

	index   atomic.Pointer[graph.Index]
	hash    atomic.Value // string
	batches int

	runOnce sync.Once
}

// New creates a session with an empty graph.
func New(opts Options) *Session {
	g := graph.New(opts.Graph)
	s := &Session{
		id:         uuid.NewString(),
		graph:      g,
		entries:    opts.Entries,
		classifier: opts.Classifier,
		debounce:   opts.Debounce,
		executor:   opts.Executor,
		tel:        opts.Telemetry,
		digests:    opts.Digests,
		onUpdate:   opts.OnUpdate,
		wake:       make(chan struct{}, 1),
	}
	if s.classifier == nil {
		s.classifier = hmr.New(hmr.Options{Root: g.Root()})
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	s.hash.Store("")
	return s
}

// ID is a random identifier for logs and dev clients.
func (s *Session) ID() string { return s.id }

// Graph returns the owned graph. Callers must not mutate it while Run is active.
func (s *Session) Graph() *graph.Graph { return s.graph }

// Hash returns the graph fingerprint as of the last applied batch.
func (s *Session) Hash() string { return s.hash.Load().(string) }

// Index returns the last published dependency index, or nil before Build.
func (s *Session) Index() *graph.Index { return s.index.Load() }

// Build adds every entry and publishes the first index and hash. Entries
// without content are reported in the returned error; the rest still build.
func (s *Session) Build(ctx context.Context) error {
	ctx, span := s.tel.Start(ctx, "session.build", attribute.Int("entries", len(s.entries)))
	log := ctxlog.FromContext(ctx).With("session", s.id)

	var errs []error
	for _, entry := range s.entries {
		if _, ok := s.graph.AddEntry(ctx, entry); !ok {
			errs = append(errs, fmt.Errorf("entry %s: no content", entry))
		}
	}
	s.publish()
	err := errors.Join(errs...)

	log.Info("graph built", "nodes", s.graph.Len(), "unresolved", len(s.graph.Unresolved()), "hash", s.Hash())
	telemetry.End(span, err)
	return err
}

// Notify classifies changes at once against the last published index and
// queues them for the writer. It never waits for the writer: changes are
// appended to an unbounded pending list.
func (s *Session) Notify(ctx context.Context, changes ...hmr.FileChange) hmr.Decision {
	decision := s.classifier.ClassifyBatch(changes, s.currentIndex())
	s.tel.RecordDecision(ctx, string(decision.Level))

	if len(changes) > 0 {
		s.mu.Lock()
		s.queued = append(s.queued, changes...)
		s.mu.Unlock()
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return decision
}

// take empties the pending list.
func (s *Session) take() []hmr.FileChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queued
	s.queued = nil
	return out
}

// currentIndex returns the published index as an hmr.Index, or a nil
// interface when there is none.
func (s *Session) currentIndex() hmr.Index {
	if idx := s.index.Load(); idx != nil {
		return idx
	}
	return nil
}

// Run is the single writer: it drains queued events, waits for the debounce
// window to go quiet, and applies each batch. It returns when ctx is done.
// Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session: already running")
	}

	var pending []hmr.FileChange
	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			pending = append(pending, s.take()...)
			timer.Reset(s.debounce)
		case <-timer.C:
			if len(pending) > 0 {
				s.apply(ctx, pending)
				pending = nil
			}
		}
	}
}

// Flush applies everything queued so far without waiting for the debounce.
// It must not be called while Run is active.
func (s *Session) Flush(ctx context.Context) Update {
	select {
	case <-s.wake:
	default:
	}
	return s.apply(ctx, s.take())
}

// apply invalidates one batch and recomputes the graph hash once.
func (s *Session) apply(ctx context.Context, files []hmr.FileChange) Update {
	start := time.Now()
	ctx, span := s.tel.Start(ctx, "session.batch", attribute.Int("files", len(files)))
	defer span.End()
	log := ctxlog.FromContext(ctx).With("session", s.id)

	var changes []graph.GraphChange
	retry := false
	for _, f := range dedupe(files) {
		switch {
		case f.Kind == hmr.Deleted:
			changes = append(changes, s.graph.Remove(ctx, f.Path)...)
			s.forget(ctx, f.Path)
		case s.known(f.Path):
			changes = append(changes, s.graph.Invalidate(ctx, f.Path)...)
		default:
			// an unknown file only matters if some importer was waiting for it
			retry = true
		}
	}
	if retry {
		changes = append(changes, s.graph.Retry(ctx)...)
	}

	s.publish()
	s.batches++
	u := Update{
		Batch:        s.batches,
		Files:        files,
		GraphChanges: changes,
		GraphHash:    s.Hash(),
		Nodes:        s.graph.Len(),
	}

	s.tel.RecordBatch(ctx, len(changes), time.Since(start))
	log.Debug("batch applied", "batch", u.Batch, "files", len(files), "changes", len(changes), "hash", u.GraphHash)
	if s.onUpdate != nil {
		s.onUpdate(u)
	}
	return u
}

// forget drops the stored digest of a deleted file. Failures are logged.
func (s *Session) forget(ctx context.Context, path string) {
	if s.digests == nil {
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.graph.Root(), path)
	}
	if err := s.digests.Remove(filepath.Clean(path)); err != nil {
		ctxlog.FromContext(ctx).Warn("dropping digest", "path", path, "error", err)
	}
}

func (s *Session) known(path string) bool {
	_, ok := s.graph.Lookup(path)
	return ok
}

func (s *Session) publish() {
	s.hash.Store(s.graph.ComputeHash())
	s.index.Store(s.graph.Index())
}

// Execute hands the current work list to the executor.
func (s *Session) Execute(ctx context.Context) (ExecStats, error) {
	if s.executor == nil {
		return ExecStats{}, ErrNoExecutor
	}
	items := s.graph.WorkList()
	ctx, span := s.tel.Start(ctx, "session.execute", attribute.Int("items", len(items)))
	stats, err := s.executor.Execute(ctx, items)
	telemetry.End(span, err)
	if err != nil {
		return stats, fmt.Errorf("executing work list: %w", err)
	}
	return stats, nil
}

// dedupe keeps the last change per path, in first-seen order.
func dedupe(files []hmr.FileChange) []hmr.FileChange {
	last := make(map[string]int, len(files))
	var order []string
	for i, f := range files {
		key := filepath.Clean(f.Path)
		if _, seen := last[key]; !seen {
			order = append(order, key)
		}
		last[key] = i
	}
	out := make([]hmr.FileChange, 0, len(order))
	for _, key := range order {
		out = append(out, files[last[key]])
	}
	return out
}
