// Package scheduler debounces text changes into serialized reparses and
// commits their results in generation order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

// DefaultInterval is the quiet period after the last edit before a reparse runs.
const DefaultInterval = 300 * time.Millisecond

// Reparser parses text, optionally reusing a previous tree.
type Reparser interface {
	Reparse(ctx context.Context, text string, previous syntax.Tree) (syntax.Tree, error)
}

// Result is one committed reparse outcome. On failure Tree is nil and the
// previously committed tree stays current.
type Result struct {
	Generation uint64
	Text       string
	Tree       syntax.Tree
	Err        error
}

// Snapshot describes the last committed result.
type Snapshot struct {
	Generation uint64
	Text       string
	Err        error
}

// CommitFunc receives committed results. It runs synchronously on the
// reparse flow; Result.Tree is only valid until it returns.
type CommitFunc func(ctx context.Context, res Result)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the debounce interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics records debounce decisions.
func WithMetrics(metrics *observability.ReparseMetrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// WithCommit registers the commit callback.
func WithCommit(fn CommitFunc) Option {
	return func(s *Scheduler) { s.commit = fn }
}

type job struct {
	text string
	gen  uint64
}

// Scheduler coalesces rapid edits into one reparse per quiet period and
// keeps at most one reparse in flight.
type Scheduler struct {
	reparser Reparser
	interval time.Duration
	logger   *slog.Logger
	commit   CommitFunc
	metrics  *observability.ReparseMetrics

	ctx    context.Context //nolint:containedctx // cancels in-flight reparses on Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	gen      uint64
	pending  *job
	timer    *time.Timer
	timerSeq uint64
	running  bool
	idle     chan struct{}
	next     *job

	committed uint64
	tree      syntax.Tree
	snapshot  Snapshot
}

// New creates a scheduler feeding reparser.
func New(reparser Reparser, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		reparser: reparser,
		interval: DefaultInterval,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Interval returns the debounce interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Schedule records text as the latest content and restarts the debounce
// timer. Empty text is ignored and leaves any pending reparse untouched.
func (s *Scheduler) Schedule(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if text == "" {
		s.logger.Debug("empty input, reparse skipped")

		return
	}

	if s.pending != nil {
		s.metrics.Coalesced(s.ctx)
	}

	s.gen++
	s.pending = &job{text: text, gen: s.gen}
	s.metrics.Scheduled(s.ctx)

	s.stopTimerLocked()

	seq := s.timerSeq
	s.timer = time.AfterFunc(s.interval, func() { s.fire(seq) })
}

// Pending reports whether a reparse is waiting for its timer.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending != nil
}

// Cancel drops the pending reparse, if any. A reparse already running is
// left to finish.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.pending = nil
	s.next = nil
}

// Flush runs the pending reparse now and waits until the scheduler is idle.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()

	if s.pending != nil && !s.closed {
		s.stopTimerLocked()

		pending := *s.pending
		s.pending = nil
		s.dispatchLocked(pending)
	}

	idle := s.idle
	running := s.running
	s.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush: %w", ctx.Err())
	}
}

// Current returns the last committed result.
func (s *Scheduler) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot
}

// Close cancels pending work, waits for an in-flight reparse and releases
// the current tree.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopTimerLocked()
	s.pending = nil
	s.next = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
}

func (s *Scheduler) stopTimerLocked() {
	s.timerSeq++

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || seq != s.timerSeq || s.pending == nil {
		return
	}

	pending := *s.pending
	s.pending = nil
	s.timer = nil
	s.dispatchLocked(pending)
}

// dispatchLocked starts j, or parks it behind the running reparse. A parked
// job replaces any older parked one.
func (s *Scheduler) dispatchLocked(j job) {
	if s.running {
		if s.next != nil {
			s.metrics.Coalesced(s.ctx)
		}

		s.next = &j

		return
	}

	s.running = true
	s.idle = make(chan struct{})
	s.wg.Add(1)

	go s.run(j)
}

func (s *Scheduler) run(j job) {
	defer s.wg.Done()

	for {
		s.execute(j)

		s.mu.Lock()

		if s.next == nil || s.closed {
			s.next = nil
			s.running = false
			close(s.idle)
			s.mu.Unlock()

			return
		}

		j = *s.next
		s.next = nil
		s.mu.Unlock()
	}
}

func (s *Scheduler) execute(j job) {
	s.mu.Lock()
	previous := s.tree
	s.mu.Unlock()

	ctx := observability.WithGeneration(s.ctx, j.gen)

	tree, err := s.reparser.Reparse(ctx, j.text, previous)

	if errors.Is(err, session.ErrNotReady) {
		s.logger.DebugContext(ctx, "parser not ready, reparse dropped")
		s.metrics.Dropped(ctx)

		return
	}

	if err != nil && ctx.Err() != nil {
		return
	}

	res, ok := s.apply(ctx, j, tree, err)
	if !ok {
		return
	}

	if err != nil {
		s.logger.DebugContext(ctx, "reparse failed", "error", err)
	}

	if s.commit != nil {
		s.commit(ctx, res)
	}
}

// apply records the outcome of j unless a newer generation was already
// committed. Stale trees are released.
func (s *Scheduler) apply(ctx context.Context, j job, tree syntax.Tree, err error) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.gen <= s.committed || s.closed {
		if tree != nil {
			tree.Close()
		}

		s.logger.DebugContext(ctx, "stale reparse discarded", "committed", s.committed)
		s.metrics.Stale(ctx)

		return Result{}, false
	}

	s.committed = j.gen
	s.snapshot = Snapshot{Generation: j.gen, Text: j.text, Err: err}

	if err != nil {
		return Result{Generation: j.gen, Text: j.text, Err: err}, true
	}

	if s.tree != nil {
		s.tree.Close()
	}

	s.tree = tree

	return Result{Generation: j.gen, Text: j.text, Tree: tree}, true
}
