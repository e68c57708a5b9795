// Package session owns the lifecycle of one grammar-bound parser: loading
// the grammar, building the parser and running reparses against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

// tracerName is the default OTel tracer name for the session package.
const tracerName = "sqltree"

const opReparse = "reparse"

// Sentinel errors.
var (
	// ErrInitFailed wraps the cause when the grammar or parser cannot be built.
	ErrInitFailed = errors.New("parser initialization failed")
	// ErrNotReady is returned by Reparse before initialization completes.
	ErrNotReady = errors.New("parser session not ready")
	// ErrParseFailed is returned when the engine yields no tree or a rootless tree.
	ErrParseFailed = errors.New("failed to parse SQL query")
	// ErrClosed is returned by an initialization that was overtaken by Close.
	ErrClosed = errors.New("parser session closed")
)

// Status is the lifecycle state of a Session.
type Status int

// Session states.
const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (st Status) String() string {
	switch st {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(st))
	}
}

// Option configures a Session.
type Option func(*Session)

// WithTracer sets the tracer used for reparse spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}

// WithMetrics records every reparse in the given RED metrics.
func WithMetrics(metrics *observability.REDMetrics) Option {
	return func(s *Session) { s.metrics = metrics }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Session binds a syntax engine to one grammar. It is safe for concurrent use.
type Session struct {
	engine  syntax.Engine
	locator string

	tracer  trace.Tracer
	metrics *observability.REDMetrics
	logger  *slog.Logger

	mu      sync.Mutex
	status  Status
	err     error
	parser  syntax.Parser
	loading chan struct{}
	// epoch invalidates loads that were started before a Close.
	epoch uint64
}

// New creates an uninitialized session for the grammar at locator.
func New(engine syntax.Engine, locator string, opts ...Option) *Session {
	s := &Session{
		engine:  engine,
		locator: locator,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	return s
}

// Grammar returns the grammar locator the session loads.
func (s *Session) Grammar() string { return s.locator }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Err returns the failure recorded by the last initialization, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Initialize loads the grammar and builds the parser. It is a no-op when the
// session is already loading or ready; a failed or closed session retries.
func (s *Session) Initialize(ctx context.Context) error {
	done, epoch, started := s.begin()
	if !started {
		return nil
	}

	return s.load(ctx, epoch, done)
}

// Start runs Initialize in the background. The returned channel is closed
// once the session has left the loading state.
func (s *Session) Start(ctx context.Context) <-chan struct{} {
	done, epoch, started := s.begin()
	if started {
		go func() {
			_ = s.load(ctx, epoch, done) //nolint:errcheck // recorded in Err
		}()
	}

	return done
}

// begin moves the session to loading. started is false when another load is
// running (done is that load's channel) or the session is already ready.
func (s *Session) begin() (done chan struct{}, epoch uint64, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusLoading:
		return s.loading, s.epoch, false
	case StatusReady:
		ready := make(chan struct{})
		close(ready)

		return ready, s.epoch, false
	case StatusUninitialized, StatusFailed:
	}

	s.status = StatusLoading
	s.err = nil
	s.loading = make(chan struct{})

	return s.loading, s.epoch, true
}

func (s *Session) load(ctx context.Context, epoch uint64, done chan struct{}) error {
	defer close(done)

	started := time.Now()

	parser, err := s.build(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		if parser != nil {
			parser.Close()
		}

		return ErrClosed
	}

	if err != nil {
		s.status = StatusFailed
		s.err = fmt.Errorf("%w: %w", ErrInitFailed, err)

		s.logger.WarnContext(ctx, "parser initialization failed",
			"grammar", s.locator, "error", err)

		return s.err
	}

	s.parser = parser
	s.status = StatusReady

	s.logger.DebugContext(ctx, "parser ready",
		"grammar", s.locator, "elapsed", time.Since(started))

	return nil
}

func (s *Session) build(ctx context.Context) (syntax.Parser, error) {
	grammar, err := s.engine.LoadGrammar(ctx, s.locator)
	if err != nil {
		return nil, fmt.Errorf("load grammar %s: %w", s.locator, err)
	}

	parser, err := s.engine.NewParser(grammar)
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}

	return parser, nil
}

// Reparse parses text with the session's parser. previous is a reuse hint
// only; the returned tree is always complete and owned by the caller.
func (s *Session) Reparse(ctx context.Context, text string, previous syntax.Tree) (syntax.Tree, error) {
	s.mu.Lock()
	status, parser := s.status, s.parser
	s.mu.Unlock()

	if status != StatusReady || parser == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, status)
	}

	ctx = observability.WithGrammar(ctx, s.locator)

	ctx, span := s.tracer.Start(ctx, "sqltree.reparse",
		trace.WithAttributes(
			attribute.String("sqltree.grammar", s.locator),
			attribute.Int("sqltree.input.bytes", len(text)),
			attribute.Bool("sqltree.incremental", previous != nil),
		))
	defer span.End()

	if s.metrics != nil {
		defer s.metrics.TrackInflight(ctx, opReparse)()
	}

	started := time.Now()

	tree, err := s.parse(ctx, parser, text, previous)

	outcome := "ok"
	if err != nil {
		outcome = "error"

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if s.metrics != nil {
		s.metrics.RecordRequest(ctx, opReparse, outcome, time.Since(started))
	}

	return tree, err
}

func (s *Session) parse(ctx context.Context, parser syntax.Parser, text string, previous syntax.Tree) (syntax.Tree, error) {
	tree, err := parser.Parse(ctx, text, previous)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	if tree == nil {
		return nil, fmt.Errorf("%w: empty result", ErrParseFailed)
	}

	if tree.Root() == nil {
		tree.Close()

		return nil, fmt.Errorf("%w: empty result", ErrParseFailed)
	}

	return tree, nil
}

// Close releases the parser and returns the session to uninitialized.
// A load still in flight is discarded when it completes.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++

	if s.parser != nil {
		s.parser.Close()
		s.parser = nil
	}

	if s.status == StatusLoading {
		s.logger.Debug("closing session with grammar load in flight", "grammar", s.locator)
	}

	s.status = StatusUninitialized
	s.err = nil
}
