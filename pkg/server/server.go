// Package server hosts the live playground over HTTP: a JSON parse API, the
// example catalogue and a websocket where every connection drives its own
// reparse pipeline.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/sqltree/pkg/cache"
	"github.com/Sumatoshi-tech/sqltree/pkg/examples"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/scheduler"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

const (
	tracerName = "sqltree/server"

	defaultMaxMessageBytes = 1 << 20
	shutdownGrace          = 5 * time.Second
)

// ErrParserUnavailable is reported while the shared session is not ready.
var ErrParserUnavailable = errors.New("parser unavailable")

// Timeouts bound the HTTP server connections.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTracer sets the tracer used by the HTTP middleware.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// WithMetrics records every HTTP request and socket call.
func WithMetrics(red *observability.REDMetrics) Option {
	return func(s *Server) { s.red = red }
}

// WithReparseMetrics records the debounce decisions of socket pipelines.
func WithReparseMetrics(metrics *observability.ReparseMetrics) Option {
	return func(s *Server) { s.reparse = metrics }
}

// WithMetricsHandler mounts a scrape handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) { s.metricsHandler = handler }
}

// WithInterval sets the debounce interval of socket pipelines.
func WithInterval(interval time.Duration) Option {
	return func(s *Server) { s.interval = interval }
}

// WithSnippetMax sets the default snippet length.
func WithSnippetMax(n int) Option {
	return func(s *Server) { s.snippetMax = n }
}

// WithMaxMessageBytes limits inbound socket messages and request bodies.
func WithMaxMessageBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxMessage = n
		}
	}
}

// WithCache reuses projections across identical POST /api/parse requests.
func WithCache(projections *cache.Projections) Option {
	return func(s *Server) { s.cache = projections }
}

// Server serves the playground. All connections share one parser session.
type Server struct {
	sess           *session.Session
	logger         *slog.Logger
	tracer         trace.Tracer
	red            *observability.REDMetrics
	reparse        *observability.ReparseMetrics
	metricsHandler http.Handler
	cache          *cache.Projections
	interval       time.Duration
	snippetMax     int
	maxMessage     int64

	upgrader     websocket.Upgrader
	messages     *validator
	parseRequest *validator
}

// New creates a server on top of sess. The caller owns sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		sess:         sess,
		logger:       slog.Default(),
		interval:     scheduler.DefaultInterval,
		snippetMax:   projector.DefaultMaxSnippet,
		maxMessage:   defaultMaxMessageBytes,
		messages:     mustValidator("message.json"),
		parseRequest: mustValidator("parse_request.json"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	return s
}

// Handler returns the routed, traced HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(s.ready))

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return observability.HTTPMiddleware(s.tracer, s.red, mux)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener, timeouts Timeouts) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  timeouts.Read,
		WriteTimeout: timeouts.Write,
		IdleTimeout:  timeouts.Idle,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.InfoContext(ctx, "playground server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func (s *Server) ready(_ context.Context) error {
	if status := s.sess.Status(); status != session.StatusReady {
		return fmt.Errorf("%w: %s", ErrParserUnavailable, status)
	}

	return nil
}

// ParseRequest is the body of POST /api/parse.
type ParseRequest struct {
	SQL        string `json:"sql"`
	AllNodes   bool   `json:"allNodes,omitempty"`
	MaxSnippet int    `json:"maxSnippet,omitempty"`
}

// ParseResponse is the answer of POST /api/parse.
type ParseResponse struct {
	Screen  view.Screen             `json:"screen"`
	Nodes   []projector.DisplayNode `json:"nodes,omitempty"`
	Summary *projector.Summary      `json:"summary,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

func (s *Server) handleParse(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	body, err := io.ReadAll(http.MaxBytesReader(rw, hr.Body, s.maxMessage))
	if err != nil {
		writeJSON(ctx, rw, http.StatusRequestEntityTooLarge, ParseResponse{Error: err.Error()})

		return
	}

	if err := s.parseRequest.Validate(body); err != nil {
		writeJSON(ctx, rw, http.StatusBadRequest, ParseResponse{Error: err.Error()})

		return
	}

	var req ParseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(ctx, rw, http.StatusBadRequest, ParseResponse{Error: err.Error()})

		return
	}

	status := s.sess.Status()
	if status != session.StatusReady {
		screen := view.Render(view.State{Status: status, Err: s.sess.Err()})
		writeJSON(ctx, rw, http.StatusServiceUnavailable, ParseResponse{Screen: screen, Error: screen.Message})

		return
	}

	if req.SQL == "" {
		writeJSON(ctx, rw, http.StatusOK, ParseResponse{Screen: view.Render(view.State{Status: status})})

		return
	}

	snippetMax := s.snippetMax
	if req.MaxSnippet > 0 {
		snippetMax = req.MaxSnippet
	}

	key := cache.NewKey(s.sess.Grammar(), req.SQL, req.AllNodes, snippetMax)

	nodes, hit := s.cache.Get(key)
	if !hit {
		nodes, err = s.project(ctx, req.SQL,
			projector.WithMaxSnippet(snippetMax),
			projector.WithAnonymous(req.AllNodes),
		)
		if err != nil {
			screen := view.Render(view.State{Status: status, Err: err})
			writeJSON(ctx, rw, http.StatusUnprocessableEntity, ParseResponse{Screen: screen, Error: err.Error()})

			return
		}

		s.cache.Put(key, nodes)
	}

	summary := projector.Stats(nodes)

	writeJSON(ctx, rw, http.StatusOK, ParseResponse{
		Screen:  view.Render(view.State{Status: status, Nodes: nodes}),
		Nodes:   nodes,
		Summary: &summary,
	})
}

func (s *Server) project(ctx context.Context, text string, opts ...projector.Option) ([]projector.DisplayNode, error) {
	tree, err := s.sess.Reparse(ctx, text, nil)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	return projector.Project(tree, opts...), nil
}

func (s *Server) handleExamples(rw http.ResponseWriter, hr *http.Request) {
	writeJSON(hr.Context(), rw, http.StatusOK, examples.All())
}

// writeJSON encodes value as the response body with the given status.
func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(value); err != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}
