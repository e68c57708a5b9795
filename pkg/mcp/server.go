// Package mcp implements a Model Context Protocol server exposing the SQL
// syntax tree pipeline as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/sqltree/pkg/cache"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "sqltree"

	// toolCount is the expected number of registered tools.
	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Engine parses tool input. Nil uses the tree-sitter engine.
	Engine syntax.Engine

	// Grammar is the locator used when a call names none.
	Grammar string

	// SnippetMax is the default snippet limit. Zero uses projector.DefaultMaxSnippet.
	SnippetMax int

	// Cache reuses projections of repeated queries. Nil disables caching.
	Cache *cache.Projections

	// Version is reported in the implementation info.
	Version string
}

// Server wraps the MCP SDK server with sqltree tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	mu      sync.RWMutex
	tools   []string
	metrics *observability.REDMetrics
	tracer  trace.Tracer
	logger  *slog.Logger

	engine     syntax.Engine
	grammar    string
	snippetMax int
	cache      *cache.Projections

	sessMu   sync.Mutex
	sessions map[string]*session.Session
}

// NewServer creates a new MCP server with all sqltree tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version,
		},
		opts,
	)

	srv := &Server{
		inner:      inner,
		tools:      make([]string, 0, toolCount),
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		logger:     deps.Logger,
		engine:     deps.Engine,
		grammar:    deps.Grammar,
		snippetMax: deps.SnippetMax,
		cache:      deps.Cache,
		sessions:   make(map[string]*session.Session),
	}

	if srv.logger == nil {
		srv.logger = slog.Default()
	}

	if srv.engine == nil {
		srv.engine = treesitter.NewEngine()
	}

	if srv.grammar == "" {
		srv.grammar = treesitter.DefaultGrammar
	}

	if srv.snippetMax == 0 {
		srv.snippetMax = projector.DefaultMaxSnippet
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	defer s.Close()

	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// Close releases every parser session the tools opened.
func (s *Server) Close() {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	for locator, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, locator)
	}
}

// session returns a ready session for locator, loading the grammar on first use.
func (s *Server) session(ctx context.Context, locator string) (*session.Session, error) {
	if locator == "" {
		locator = s.grammar
	}

	s.sessMu.Lock()

	sess, ok := s.sessions[locator]
	if !ok {
		sess = session.New(s.engine, locator,
			session.WithLogger(s.logger),
			session.WithMetrics(s.metrics),
		)
		s.sessions[locator] = sess
	}

	s.sessMu.Unlock()

	err := sess.Initialize(ctx)
	if err != nil {
		return nil, err
	}

	// A concurrent first call may still be loading.
	select {
	case <-sess.Start(ctx):
	case <-ctx.Done():
		return nil, fmt.Errorf("load grammar %s: %w", locator, ctx.Err())
	}

	if err := sess.Err(); err != nil {
		return nil, err
	}

	return sess, nil
}

// registerTools adds all sqltree MCP tools to the server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameParseTree,
		Description: parseTreeToolDescription,
	}, withMetrics(s.metrics, ToolNameParseTree, withTracing(s.tracer, ToolNameParseTree, s.handleParseTree)))

	s.trackTool(ToolNameParseTree)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameNodeAt,
		Description: nodeAtToolDescription,
	}, withMetrics(s.metrics, ToolNameNodeAt, withTracing(s.tracer, ToolNameNodeAt, s.handleNodeAt)))

	s.trackTool(ToolNameNodeAt)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameExamples,
		Description: examplesToolDescription,
	}, withMetrics(s.metrics, ToolNameExamples, withTracing(s.tracer, ToolNameExamples, handleExamples)))

	s.trackTool(ToolNameExamples)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, mcpSpanPrefix+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, mcpSpanPrefix+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	parseTreeToolDescription = "Parse a SQL query into its concrete syntax tree. " +
		"Returns the display rows (type, field, range, snippet), a summary and the rendered tree. " +
		"Accepts inline SQL or the name of a bundled example."

	nodeAtToolDescription = "Find the innermost syntax node at a 1-based line and column of a SQL query."

	examplesToolDescription = "List the bundled example SQL queries."
)
