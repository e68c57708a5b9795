// Package lsp serves the syntax tree pipeline to editors over the Language
// Server Protocol. Every open document gets its own debounced pipeline;
// hover and document highlights resolve the node under the caret, and the
// custom sqltree/* methods drive tree-to-editor highlighting.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	// Registers the commonlog backend used by glsp.
	_ "github.com/tliron/commonlog/simple"

	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/playground"
	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/safeconv"
	"github.com/Sumatoshi-tech/sqltree/pkg/scheduler"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

const serverName = "sqltree"

// Custom methods.
const (
	MethodTree             = "sqltree/tree"
	MethodHoverNode        = "sqltree/hoverNode"
	MethodLeave            = "sqltree/leave"
	MethodDecorations      = "sqltree/decorations"
	MethodClearDecorations = "sqltree/clearDecorations"
	MethodScreen           = "sqltree/screen"
)

const diagnosticSource = "sqltree"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) { srv.logger = logger }
}

// WithInterval sets the debounce interval of document pipelines.
func WithInterval(interval time.Duration) Option {
	return func(srv *Server) { srv.interval = interval }
}

// WithSnippetMax sets the snippet length shown in hovers.
func WithSnippetMax(n int) Option {
	return func(srv *Server) { srv.snippetMax = n }
}

// WithReparseMetrics records debounce decisions of document pipelines.
func WithReparseMetrics(metrics *observability.ReparseMetrics) Option {
	return func(srv *Server) { srv.reparse = metrics }
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(version string) Option {
	return func(srv *Server) { srv.version = version }
}

// Server implements the SQL syntax tree language server.
type Server struct {
	sess       *session.Session
	store      *DocumentStore
	handler    protocol.Handler
	logger     *slog.Logger
	interval   time.Duration
	snippetMax int
	reparse    *observability.ReparseMetrics
	version    string

	ctx    context.Context //nolint:containedctx // lifetime of document pipelines
	cancel context.CancelFunc
}

// NewServer creates a language server parsing with sess.
func NewServer(sess *session.Session, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		sess:       sess,
		store:      NewDocumentStore(),
		logger:     slog.Default(),
		interval:   scheduler.DefaultInterval,
		snippetMax: projector.DefaultMaxSnippet,
		version:    "dev",
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.handler = protocol.Handler{
		Initialize:                    srv.initialize,
		Initialized:                   srv.initialized,
		Shutdown:                      srv.shutdown,
		SetTrace:                      srv.setTrace,
		TextDocumentDidOpen:           srv.didOpen,
		TextDocumentDidChange:         srv.didChange,
		TextDocumentDidClose:          srv.didClose,
		TextDocumentHover:             srv.hover,
		TextDocumentDocumentHighlight: srv.documentHighlight,
	}

	return srv
}

// Run serves LSP on stdio until the client disconnects. glsp logs through
// commonlog, which is pointed at stderr.
func (srv *Server) Run(debug bool) error {
	verbosity := 0
	if debug {
		verbosity = 2
	}

	commonlog.Configure(verbosity, nil)

	srv.sess.Start(srv.ctx)

	defer srv.closeAll()

	lspServer := server.NewServer(srv, serverName, debug)

	if err := lspServer.RunStdio(); err != nil {
		return fmt.Errorf("lsp server: %w", err)
	}

	return nil
}

// Handle implements glsp.Handler. The sqltree/* requests are served here;
// everything else goes to the protocol handler.
func (srv *Server) Handle(ctx *glsp.Context) (any, bool, bool, error) {
	switch ctx.Method {
	case MethodTree:
		var params TreeParams
		if err := json.Unmarshal(ctx.Params, &params); err != nil {
			return nil, true, false, err
		}

		result, err := srv.tree(&params)

		return result, true, true, err
	case MethodHoverNode:
		var params HoverNodeParams
		if err := json.Unmarshal(ctx.Params, &params); err != nil {
			return nil, true, false, err
		}

		result, err := srv.hoverNode(&params)

		return result, true, true, err
	case MethodLeave:
		var params TreeParams
		if err := json.Unmarshal(ctx.Params, &params); err != nil {
			return nil, true, false, err
		}

		return nil, true, true, srv.leave(&params)
	}

	return srv.handler.Handle(ctx)
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()

	openClose := true
	change := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = protocol.TextDocumentSyncOptions{
		OpenClose: &openClose,
		Change:    &change,
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &srv.version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	return nil
}

func (srv *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	srv.closeAll()

	return nil
}

func (srv *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)

	return nil
}

func (srv *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI

	doc := srv.open(uri, ctx.Notify)
	doc.pg.SetText(params.TextDocument.Text)

	return nil
}

func (srv *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	doc, ok := srv.store.get(uri)
	if !ok {
		doc = srv.open(uri, ctx.Notify)
	}

	for _, change := range params.ContentChanges {
		if text, whole := changeText(change); whole {
			doc.pg.SetText(text)
		}
	}

	return nil
}

// changeText extracts the full text from a whole-document change event.
// Ranged events are ignored since the server only advertises full sync.
func changeText(change any) (string, bool) {
	switch event := change.(type) {
	case protocol.TextDocumentContentChangeEventWhole:
		return event.Text, true
	case *protocol.TextDocumentContentChangeEventWhole:
		return event.Text, true
	case map[string]any:
		if _, ranged := event["range"]; ranged {
			return "", false
		}

		text, ok := event["text"].(string)

		return text, ok
	default:
		return "", false
	}
}

func (srv *Server) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	doc, ok := srv.store.remove(uri)
	if !ok {
		return nil
	}

	doc.pg.Close()

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})

	return nil
}

func (srv *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	node, source, ok := srv.nodeAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil //nolint:nilnil // LSP protocol expects nil hover when nothing is under the caret.
	}

	rng := toProtocolRange(source, node.Range)

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: hoverMarkdown(node),
		},
		Range: &rng,
	}, nil
}

func (srv *Server) documentHighlight(_ *glsp.Context, params *protocol.DocumentHighlightParams) ([]protocol.DocumentHighlight, error) {
	node, source, ok := srv.nodeAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}

	kind := protocol.DocumentHighlightKindText

	return []protocol.DocumentHighlight{{Range: toProtocolRange(source, node.Range), Kind: &kind}}, nil
}

// TreeParams addresses one open document.
type TreeParams struct {
	URI string `json:"uri"`
}

// HoverNodeParams selects a tree row of a document.
type HoverNodeParams struct {
	URI string `json:"uri"`
	ID  uint64 `json:"id"`
}

func (srv *Server) tree(params *TreeParams) (view.Screen, error) {
	doc, ok := srv.store.get(params.URI)
	if !ok {
		return view.Screen{}, fmt.Errorf("%w: %s", ErrUnknownDocument, params.URI)
	}

	return doc.pg.Screen(), nil
}

func (srv *Server) hoverNode(params *HoverNodeParams) (projector.DisplayNode, error) {
	doc, ok := srv.store.get(params.URI)
	if !ok {
		return projector.DisplayNode{}, fmt.Errorf("%w: %s", ErrUnknownDocument, params.URI)
	}

	if err := doc.pg.Hover(params.ID); err != nil {
		return projector.DisplayNode{}, err
	}

	node, _ := hover.Lookup(doc.pg.Nodes(), params.ID)

	return node, nil
}

func (srv *Server) leave(params *TreeParams) error {
	doc, ok := srv.store.get(params.URI)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, params.URI)
	}

	return doc.pg.Leave()
}

// nodeAt returns the deepest node under pos and the text of its tree.
func (srv *Server) nodeAt(uri string, pos protocol.Position) (projector.DisplayNode, string, bool) {
	doc, ok := srv.store.get(uri)
	if !ok {
		return projector.DisplayNode{}, "", false
	}

	proj := doc.pg.Projection()
	node, found := hover.NodeAt(proj.Nodes, fromProtocolPosition(proj.Origin.Source, pos))

	return node, proj.Origin.Source, found
}

// open registers a pipeline for uri, replacing any stale one.
func (srv *Server) open(uri string, notify glsp.NotifyFunc) *document {
	doc := &document{uri: uri, notify: notify}

	doc.pg = playground.New(srv.sess,
		playground.WithInterval(srv.interval),
		playground.WithLogger(srv.logger),
		playground.WithTextView(&editorView{uri: uri, notify: notify}),
		playground.WithProjection(projector.WithMaxSnippet(srv.snippetMax)),
		playground.WithMetrics(srv.reparse),
	)
	doc.pg.Subscribe(func(screen view.Screen) { srv.screenChanged(doc, screen) })

	if prev := srv.store.set(doc); prev != nil {
		prev.pg.Close()
	}

	doc.pg.Start(srv.ctx)

	return doc
}

// screenChanged forwards the screen and republishes diagnostics when a new
// tree or a parse failure was committed.
func (srv *Server) screenChanged(doc *document, screen view.Screen) {
	doc.notify(MethodScreen, map[string]any{"uri": doc.uri, "screen": screen})

	generation := doc.pg.Generation()
	failing := screen.Kind == view.KindError

	doc.mu.Lock()
	changed := generation != doc.published || failing != doc.failing
	doc.published = generation
	doc.failing = failing
	doc.mu.Unlock()

	if !changed {
		return
	}

	var diagnostics []protocol.Diagnostic
	if failing {
		diagnostics = []protocol.Diagnostic{newDiagnostic("", position.Range{}, screen.Message)}
	} else {
		diagnostics = errorDiagnostics(doc.pg.Projection())
	}

	doc.notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         doc.uri,
		Diagnostics: diagnostics,
	})
}

// closeAll cancels the document pipelines' context and closes them.
func (srv *Server) closeAll() {
	srv.cancel()

	for _, doc := range srv.store.drain() {
		doc.pg.Close()
	}
}

// errorDiagnostics reports the innermost nodes flagged as errors. Ancestors
// inherit the flag from their children and are skipped.
func errorDiagnostics(proj playground.Projection) []protocol.Diagnostic {
	nodes := proj.Nodes
	diagnostics := []protocol.Diagnostic{}

	for idx, node := range nodes {
		if !node.HasError || hasErrorDescendant(nodes, idx) {
			continue
		}

		diagnostics = append(diagnostics, newDiagnostic(proj.Origin.Source, node.Range, "Syntax error near "+describe(node)))
	}

	return diagnostics
}

func hasErrorDescendant(nodes []projector.DisplayNode, idx int) bool {
	depth := nodes[idx].Depth

	for next := idx + 1; next < len(nodes) && nodes[next].Depth > depth; next++ {
		if nodes[next].HasError {
			return true
		}
	}

	return false
}

func describe(node projector.DisplayNode) string {
	if node.Snippet == "" {
		return node.Type
	}

	return fmt.Sprintf("%s %q", node.Type, node.Snippet)
}

func newDiagnostic(source string, rng position.Range, message string) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	diagSource := diagnosticSource

	return protocol.Diagnostic{
		Range:    toProtocolRange(source, rng),
		Severity: &severity,
		Source:   &diagSource,
		Message:  message,
	}
}

func hoverMarkdown(node projector.DisplayNode) string {
	var sb strings.Builder

	sb.WriteString("**" + node.Type + "**")

	if node.FieldName != "" {
		sb.WriteString(" (`" + node.FieldName + "`)")
	}

	sb.WriteString("\n\n" + node.Range.String())

	if node.Snippet != "" {
		sb.WriteString("\n\n```sql\n" + node.Snippet + "\n```")
	}

	return sb.String()
}

// LSP characters are UTF-16 code units; tree columns are bytes of source.
func toProtocolRange(source string, rng position.Range) protocol.Range {
	return protocol.Range{
		Start: toProtocolPosition(source, rng.Start),
		End:   toProtocolPosition(source, rng.End),
	}
}

func toProtocolPosition(source string, pos position.Position) protocol.Position {
	var out protocol.Position

	safeconv.MustStore(&out.Line, pos.Row)
	safeconv.MustStore(&out.Character, hover.UTF16Column(source, pos))

	return out
}

func fromProtocolPosition(source string, pos protocol.Position) position.Position {
	row := safeconv.MustToInt(pos.Line)

	return position.Position{
		Row:    row,
		Column: hover.ByteColumn(source, row, safeconv.MustToInt(pos.Character)),
	}
}
