// Package playground wires the reparse pipeline for a single text view:
// text edits feed the scheduler, committed trees are projected, and hover
// requests are forwarded to the view's decorations.
package playground

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/scheduler"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

// ErrUnknownNode is returned when hovering an ID absent from the current projection.
var ErrUnknownNode = errors.New("unknown node")

// Subscriber receives every new screen.
type Subscriber func(view.Screen)

type config struct {
	interval   time.Duration
	logger     *slog.Logger
	textView   hover.TextView
	projection []projector.Option
	metrics    *observability.ReparseMetrics
}

// Option configures a Playground.
type Option func(*config)

// WithInterval sets the debounce interval.
func WithInterval(interval time.Duration) Option {
	return func(c *config) { c.interval = interval }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithTextView attaches the text view that receives hover highlights.
func WithTextView(tv hover.TextView) Option {
	return func(c *config) { c.textView = tv }
}

// WithProjection sets the projector options used for every commit.
func WithProjection(opts ...projector.Option) Option {
	return func(c *config) { c.projection = opts }
}

// WithMetrics records the scheduler's debounce decisions.
func WithMetrics(metrics *observability.ReparseMetrics) Option {
	return func(c *config) { c.metrics = metrics }
}

// Playground is the pipeline behind one text view. The session may be
// shared between playgrounds; the scheduler, bridge and projection are not.
type Playground struct {
	sess   *session.Session
	sched  *scheduler.Scheduler
	bridge *hover.Bridge
	logger *slog.Logger
	popts  []projector.Option

	mu         sync.Mutex
	text       string
	nodes      []projector.DisplayNode
	generation uint64
	source     string
	parseErr   error
	subs       map[int]Subscriber
	nextSub    int
}

// New creates a playground on top of sess.
func New(sess *session.Session, opts ...Option) *Playground {
	cfg := config{
		interval: scheduler.DefaultInterval,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	pg := &Playground{
		sess:   sess,
		bridge: hover.NewBridge(cfg.textView),
		logger: cfg.logger,
		popts:  cfg.projection,
		subs:   make(map[int]Subscriber),
	}

	pg.sched = scheduler.New(sess,
		scheduler.WithInterval(cfg.interval),
		scheduler.WithLogger(cfg.logger),
		scheduler.WithCommit(pg.commit),
		scheduler.WithMetrics(cfg.metrics),
	)

	return pg
}

// Start initializes the session in the background. Once it is ready, the
// latest text is scheduled again since edits made while loading are dropped.
func (pg *Playground) Start(ctx context.Context) {
	done := pg.sess.Start(ctx)

	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}

		if pg.sess.Status() == session.StatusReady {
			if text := pg.Text(); text != "" {
				pg.sched.Schedule(text)
			}
		}

		pg.notify()
	}()
}

// SetText records an edit and schedules a reparse.
func (pg *Playground) SetText(text string) {
	pg.mu.Lock()
	if text != "" {
		pg.text = text
	}
	pg.mu.Unlock()

	pg.sched.Schedule(text)
}

// Text returns the latest non-empty text.
func (pg *Playground) Text() string {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	return pg.text
}

// Flush runs the pending reparse immediately and waits for it.
func (pg *Playground) Flush(ctx context.Context) error {
	return pg.sched.Flush(ctx)
}

// Nodes returns the current projection.
func (pg *Playground) Nodes() []projector.DisplayNode {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	return append([]projector.DisplayNode(nil), pg.nodes...)
}

// Generation returns the generation of the projected tree.
func (pg *Playground) Generation() uint64 {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	return pg.generation
}

// Projection is the display rows of one committed tree.
type Projection struct {
	Nodes  []projector.DisplayNode
	Origin hover.Origin
}

// Projection returns the current rows together with the generation and
// source text of the tree they came from. Nodes must not be modified.
func (pg *Playground) Projection() Projection {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	return Projection{
		Nodes:  pg.nodes,
		Origin: hover.Origin{Generation: pg.generation, Source: pg.source},
	}
}

// Hover highlights the node with the given ID.
func (pg *Playground) Hover(id uint64) error {
	proj := pg.Projection()

	node, ok := hover.Lookup(proj.Nodes, id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	return pg.enter(node, proj.Origin)
}

// HoverAt highlights the deepest node containing pos.
func (pg *Playground) HoverAt(pos position.Position) (projector.DisplayNode, bool, error) {
	return pg.hoverAt(pg.Projection(), pos)
}

// HoverAtEditor is HoverAt for a 1-based editor position whose column is
// counted in UTF-16 code units.
func (pg *Playground) HoverAtEditor(pos hover.EditorPosition) (projector.DisplayNode, bool, error) {
	proj := pg.Projection()

	return pg.hoverAt(proj, hover.FromEditorPositionIn(proj.Origin.Source, pos))
}

func (pg *Playground) hoverAt(proj Projection, pos position.Position) (projector.DisplayNode, bool, error) {
	node, ok := hover.NodeAt(proj.Nodes, pos)
	if !ok {
		return projector.DisplayNode{}, false, pg.Leave()
	}

	return node, true, pg.enter(node, proj.Origin)
}

// enter highlights node unless a newer tree replaced the one it came from.
func (pg *Playground) enter(node projector.DisplayNode, origin hover.Origin) error {
	if err := pg.bridge.Enter(node, origin); err != nil {
		return err
	}

	pg.notify()

	return nil
}

// Leave removes the hover highlight.
func (pg *Playground) Leave() error {
	if err := pg.bridge.Leave(); err != nil {
		return err
	}

	pg.notify()

	return nil
}

// Screen renders the current state.
func (pg *Playground) Screen() view.Screen {
	status := pg.sess.Status()

	pg.mu.Lock()
	state := view.State{Status: status, Err: pg.parseErr, Nodes: pg.nodes}
	pg.mu.Unlock()

	if status == session.StatusFailed {
		state.Err = pg.sess.Err()
	}

	state.Hovered, state.HasHover = pg.bridge.Hovered()

	return view.Render(state)
}

// Subscribe registers fn for screen updates and returns its cancel func.
func (pg *Playground) Subscribe(fn Subscriber) func() {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	id := pg.nextSub
	pg.nextSub++
	pg.subs[id] = fn

	return func() {
		pg.mu.Lock()
		defer pg.mu.Unlock()

		delete(pg.subs, id)
	}
}

// Close stops the scheduler and removes the highlight. The session is left
// to its owner.
func (pg *Playground) Close() {
	pg.sched.Close()

	if err := pg.bridge.Leave(); err != nil {
		pg.logger.Debug("clear highlight on close", "error", err)
	}
}

func (pg *Playground) commit(ctx context.Context, res scheduler.Result) {
	if res.Err != nil {
		pg.mu.Lock()
		pg.parseErr = res.Err
		pg.mu.Unlock()

		pg.notify()

		return
	}

	nodes := projector.Project(res.Tree, pg.popts...)

	pg.mu.Lock()
	pg.nodes = nodes
	pg.generation = res.Generation
	pg.source = res.Tree.Source()
	pg.parseErr = nil
	pg.mu.Unlock()

	if err := pg.bridge.Reset(res.Generation); err != nil {
		pg.logger.WarnContext(ctx, "reset highlight", "error", err)
	}

	pg.notify()
}

func (pg *Playground) notify() {
	pg.mu.Lock()
	subs := make([]Subscriber, 0, len(pg.subs))

	for _, fn := range pg.subs {
		subs = append(subs, fn)
	}
	pg.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	screen := pg.Screen()
	for _, fn := range subs {
		fn(screen)
	}
}
