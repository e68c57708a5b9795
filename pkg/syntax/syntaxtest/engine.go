package syntaxtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

// idStride separates node IDs of consecutive parses so IDs never collide
// across tree generations.
const idStride = 1 << 20

// Grammar is a named fake grammar.
type Grammar string

// Name implements syntax.Grammar.
func (g Grammar) Name() string { return string(g) }

// Call records one Parse invocation.
type Call struct {
	Text     string
	Previous syntax.Tree
}

// Engine is a configurable fake syntax.Engine. The zero value loads any
// grammar and parses every text into a single "program" node.
type Engine struct {
	// Known restricts loadable locators; nil accepts any.
	Known map[string]bool
	// LoadErr fails LoadGrammar.
	LoadErr error
	// LoadGate, when set, blocks LoadGrammar until it is closed.
	LoadGate chan struct{}
	// Build returns the root for a text; nil yields a rootless tree.
	Build func(text string) *Node
	// ParseErr fails Parse.
	ParseErr error
	// NoTree makes Parse return a nil tree without an error.
	NoTree bool
	// Hold, when set, blocks Parse for a text until the returned channel
	// is closed (a nil channel does not block).
	Hold func(text string) <-chan struct{}

	mu      sync.Mutex
	loads   int
	calls   []Call
	parses  uint64
	parsers int
}

// LoadGrammar implements syntax.Engine.
func (e *Engine) LoadGrammar(ctx context.Context, locator string) (syntax.Grammar, error) {
	e.mu.Lock()
	e.loads++
	gate := e.LoadGate
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("load %s: %w", locator, ctx.Err())
		}
	}

	if e.LoadErr != nil {
		return nil, e.LoadErr
	}

	if e.Known != nil && !e.Known[locator] {
		return nil, fmt.Errorf("%w: unknown grammar %q", syntax.ErrLoad, locator)
	}

	return Grammar(locator), nil
}

// NewParser implements syntax.Engine.
func (e *Engine) NewParser(_ syntax.Grammar) (syntax.Parser, error) {
	e.mu.Lock()
	e.parsers++
	e.mu.Unlock()

	return &parser{engine: e}, nil
}

// Loads returns how many times LoadGrammar was called.
func (e *Engine) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loads
}

// Calls returns a copy of the recorded Parse invocations.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Call(nil), e.calls...)
}

// Texts returns the texts passed to Parse, in call order.
func (e *Engine) Texts() []string {
	calls := e.Calls()
	texts := make([]string, 0, len(calls))

	for _, call := range calls {
		texts = append(texts, call.Text)
	}

	return texts
}

type parser struct {
	engine *Engine
}

func (p *parser) Parse(ctx context.Context, text string, previous syntax.Tree) (syntax.Tree, error) {
	eng := p.engine

	eng.mu.Lock()
	eng.calls = append(eng.calls, Call{Text: text, Previous: previous})
	eng.parses++
	base := eng.parses * idStride
	hold := eng.Hold
	eng.mu.Unlock()

	if hold != nil {
		if gate := hold(text); gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, fmt.Errorf("parse: %w", ctx.Err())
			}
		}
	}

	if eng.ParseErr != nil {
		return nil, eng.ParseErr
	}

	if eng.NoTree {
		return nil, nil //nolint:nilnil // a missing tree is a legal engine answer
	}

	var root *Node

	if eng.Build != nil {
		root = eng.Build(text)
	} else {
		root = Named("program", All(text))
	}

	return NewTree(text, base, root), nil
}

func (p *parser) Close() {}
