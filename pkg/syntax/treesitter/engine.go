// Package treesitter implements the syntax engine on top of go-tree-sitter
// and the go-sitter-forest grammar collection.
package treesitter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

var errForeignGrammar = errors.New("grammar was not loaded by this engine")

// Engine is the tree-sitter syntax.Engine. The zero value is ready to use.
type Engine struct{}

// NewEngine creates a tree-sitter engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Grammar is a loaded tree-sitter language.
type Grammar struct {
	name     string
	language *sitter.Language
}

// Name implements syntax.Grammar.
func (g *Grammar) Name() string { return g.name }

// LoadGrammar implements syntax.Engine. Grammars are compiled into the
// binary, so loading only resolves the name; it never blocks.
func (e *Engine) LoadGrammar(ctx context.Context, locator string) (syntax.Grammar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", locator, err)
	}

	lang := Language(locator)
	if lang == nil {
		return nil, fmt.Errorf("%w: language %q is not available", syntax.ErrLoad, locator)
	}

	return &Grammar{name: locator, language: lang}, nil
}

// NewParser implements syntax.Engine.
func (e *Engine) NewParser(grammar syntax.Grammar) (syntax.Parser, error) {
	g, ok := grammar.(*Grammar)
	if !ok || g == nil {
		return nil, errForeignGrammar
	}

	tsParser := sitter.NewParser()
	tsParser.SetLanguage(g.language)

	return &Parser{ts: tsParser, grammar: g}, nil
}

// Parser parses text with one grammar. Calls are serialized internally
// because a tree-sitter parser is not safe for concurrent use.
type Parser struct {
	mu      sync.Mutex
	ts      *sitter.Parser
	grammar *Grammar
}

// Parse implements syntax.Parser. When previous is a live tree from this
// engine, the edit between its source and text is applied to a copy of it
// and handed to tree-sitter so unchanged regions are reused. previous itself
// is never modified.
func (p *Parser) Parse(ctx context.Context, text string, previous syntax.Tree) (syntax.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ts == nil {
		return nil, errParserClosed
	}

	var old *sitter.Tree

	if prev, ok := previous.(*Tree); ok && prev.usable() {
		old = prev.edited(text)
		if old != nil {
			defer old.Close()
		}
	}

	source := []byte(text)

	tsTree, err := p.ts.ParseString(ctx, old, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.grammar.name, err)
	}

	if tsTree == nil {
		return nil, nil //nolint:nilnil // no tree is reported as such, not as an error
	}

	return newTree(tsTree, text), nil
}

var errParserClosed = errors.New("parser is closed")

// Close implements syntax.Parser. The binding frees the native parser once
// it is unreachable, so Close only detaches it.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ts = nil
}
