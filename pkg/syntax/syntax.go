// Package syntax describes the grammar/parser engine capability consumed by
// the reparse pipeline: loading a grammar, parsing text into an immutable
// tree, and walking that tree with a cursor.
//
// The pipeline never depends on a concrete engine; see the treesitter
// subpackage for the production implementation and syntaxtest for an
// in-memory one.
package syntax

import (
	"context"
	"errors"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
)

// ErrLoad is returned by Engine.LoadGrammar when the grammar artifact is
// missing or corrupt.
var ErrLoad = errors.New("grammar load failed")

// Engine loads grammars and builds parsers bound to them.
type Engine interface {
	// LoadGrammar resolves a grammar by locator. It may block.
	LoadGrammar(ctx context.Context, locator string) (Grammar, error)
	// NewParser constructs a parser for a previously loaded grammar.
	NewParser(grammar Grammar) (Parser, error)
}

// Grammar is an opaque handle to a loaded grammar.
type Grammar interface {
	Name() string
}

// Parser turns text into a Tree.
type Parser interface {
	// Parse parses text. previous, when non-nil, is the last tree produced
	// by this parser and may be reused for unchanged regions; the result is
	// always a complete, freshly rooted tree. A nil tree with a nil error
	// means the engine produced nothing.
	Parse(ctx context.Context, text string, previous Tree) (Tree, error)
	Close()
}

// Tree is an immutable parse result. Nodes and cursors obtained from it are
// valid until Close.
type Tree interface {
	// Root returns the root node, or nil for a rootless tree.
	Root() Node
	// Walk returns a cursor positioned on the root node.
	Walk() Cursor
	// Source returns the text the tree was parsed from.
	Source() string
	Close()
}

// Node is one constituent of a Tree.
type Node interface {
	// ID is unique within one tree; it is not stable across reparses.
	ID() uint64
	Type() string
	IsNamed() bool
	Range() position.Range
	Text() string
	ChildCount() int
	HasError() bool
}

// Cursor is a stepwise traversal handle over a Tree.
type Cursor interface {
	GoToFirstChild() bool
	GoToNextSibling() bool
	GoToParent() bool
	Node() Node
	// FieldName is the grammar field the current node fills in its parent,
	// or "" when none is assigned.
	FieldName() string
	Close()
}
