// Package syntaxtest provides an in-memory syntax engine for tests.
// Trees are assembled by hand with Named/Anon and sliced out of a source
// string by byte offsets.
package syntaxtest

import (
	"strings"
	"sync/atomic"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

// Node is a hand-built syntax node.
type Node struct {
	Kind     string
	Named    bool
	Field    string
	Start    int
	End      int
	Error    bool
	Children []*Node

	id     uint64
	parent *Node
	index  int
	tree   *Tree
}

// Span is a half-open byte interval of the source.
type Span struct {
	Start int
	End   int
}

// Named builds a named node covering span.
func Named(kind string, span Span, children ...*Node) *Node {
	return &Node{Kind: kind, Named: true, Start: span.Start, End: span.End, Children: children}
}

// Anon builds an anonymous (keyword or punctuation) leaf covering span.
func Anon(kind string, span Span) *Node {
	return &Node{Kind: kind, Start: span.Start, End: span.End}
}

// As sets the grammar field name the node fills in its parent.
func (n *Node) As(field string) *Node {
	n.Field = field

	return n
}

// Broken marks the node as spanning a recovered parse region.
func (n *Node) Broken() *Node {
	n.Error = true

	return n
}

// ID implements syntax.Node.
func (n *Node) ID() uint64 { return n.id }

// Type implements syntax.Node.
func (n *Node) Type() string { return n.Kind }

// IsNamed implements syntax.Node.
func (n *Node) IsNamed() bool { return n.Named }

// ChildCount implements syntax.Node.
func (n *Node) ChildCount() int { return len(n.Children) }

// HasError implements syntax.Node. Like tree-sitter, errors propagate upward.
func (n *Node) HasError() bool {
	if n.Error {
		return true
	}

	for _, child := range n.Children {
		if child.HasError() {
			return true
		}
	}

	return false
}

// Text implements syntax.Node.
func (n *Node) Text() string {
	return n.tree.source[n.Start:n.End]
}

// Range implements syntax.Node.
func (n *Node) Range() position.Range {
	return position.Range{
		Start: n.tree.pointAt(n.Start),
		End:   n.tree.pointAt(n.End),
	}
}

// Tree is a hand-built syntax tree.
type Tree struct {
	source string
	root   *Node
	closed atomic.Bool
}

// NewTree links root into a tree over source, assigning pre-order IDs
// starting at idBase+1. A nil root yields a rootless tree.
func NewTree(source string, idBase uint64, root *Node) *Tree {
	tree := &Tree{source: source, root: root}
	if root == nil {
		return tree
	}

	next := idBase

	stack := []*Node{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		next++
		current.id = next
		current.tree = tree

		for idx := len(current.Children) - 1; idx >= 0; idx-- {
			child := current.Children[idx]
			child.parent = current
			child.index = idx
			stack = append(stack, child)
		}
	}

	return tree
}

// Root implements syntax.Tree.
func (t *Tree) Root() syntax.Node {
	if t.root == nil {
		return nil
	}

	return t.root
}

// Walk implements syntax.Tree.
func (t *Tree) Walk() syntax.Cursor {
	return &Cursor{root: t.root, current: t.root}
}

// Source implements syntax.Tree.
func (t *Tree) Source() string { return t.source }

// Close implements syntax.Tree.
func (t *Tree) Close() { t.closed.Store(true) }

// Closed reports whether Close was called.
func (t *Tree) Closed() bool { return t.closed.Load() }

// pointAt counts columns in bytes, as tree-sitter does.
func (t *Tree) pointAt(offset int) position.Position {
	prefix := t.source[:offset]
	row := strings.Count(prefix, "\n")
	lineStart := strings.LastIndexByte(prefix, '\n') + 1

	return position.Position{Row: row, Column: len(prefix) - lineStart}
}

// Cursor walks a Tree.
type Cursor struct {
	root    *Node
	current *Node
}

// GoToFirstChild implements syntax.Cursor.
func (c *Cursor) GoToFirstChild() bool {
	if c.current == nil || len(c.current.Children) == 0 {
		return false
	}

	c.current = c.current.Children[0]

	return true
}

// GoToNextSibling implements syntax.Cursor.
func (c *Cursor) GoToNextSibling() bool {
	if c.current == nil || c.current == c.root || c.current.parent == nil {
		return false
	}

	siblings := c.current.parent.Children
	if c.current.index+1 >= len(siblings) {
		return false
	}

	c.current = siblings[c.current.index+1]

	return true
}

// GoToParent implements syntax.Cursor.
func (c *Cursor) GoToParent() bool {
	if c.current == nil || c.current == c.root {
		return false
	}

	c.current = c.current.parent

	return true
}

// Node implements syntax.Cursor.
func (c *Cursor) Node() syntax.Node {
	if c.current == nil {
		return nil
	}

	return c.current
}

// FieldName implements syntax.Cursor.
func (c *Cursor) FieldName() string {
	if c.current == nil || c.current == c.root {
		return ""
	}

	return c.current.Field
}

// Close implements syntax.Cursor.
func (c *Cursor) Close() {}

// At returns the span of the nth (zero-based) occurrence of fragment in
// source. It panics when the fragment is missing so broken fixtures fail
// loudly.
func At(source, fragment string, nth int) Span {
	from := 0
	start := 0

	for range nth + 1 {
		idx := strings.Index(source[from:], fragment)
		if idx < 0 {
			panic("syntaxtest: fragment " + fragment + " not found")
		}

		start = from + idx
		from = start + len(fragment)
	}

	return Span{Start: start, End: start + len(fragment)}
}

// Between returns the span from the start of a to the end of b.
func Between(a, b Span) Span {
	return Span{Start: a.Start, End: b.End}
}

// All returns the span of the whole source.
func All(source string) Span {
	return Span{End: len(source)}
}
