package treesitter

import (
	"sync"
	"unsafe"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/safeconv"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

// Tree wraps a tree-sitter tree together with the source it was parsed from.
type Tree struct {
	mu     sync.RWMutex
	ts     *sitter.Tree
	source string
}

func newTree(ts *sitter.Tree, source string) *Tree {
	return &Tree{ts: ts, source: source}
}

// Root implements syntax.Tree.
func (t *Tree) Root() syntax.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.ts == nil {
		return nil
	}

	root := t.ts.RootNode()
	if root.IsNull() {
		return nil
	}

	return Node{ts: root, tree: t}
}

// Walk implements syntax.Tree.
func (t *Tree) Walk() syntax.Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.ts == nil {
		return &Cursor{tree: t}
	}

	return &Cursor{ts: sitter.NewTreeCursor(t.ts.RootNode()), tree: t}
}

// Source implements syntax.Tree.
func (t *Tree) Source() string { return t.source }

// Close implements syntax.Tree. It is safe to call more than once.
func (t *Tree) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ts != nil {
		t.ts.Close()
		t.ts = nil
	}
}

func (t *Tree) usable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.ts != nil
}

// edited returns a copy of the tree with the edit towards text applied.
// The caller owns the copy.
func (t *Tree) edited(text string) *sitter.Tree {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.ts == nil {
		return nil
	}

	cp := t.ts.Copy()

	if edit, changed := computeEdit(t.source, text); changed {
		cp.Edit(edit.input())
	}

	return cp
}

// Node is a tree-sitter node bound to its tree.
type Node struct {
	ts   sitter.Node
	tree *Tree
}

// ID implements syntax.Node.
func (n Node) ID() uint64 {
	return readNodeID(unsafe.Pointer(&n.ts))
}

// Type implements syntax.Node.
func (n Node) Type() string { return n.ts.Type() }

// IsNamed implements syntax.Node.
func (n Node) IsNamed() bool { return n.ts.IsNamed() }

// HasError implements syntax.Node.
func (n Node) HasError() bool { return n.ts.HasError() }

// ChildCount implements syntax.Node.
func (n Node) ChildCount() int { return safeconv.MustToInt(n.ts.ChildCount()) }

// Range implements syntax.Node. Columns are byte offsets within the row,
// which is what tree-sitter reports.
func (n Node) Range() position.Range {
	start := n.ts.StartPoint()
	end := n.ts.EndPoint()

	return position.Range{
		Start: position.Position{Row: safeconv.MustToInt(start.Row), Column: safeconv.MustToInt(start.Column)},
		End:   position.Position{Row: safeconv.MustToInt(end.Row), Column: safeconv.MustToInt(end.Column)},
	}
}

// Text implements syntax.Node. It slices the tree's source instead of
// calling back into C.
func (n Node) Text() string {
	src := n.tree.source

	start := safeconv.MustToInt(n.ts.StartByte())
	end := safeconv.MustToInt(n.ts.EndByte())

	if start < 0 || end > len(src) || start > end {
		return ""
	}

	return src[start:end]
}

// Cursor wraps a tree-sitter tree cursor.
type Cursor struct {
	ts   *sitter.TreeCursor
	tree *Tree
}

// GoToFirstChild implements syntax.Cursor.
func (c *Cursor) GoToFirstChild() bool {
	return c.ts != nil && c.ts.GoToFirstChild()
}

// GoToNextSibling implements syntax.Cursor.
func (c *Cursor) GoToNextSibling() bool {
	return c.ts != nil && c.ts.GoToNextSibling()
}

// GoToParent implements syntax.Cursor.
func (c *Cursor) GoToParent() bool {
	return c.ts != nil && c.ts.GoToParent()
}

// Node implements syntax.Cursor.
func (c *Cursor) Node() syntax.Node {
	if c.ts == nil {
		return nil
	}

	current := c.ts.CurrentNode()
	if current.IsNull() {
		return nil
	}

	return Node{ts: current, tree: c.tree}
}

// FieldName implements syntax.Cursor.
func (c *Cursor) FieldName() string {
	if c.ts == nil {
		return ""
	}

	return c.ts.CurrentFieldName()
}

// Close implements syntax.Cursor.
func (c *Cursor) Close() {
	c.ts = nil
}
