// Package projector flattens a syntax tree into the ordered rows the tree
// view renders.
package projector

import (
	"strings"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
)

// DefaultMaxSnippet is the snippet length, in characters, before truncation.
const DefaultMaxSnippet = 50

// truncationMarker is appended to snippets cut at the maximum length.
const truncationMarker = "..."

// DisplayNode is one rendered row of the tree view. Rows are produced in
// pre-order: a parent always precedes its children and siblings follow
// source order.
type DisplayNode struct {
	ID        uint64         `json:"id"                  yaml:"id"`
	Depth     int            `json:"depth"               yaml:"depth"`
	FieldName string         `json:"fieldName,omitempty" yaml:"field,omitempty"`
	Type      string         `json:"type"                yaml:"type"`
	Named     bool           `json:"named"               yaml:"named"`
	Range     position.Range `json:"range"               yaml:"range"`
	Snippet   string         `json:"snippet"             yaml:"snippet"`
	HasError  bool           `json:"hasError,omitempty"  yaml:"error,omitempty"`
}

type config struct {
	maxSnippet int
	anonymous  bool
}

// Option configures a projection.
type Option func(*config)

// WithMaxSnippet sets the snippet length limit. Zero or less disables truncation.
func WithMaxSnippet(n int) Option {
	return func(c *config) { c.maxSnippet = n }
}

// WithAnonymous also emits anonymous nodes (keywords and punctuation).
func WithAnonymous(enabled bool) Option {
	return func(c *config) { c.anonymous = enabled }
}

// Project walks tree with a cursor and returns its display rows. The root is
// always emitted at depth 0 without a field name; every other node only when
// it is named. A nil or rootless tree projects to nothing.
func Project(tree syntax.Tree, opts ...Option) []DisplayNode {
	if tree == nil || tree.Root() == nil {
		return nil
	}

	cfg := config{maxSnippet: DefaultMaxSnippet}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := projection{
		cfg:     cfg,
		visited: make(map[uint64]struct{}),
	}

	p.emit(tree.Root(), 0, "")

	cursor := tree.Walk()
	defer cursor.Close()

	depth := 0
	climbing := false

	for {
		if climbing {
			switch {
			case cursor.GoToNextSibling():
				climbing = false
			case cursor.GoToParent():
				depth--
			default:
				return p.nodes
			}

			continue
		}

		if node := cursor.Node(); node != nil && depth > 0 && (node.IsNamed() || cfg.anonymous) {
			p.emit(node, depth, cursor.FieldName())
		}

		if cursor.GoToFirstChild() {
			depth++
		} else {
			climbing = true
		}
	}
}

type projection struct {
	cfg     config
	visited map[uint64]struct{}
	nodes   []DisplayNode
}

// emit appends node unless a node with the same ID was already emitted.
func (p *projection) emit(node syntax.Node, depth int, field string) {
	id := node.ID()
	if _, seen := p.visited[id]; seen {
		return
	}

	p.visited[id] = struct{}{}

	p.nodes = append(p.nodes, DisplayNode{
		ID:        id,
		Depth:     depth,
		FieldName: field,
		Type:      node.Type(),
		Named:     node.IsNamed(),
		Range:     node.Range(),
		Snippet:   Snippet(node.Text(), p.cfg.maxSnippet),
		HasError:  node.HasError(),
	})
}

// Snippet escapes newlines in text as the two characters `\n` and truncates
// the result to maxLen characters, appending "..." when it was cut.
func Snippet(text string, maxLen int) string {
	escaped := strings.ReplaceAll(text, "\n", `\n`)
	if maxLen <= 0 {
		return escaped
	}

	count := 0

	for idx := range escaped {
		if count == maxLen {
			return escaped[:idx] + truncationMarker
		}

		count++
	}

	return escaped
}
