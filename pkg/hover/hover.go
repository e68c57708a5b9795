// Package hover keeps a text view's highlight in sync with the tree row
// under the pointer.
package hover

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
)

// HighlightStyle is the decoration style tag applied to the hovered range.
const HighlightStyle = "highlighted-sql-line"

// ErrStaleNode is returned by Enter for a node of a replaced tree.
var ErrStaleNode = errors.New("node belongs to a replaced tree")

// EditorPosition is a 1-based (line, column) location in a text view.
type EditorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// EditorRange is a 1-based range in a text view.
type EditorRange struct {
	StartLine   int `json:"startLineNumber"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLineNumber"`
	EndColumn   int `json:"endColumn"`
}

// Handle identifies one applied decoration.
type Handle string

// TextView is the editor widget the bridge decorates. Coordinates are 1-based.
type TextView interface {
	ApplyDecorations(rng EditorRange, style string) (Handle, error)
	ClearDecorations(handles []Handle) error
}

// ToEditorRange converts a 0-based range into the view's 1-based convention.
func ToEditorRange(rng position.Range) EditorRange {
	start := rng.Start.Translate(1, 1)
	end := rng.End.Translate(1, 1)

	return EditorRange{
		StartLine:   start.Row,
		StartColumn: start.Column,
		EndLine:     end.Row,
		EndColumn:   end.Column,
	}
}

// FromEditorPosition converts a 1-based view position into the 0-based model.
func FromEditorPosition(pos EditorPosition) position.Position {
	return position.Position{Row: pos.Line, Column: pos.Column}.Translate(-1, -1)
}

// ToEditorRangeIn is ToEditorRange for a range of source, with columns
// counted in UTF-16 code units as editors count them.
func ToEditorRangeIn(source string, rng position.Range) EditorRange {
	return ToEditorRange(position.Range{
		Start: position.Position{Row: rng.Start.Row, Column: UTF16Column(source, rng.Start)},
		End:   position.Position{Row: rng.End.Row, Column: UTF16Column(source, rng.End)},
	})
}

// FromEditorPositionIn is FromEditorPosition for a position in source whose
// column is counted in UTF-16 code units.
func FromEditorPositionIn(source string, pos EditorPosition) position.Position {
	model := FromEditorPosition(pos)
	model.Column = ByteColumn(source, model.Row, model.Column)

	return model
}

// UTF16Column returns the column of pos, a byte column of source, in UTF-16
// code units. Columns past the end of the line are carried over unchanged.
func UTF16Column(source string, pos position.Position) int {
	line, ok := lineAt(source, pos.Row)
	if !ok {
		return pos.Column
	}

	if pos.Column > len(line) {
		return utf16Len(line) + pos.Column - len(line)
	}

	return utf16Len(line[:pos.Column])
}

// ByteColumn converts a UTF-16 column on row of source to a byte column.
func ByteColumn(source string, row, units int) int {
	line, ok := lineAt(source, row)
	if !ok {
		return units
	}

	seen := 0

	for offset, r := range line {
		if seen >= units {
			return offset
		}

		seen += utf16.RuneLen(r)
	}

	return len(line) + units - seen
}

func utf16Len(s string) int {
	units := 0
	for _, r := range s {
		units += utf16.RuneLen(r)
	}

	return units
}

// lineAt returns row of source without its line break.
func lineAt(source string, row int) (string, bool) {
	if row < 0 {
		return "", false
	}

	for range row {
		idx := strings.IndexByte(source, '\n')
		if idx < 0 {
			return "", false
		}

		source = source[idx+1:]
	}

	if idx := strings.IndexByte(source, '\n'); idx >= 0 {
		source = source[:idx]
	}

	return source, true
}

// Origin identifies the tree a display node was projected from.
type Origin struct {
	Generation uint64
	// Source is the text of that tree. Empty means byte and UTF-16 columns
	// are taken to agree.
	Source string
}

// Bridge owns the single live decoration set of one text view.
type Bridge struct {
	view  TextView
	style string

	mu         sync.Mutex
	handles    []Handle
	hovered    uint64
	hasHover   bool
	generation uint64
}

// NewBridge creates a bridge decorating view. A nil view only tracks the
// hovered node.
func NewBridge(view TextView) *Bridge {
	return &Bridge{view: view, style: HighlightStyle}
}

// Enter highlights node's range, replacing any existing highlight. The old
// decorations are cleared before the new one is applied so two highlights
// are never alive at once.
//
// A node from a generation older than the last Reset fails with
// ErrStaleNode; a newer one is adopted, so the Reset that follows its commit
// keeps the highlight.
func (b *Bridge) Enter(node projector.DisplayNode, origin Origin) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if origin.Generation < b.generation {
		return fmt.Errorf("%w: generation %d, current %d", ErrStaleNode, origin.Generation, b.generation)
	}

	b.generation = origin.Generation

	if err := b.clearLocked(); err != nil {
		return err
	}

	b.hovered = node.ID
	b.hasHover = true

	if b.view == nil {
		return nil
	}

	handle, err := b.view.ApplyDecorations(ToEditorRangeIn(origin.Source, node.Range), b.style)
	if err != nil {
		return fmt.Errorf("apply decoration: %w", err)
	}

	b.handles = []Handle{handle}

	return nil
}

// Leave removes the highlight.
func (b *Bridge) Leave() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.clearLocked()
}

// Reset clears the highlight when generation differs from the tree
// generation the bridge last saw.
func (b *Bridge) Reset(generation uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation == b.generation {
		return nil
	}

	b.generation = generation

	return b.clearLocked()
}

// Hovered returns the ID of the highlighted node.
func (b *Bridge) Hovered() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.hovered, b.hasHover
}

func (b *Bridge) clearLocked() error {
	b.hovered = 0
	b.hasHover = false

	if len(b.handles) == 0 || b.view == nil {
		return nil
	}

	if err := b.view.ClearDecorations(b.handles); err != nil {
		return fmt.Errorf("clear decorations: %w", err)
	}

	b.handles = nil

	return nil
}

// NodeAt returns the deepest display node whose range contains pos. Among
// equally deep candidates the first in document order wins.
func NodeAt(nodes []projector.DisplayNode, pos position.Position) (projector.DisplayNode, bool) {
	best := -1

	for idx, node := range nodes {
		if !node.Range.Contains(pos) {
			continue
		}

		if best < 0 || node.Depth > nodes[best].Depth {
			best = idx
		}
	}

	if best < 0 {
		return projector.DisplayNode{}, false
	}

	return nodes[best], true
}

// Lookup finds the display node with the given ID.
func Lookup(nodes []projector.DisplayNode, id uint64) (projector.DisplayNode, bool) {
	for _, node := range nodes {
		if node.ID == id {
			return node, true
		}
	}

	return projector.DisplayNode{}, false
}
