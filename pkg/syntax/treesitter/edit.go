package treesitter

import (
	"strings"
	"unicode/utf8"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/safeconv"
)

// textEdit is a single contiguous replacement expressed in bytes and in
// tree-sitter points (row, byte column).
type textEdit struct {
	StartByte  int
	OldEndByte int
	NewEndByte int
	Start      position.Position
	OldEnd     position.Position
	NewEnd     position.Position
}

// computeEdit finds the smallest single replacement that turns before into
// after by trimming their common prefix and suffix. changed is false when
// the texts are equal.
func computeEdit(before, after string) (textEdit, bool) {
	if before == after {
		return textEdit{}, false
	}

	dmp := diffmatchpatch.New()

	prefix := runeBytes(before, dmp.DiffCommonPrefix(before, after))
	restBefore := before[prefix:]
	restAfter := after[prefix:]

	suffixRunes := dmp.DiffCommonSuffix(restBefore, restAfter)
	suffix := len(restBefore) - runeBytes(restBefore, utf8.RuneCountInString(restBefore)-suffixRunes)

	edit := textEdit{
		StartByte:  prefix,
		OldEndByte: len(before) - suffix,
		NewEndByte: len(after) - suffix,
	}

	edit.Start = pointAt(before, edit.StartByte)
	edit.OldEnd = pointAt(before, edit.OldEndByte)
	edit.NewEnd = pointAt(after, edit.NewEndByte)

	return edit, true
}

func (e textEdit) input() sitter.InputEdit {
	var in sitter.InputEdit

	safeconv.MustStore(&in.StartIndex, e.StartByte)
	safeconv.MustStore(&in.OldEndIndex, e.OldEndByte)
	safeconv.MustStore(&in.NewEndIndex, e.NewEndByte)

	in.StartPoint = point(e.Start)
	in.OldEndPoint = point(e.OldEnd)
	in.NewEndPoint = point(e.NewEnd)

	return in
}

func point(pos position.Position) sitter.Point {
	var pt sitter.Point

	safeconv.MustStore(&pt.Row, pos.Row)
	safeconv.MustStore(&pt.Column, pos.Column)

	return pt
}

// runeBytes returns the byte length of the first n runes of s.
func runeBytes(s string, n int) int {
	offset := 0

	for range n {
		_, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
	}

	return offset
}

// pointAt converts a byte offset into a tree-sitter point.
func pointAt(s string, offset int) position.Position {
	prefix := s[:offset]
	lineStart := strings.LastIndexByte(prefix, '\n') + 1

	return position.Position{Row: strings.Count(prefix, "\n"), Column: offset - lineStart}
}
