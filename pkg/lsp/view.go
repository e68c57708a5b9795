package lsp

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/tliron/glsp"

	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
)

// ErrUnknownDocument is returned for requests naming a document that is not open.
var ErrUnknownDocument = errors.New("document is not open")

// DecorationParams is sent with sqltree/decorations. The range uses the
// editor's 1-based convention.
type DecorationParams struct {
	URI    string            `json:"uri"`
	Handle hover.Handle      `json:"handle"`
	Range  hover.EditorRange `json:"range"`
	Style  string            `json:"style"`
}

// ClearDecorationsParams is sent with sqltree/clearDecorations.
type ClearDecorationsParams struct {
	URI     string         `json:"uri"`
	Handles []hover.Handle `json:"handles"`
}

// editorView forwards decoration requests to the client editor.
type editorView struct {
	uri    string
	notify glsp.NotifyFunc
	next   atomic.Uint64
}

func (v *editorView) ApplyDecorations(rng hover.EditorRange, style string) (hover.Handle, error) {
	handle := hover.Handle(v.uri + "#" + strconv.FormatUint(v.next.Add(1), 10))

	v.notify(MethodDecorations, DecorationParams{URI: v.uri, Handle: handle, Range: rng, Style: style})

	return handle, nil
}

func (v *editorView) ClearDecorations(handles []hover.Handle) error {
	v.notify(MethodClearDecorations, ClearDecorationsParams{URI: v.uri, Handles: handles})

	return nil
}
