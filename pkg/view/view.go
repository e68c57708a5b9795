// Package view turns pipeline state into the screen the tree panel shows:
// a loading notice, an error banner, an input prompt or the node rows.
package view

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
)

// Kind selects which screen is shown.
type Kind string

// Screen kinds.
const (
	KindLoading Kind = "loading"
	KindError   Kind = "error"
	KindEmpty   Kind = "empty"
	KindTree    Kind = "tree"
)

// Fixed screen messages.
const (
	MessageLoading = "Loading SQL parser..."
	MessageEmpty   = "Enter SQL to see parse tree"
)

// State is everything the renderer needs.
type State struct {
	Status session.Status
	// Err is the session failure or the last reparse failure.
	Err      error
	Nodes    []projector.DisplayNode
	Hovered  uint64
	HasHover bool
}

// Row is one rendered tree line.
type Row struct {
	ID       uint64 `json:"id"`
	Depth    int    `json:"depth"`
	Field    string `json:"field,omitempty"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	Position string `json:"position"`
	Snippet  string `json:"snippet,omitempty"`
	Error    bool   `json:"error,omitempty"`
	Hovered  bool   `json:"hovered,omitempty"`
}

// Screen is the renderer output.
type Screen struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
	Rows    []Row  `json:"rows,omitempty"`
}

// Render maps state onto a screen. Every session status has a screen, so
// the panel is never blank.
func Render(state State) Screen {
	switch state.Status {
	case session.StatusUninitialized, session.StatusLoading:
		return Screen{Kind: KindLoading, Message: MessageLoading}
	case session.StatusFailed:
		return errorScreen(state.Err)
	case session.StatusReady:
	}

	if state.Err != nil {
		return errorScreen(state.Err)
	}

	if len(state.Nodes) == 0 {
		return Screen{Kind: KindEmpty, Message: MessageEmpty}
	}

	rows := make([]Row, 0, len(state.Nodes))
	for _, node := range state.Nodes {
		rows = append(rows, newRow(node, state.HasHover && node.ID == state.Hovered))
	}

	return Screen{Kind: KindTree, Rows: rows}
}

func newRow(node projector.DisplayNode, hovered bool) Row {
	label := node.Type
	if node.FieldName != "" {
		label = node.FieldName + ": " + node.Type
	}

	snippet := ""
	if node.Snippet != "" {
		snippet = `"` + node.Snippet + `"`
	}

	return Row{
		ID:       node.ID,
		Depth:    node.Depth,
		Field:    node.FieldName,
		Type:     node.Type,
		Label:    label,
		Position: node.Range.String(),
		Snippet:  snippet,
		Error:    node.HasError,
		Hovered:  hovered,
	}
}

func errorScreen(err error) Screen {
	msg := "Failed to load SQL parser."
	if err != nil {
		msg = sentence(err.Error())
	}

	return Screen{Kind: KindError, Message: msg}
}

// sentence upper-cases the first letter of each ": "-separated part, so
// "failed to parse SQL query: empty result" reads as a banner.
func sentence(msg string) string {
	parts := strings.Split(msg, ": ")
	for idx, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		if size > 0 {
			parts[idx] = string(unicode.ToUpper(r)) + part[size:]
		}
	}

	return strings.Join(parts, ": ")
}
