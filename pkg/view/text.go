package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// indentWidth is the number of spaces per tree level.
const indentWidth = 2

// TextOptions controls WriteText.
type TextOptions struct {
	// Plain disables ANSI colors.
	Plain bool
}

type palette struct {
	field, kind, pos, snippet, errRow, hovered, notice, banner *color.Color
}

func newPalette(plain bool) palette {
	pal := palette{
		field:   color.New(color.FgGreen),
		kind:    color.New(color.Bold),
		pos:     color.New(color.FgHiBlack),
		snippet: color.New(color.FgHiBlack, color.Italic),
		errRow:  color.New(color.FgRed, color.Bold),
		hovered: color.New(color.ReverseVideo),
		notice:  color.New(color.FgCyan),
		banner:  color.New(color.FgRed),
	}

	if plain {
		for _, c := range []*color.Color{
			pal.field, pal.kind, pal.pos, pal.snippet, pal.errRow, pal.hovered, pal.notice, pal.banner,
		} {
			c.DisableColor()
		}
	}

	return pal
}

// WriteText prints the screen as an indented tree, one node per line with
// its snippet on the following line.
func WriteText(w io.Writer, screen Screen, opts TextOptions) error {
	pal := newPalette(opts.Plain)

	var sb strings.Builder

	switch screen.Kind {
	case KindLoading, KindEmpty:
		sb.WriteString(pal.notice.Sprint(screen.Message))
		sb.WriteByte('\n')
	case KindError:
		sb.WriteString(pal.banner.Sprint(screen.Message))
		sb.WriteByte('\n')
	case KindTree:
		for _, row := range screen.Rows {
			writeRow(&sb, pal, row)
		}
	}

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("write tree: %w", err)
	}

	return nil
}

func writeRow(sb *strings.Builder, pal palette, row Row) {
	indent := strings.Repeat(" ", row.Depth*indentWidth)

	var label string

	switch {
	case row.Error:
		label = pal.errRow.Sprint(row.Label)
	case row.Field != "":
		label = pal.field.Sprint(row.Field+":") + " " + pal.kind.Sprint(row.Type)
	default:
		label = pal.kind.Sprint(row.Type)
	}

	line := label + " " + pal.pos.Sprint(row.Position)
	if row.Hovered {
		line = pal.hovered.Sprint(line)
	}

	sb.WriteString(indent)
	sb.WriteString(line)
	sb.WriteByte('\n')

	if row.Snippet != "" {
		sb.WriteString(indent)
		sb.WriteString(strings.Repeat(" ", indentWidth))
		sb.WriteString(pal.snippet.Sprint(row.Snippet))
		sb.WriteByte('\n')
	}
}
