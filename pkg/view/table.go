package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteTable prints the screen as a table with one row per node. Non-tree
// screens print their message instead.
func WriteTable(w io.Writer, screen Screen) error {
	if screen.Kind != KindTree {
		_, err := fmt.Fprintln(w, screen.Message)
		if err != nil {
			return fmt.Errorf("write table: %w", err)
		}

		return nil
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"#", "Node", "Range", "Text", "Error"})

	for idx, row := range screen.Rows {
		errMark := ""
		if row.Error {
			errMark = "yes"
		}

		tbl.AppendRow(table.Row{
			idx,
			strings.Repeat("  ", row.Depth) + row.Label,
			row.Position,
			row.Snippet,
			errMark,
		})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d nodes", len(screen.Rows))})
	tbl.Render()

	return nil
}
