package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// newTable returns a rounded table that renders to w.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}
