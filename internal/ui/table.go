package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Column defines a table column. Right aligns numbers.
type Column struct {
	Title string
	Width int
	Right bool
}

// Row is a slice of cell values. Cells may already be styled.
type Row []string

// Table renders fixed-width columns.
type Table struct {
	Columns []Column
	Rows    []Row
	SelIdx  int // selected row index (-1 = none)
}

// NewTable creates a new table.
func NewTable(cols []Column) *Table {
	return &Table{Columns: cols, SelIdx: -1}
}

// AddRow appends a row.
func (t *Table) AddRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// Render returns the full table as a string.
func (t *Table) Render() string {
	headerStyle := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	cellStyle := lipgloss.NewStyle().Foreground(ColorValue)
	dimStyle := lipgloss.NewStyle().Foreground(ColorMeta)

	var sb strings.Builder
	line := func(cells []string) {
		sb.WriteString(strings.TrimRight(strings.Join(cells, " "), " "))
		sb.WriteString("\n")
	}

	cells := make([]string, len(t.Columns))
	for j, col := range t.Columns {
		cells[j] = headerStyle.Render(fit(col.Title, col))
	}
	line(cells)
	for j, col := range t.Columns {
		cells[j] = dimStyle.Render(strings.Repeat("-", col.Width))
	}
	line(cells)

	for i, row := range t.Rows {
		style := cellStyle
		if i == t.SelIdx {
			style = StyleSelected
		}
		for j, col := range t.Columns {
			val := ""
			if j < len(row) {
				val = row[j]
			}
			cells[j] = style.Render(fit(val, col))
		}
		line(cells)
	}
	return sb.String()
}

// fit pads or truncates s to the column by printed width, so styled cells
// line up.
func fit(s string, col Column) string {
	if ansi.StringWidth(s) > col.Width {
		s = ansi.Truncate(s, col.Width, "…")
	}
	gap := strings.Repeat(" ", col.Width-ansi.StringWidth(s))
	if col.Right {
		return gap + s
	}
	return s + gap
}

// KeyValueBlock renders key-value pairs in a bordered box, keys aligned to
// the longest one.
func KeyValueBlock(title string, pairs [][2]string) string {
	keyWidth := 0
	for _, p := range pairs {
		keyWidth = max(keyWidth, lipgloss.Width(p[0])+1)
	}

	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fit(p[0]+":", Column{Width: keyWidth}))
		sb.WriteString("  " + key + "  " + StyleValue.Render(p[1]) + "\n")
	}
	return StyleBorder.Render(strings.TrimSuffix(sb.String(), "\n"))
}
