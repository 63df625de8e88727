package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// table is a plain-text table. The first left columns are left aligned,
// the rest right aligned. A nil row draws a section rule.
type table struct {
	title  string
	header []string
	rows   [][]string
	left   int
}

func newTable(title string, header ...string) *table {
	return &table{title: title, header: header, left: 1}
}

// textTable left-aligns every column.
func textTable(title string, header ...string) *table {
	return &table{title: title, header: header, left: len(header)}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) section() {
	t.rows = append(t.rows, nil)
}

func (t *table) widths() []int {
	w := make([]int, len(t.header))
	for i, h := range t.header {
		w[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(w) {
				w[i] = max(w[i], utf8.RuneCountInString(cell))
			}
		}
	}
	return w
}

func (t *table) render(w io.Writer) error {
	widths := t.widths()
	total := 0
	for _, n := range widths {
		total += n + 2
	}
	total = max(total-2, utf8.RuneCountInString(t.title)+4)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", banner(t.title, total))
	writeRow(&b, t.header, widths, t.left)
	b.WriteString(strings.Repeat("-", total) + "\n")
	for _, row := range t.rows {
		if row == nil {
			b.WriteString(strings.Repeat("-", total) + "\n")
			continue
		}
		writeRow(&b, row, widths, t.left)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, cells []string, widths []int, left int) {
	var line strings.Builder
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(cell))
		if i > 0 {
			line.WriteString("  ")
		}
		if i < left {
			line.WriteString(cell + pad)
		} else {
			line.WriteString(pad + cell)
		}
	}
	b.WriteString(strings.TrimRight(line.String(), " "))
	b.WriteString("\n")
}

func banner(title string, width int) string {
	title = " " + strings.ToUpper(title) + " "
	side := max(width-utf8.RuneCountInString(title), 2)
	left := side / 2
	return strings.Repeat("=", left) + title + strings.Repeat("=", side-left)
}
