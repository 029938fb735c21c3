package models

// Grid is the ephemeral row/column view of one extracted artifact. Cells
// are raw strings (empty string for blank cells). Headers hold the cells
// of the detected header row; Rows hold only data rows below it.
//
// A Grid is owned by the mapping session that produced it and is discarded
// when the session is consumed or abandoned.
type Grid struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`

	// HeaderRow is the index of the header row within the original
	// artifact, kept so row-scoped warnings can reference source lines.
	HeaderRow int `json:"header_row"`
}

// Cell returns the cell at (row, col), or "" when the row is ragged and
// does not reach col.
func (g *Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g.Rows) {
		return ""
	}
	r := g.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// RowCount returns the number of data rows.
func (g *Grid) RowCount() int {
	return len(g.Rows)
}

// ColumnCount returns the number of columns, as declared by the header row.
func (g *Grid) ColumnCount() int {
	return len(g.Headers)
}

// Preview returns up to n leading data rows for human review.
func (g *Grid) Preview(n int) [][]string {
	if n > len(g.Rows) {
		n = len(g.Rows)
	}
	return g.Rows[:n]
}
