package tabular

import "fmt"

// Kind is the semantic type a column is expected to carry.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
	// KindRate is numeric constrained to a 0-1 proportion scale. Values on a
	// 0-100 percentage scale are detected and normalized by the schema
	// checker.
	KindRate
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindRate:
		return "rate"
	}
	return "text"
}

// Cell is one value in a table: text, number, or null. Numeric parsing
// happens at load time so checkers never re-parse strings.
type Cell struct {
	Text  string
	Num   float64
	IsNum bool
	Null  bool
}

// NumCell builds a numeric cell.
func NumCell(v float64) Cell { return Cell{Num: v, IsNum: true} }

// TextCell builds a text cell.
func TextCell(s string) Cell { return Cell{Text: s} }

// NullCell builds a null cell.
func NullCell() Cell { return Cell{Null: true} }

// Table is an immutable-by-convention tabular snapshot. Checkers never
// mutate a table they were given; normalization produces a copy.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]Cell

	index map[string]int
}

// New creates an empty table with the given column order.
func New(name string, columns []string) *Table {
	t := &Table{Name: name, Columns: columns}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

// Append adds a row. The row must match the column count.
func (t *Table) Append(cells []Cell) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d cells, want %d", t.Name, len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Cell returns the cell at (row, column). The second result is false when
// the column does not exist.
func (t *Table) Cell(row int, column string) (Cell, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.Rows) {
		return Cell{}, false
	}
	return t.Rows[row][i], true
}

// SetCell overwrites a cell. Only used while building normalized copies.
func (t *Table) SetCell(row int, column string, c Cell) {
	if i, ok := t.index[column]; ok && row >= 0 && row < len(t.Rows) {
		t.Rows[row][i] = c
	}
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := New(t.Name, append([]string(nil), t.Columns...))
	out.Rows = make([][]Cell, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]Cell(nil), row...)
	}
	return out
}

// ColumnValues returns the non-null numeric values of a column.
func (t *Table) ColumnValues(column string) []float64 {
	i, ok := t.index[column]
	if !ok {
		return nil
	}
	vals := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		c := row[i]
		if !c.Null && c.IsNum {
			vals = append(vals, c.Num)
		}
	}
	return vals
}

// ColumnSpec is the expected-column contract the schema checker enforces.
type ColumnSpec struct {
	Name     string
	Kind     Kind
	Required bool
	// Critical columns must not contain nulls; nulls elsewhere are
	// reported at a lower severity.
	Critical bool
}

// Schema is the expected shape of one dataset.
type Schema struct {
	Dataset string
	Columns []ColumnSpec
}

// Column looks up a spec by name.
func (s Schema) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}
