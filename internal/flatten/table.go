package flatten

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// dateLayout is the wire format for EffectiveDateTime cells.
const dateLayout = "2006-01-02"

// Table is an ordered-column, row-major table. Cells are untyped; nil
// marks a missing value. Type constraints are enforced by the enclosing
// Frame, not here.
type Table struct {
	columns []Column
	index   map[Column]int
	rows    [][]interface{}
}

// NewTable creates an empty table with the given column order.
func NewTable(columns []Column) *Table {
	idx := make(map[Column]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{columns: cols, index: idx}
}

// Columns returns the column order. Callers must not modify it.
func (t *Table) Columns() []Column {
	return t.columns
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(c Column) bool {
	_, ok := t.index[c]
	return ok
}

// Append adds one row from a cell map. Columns absent from the map get
// nil cells; keys outside the table's columns are ignored.
func (t *Table) Append(cells map[Column]interface{}) {
	row := make([]interface{}, len(t.columns))
	for c, v := range cells {
		if i, ok := t.index[c]; ok {
			row[i] = v
		}
	}
	t.rows = append(t.rows, row)
}

// Cell returns the value at (row, column).
func (t *Table) Cell(row int, c Column) (interface{}, bool) {
	i, ok := t.index[c]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil, false
	}
	return t.rows[row][i], true
}

// ColumnValues returns every cell of one column, in row order.
func (t *Table) ColumnValues(c Column) ([]interface{}, bool) {
	i, ok := t.index[c]
	if !ok {
		return nil, false
	}
	vals := make([]interface{}, len(t.rows))
	for r, row := range t.rows {
		vals[r] = row[i]
	}
	return vals, true
}

// SetCell overwrites the value at (row, column). Used by flatteners for
// the post-assembly date coercion pass; frames expose no mutation.
func (t *Table) SetCell(row int, c Column, v interface{}) {
	if i, ok := t.index[c]; ok && row >= 0 && row < len(t.rows) {
		t.rows[row][i] = v
	}
}

// Head returns a view of the first n rows sharing the receiver's
// backing storage. The receiver is left unchanged, so frames already
// validated against the full table stay intact. n at or past the row
// count returns the receiver itself.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.rows) {
		return t
	}
	return &Table{columns: t.columns, index: t.index, rows: t.rows[:n]}
}

// ToCSV renders the table with a header row. Missing cells render as
// empty strings and dates in ISO format.
func (t *Table) ToCSV() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = string(c)
	}
	_ = w.Write(header)

	for _, row := range t.rows {
		record := make([]string, len(row))
		for i, val := range row {
			record[i] = formatCell(val)
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.String()
}

// ToJSON renders the table as an array of column-keyed objects.
func (t *Table) ToJSON() []map[string]interface{} {
	objects := make([]map[string]interface{}, len(t.rows))
	for r, row := range t.rows {
		objects[r] = t.rowObject(row)
	}
	return objects
}

// ToNDJSON renders the table as newline-delimited JSON objects.
func (t *Table) ToNDJSON() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, row := range t.rows {
		_ = enc.Encode(t.rowObject(row))
	}
	return buf.String()
}

func (t *Table) rowObject(row []interface{}) map[string]interface{} {
	obj := make(map[string]interface{}, len(t.columns))
	for i, c := range t.columns {
		if d, ok := row[i].(time.Time); ok {
			obj[string(c)] = d.Format(dateLayout)
			continue
		}
		obj[string(c)] = row[i]
	}
	return obj
}

func formatCell(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format(dateLayout)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
