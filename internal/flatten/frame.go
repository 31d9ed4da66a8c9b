package flatten

import (
	"fmt"
	"time"
)

// Frame pairs a table with its declared resource type. Construction
// only checks that the type has a schema entry; shape and cell types
// are checked lazily via ValidateColumns so callers can distinguish
// "not yet validated" from "validated and clean".
type Frame struct {
	table        *Table
	resourceType ResourceType
	required     []Column
}

// NewFrame wraps an already-shaped table. Fails when the resource type
// has no schema registry entry.
func NewFrame(table *Table, rt ResourceType) (*Frame, error) {
	required, err := RequiredColumns(rt)
	if err != nil {
		return nil, err
	}
	return &Frame{table: table, resourceType: rt, required: required}, nil
}

// Table returns the underlying table. It is read-only by convention.
func (f *Frame) Table() *Table {
	return f.table
}

// ResourceType returns the frame's declared resource type.
func (f *Frame) ResourceType() ResourceType {
	return f.resourceType
}

// RequiredColumns returns the schema entry the frame was built against.
func (f *Frame) RequiredColumns() []Column {
	cols := make([]Column, len(f.required))
	copy(cols, f.required)
	return cols
}

// ValidateColumns checks the table against the resource type's schema:
// every required column must be present (all absences reported in one
// error), EffectiveDateTime cells must be calendar dates, and every
// other required column except QuantityValue must hold strings. Missing
// cells (nil) are tolerated everywhere; a single typed violation fails
// the whole check. The table is not mutated.
func (f *Frame) ValidateColumns() error {
	required, err := RequiredColumns(f.resourceType)
	if err != nil {
		return err
	}

	var missing []Column
	for _, c := range required {
		if !f.table.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}

	if vals, ok := f.table.ColumnValues(ColEffectiveDateTime); ok {
		for i, v := range vals {
			if v == nil {
				continue
			}
			d, ok := v.(time.Time)
			if !ok || !isDateOnly(d) {
				return &WrongTypeError{
					Column: ColEffectiveDateTime,
					Reason: fmt.Sprintf("row %d is not a calendar date", i),
				}
			}
		}
	}

	for _, c := range required {
		if c == ColEffectiveDateTime || c == ColQuantityValue {
			continue
		}
		vals, ok := f.table.ColumnValues(c)
		if !ok {
			continue
		}
		for i, v := range vals {
			if v == nil {
				continue
			}
			if _, ok := v.(string); !ok {
				return &WrongTypeError{
					Column: c,
					Reason: fmt.Sprintf("row %d is not a string", i),
				}
			}
		}
	}

	return nil
}

// isDateOnly reports whether t carries no time-of-day component.
func isDateOnly(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
