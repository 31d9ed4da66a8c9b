package flatten

import (
	"fmt"
	"strings"
)

// Reasons an UnsupportedTypeError can carry. A resource type may have a
// schema entry yet no flattener, so the two lookups fail differently.
const (
	ReasonNoSchema    = "no column schema registered"
	ReasonNoFlattener = "no flattener registered"
)

// UnsupportedTypeError reports a resource type that the schema registry
// or the flattener registry does not know.
type UnsupportedTypeError struct {
	ResourceType ResourceType
	Reason       string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported resource type %q: %s", string(e.ResourceType), e.Reason)
}

// MissingColumnsError reports every required column absent from a
// frame's table, not just the first.
type MissingColumnsError struct {
	Columns []Column
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = string(c)
	}
	return fmt.Sprintf("table is missing required columns: %s", strings.Join(names, ", "))
}

// WrongTypeError reports a column whose cells violate the schema's type
// constraint.
type WrongTypeError struct {
	Column Column
	Reason string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("column %q has wrong type: %s", string(e.Column), e.Reason)
}

// FieldMissingError reports a resource in a flatten batch lacking a
// required nested field. The whole batch is aborted; Index is the
// offending resource's position in the input.
type FieldMissingError struct {
	Index int
	Field string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("resource %d is missing required field %q", e.Index, e.Field)
}
