package flatten

import (
	"time"

	"github.com/fhirtab/fhirtab/internal/platform/fhir"
)

// dateTimeLayouts are tried in order when coercing the assembled
// EffectiveDateTime column into calendar dates.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	dateLayout,
}

// ObservationFlattener extracts one tabular row per FHIR Observation.
type ObservationFlattener struct {
	resourceType ResourceType
	required     []Column
}

// NewObservationFlattener creates a flattener for Observation resources.
// Fails if the schema registry has no Observation entry.
func NewObservationFlattener() (*ObservationFlattener, error) {
	required, err := RequiredColumns(TypeObservation)
	if err != nil {
		return nil, err
	}
	return &ObservationFlattener{resourceType: TypeObservation, required: required}, nil
}

// Flatten converts a batch of Observation resources into a Frame with
// one row per resource, in input order. Any resource lacking its coding
// list, valueQuantity, or subject reference aborts the whole batch with
// a FieldMissingError; partial frames are never returned. Input
// resources are not mutated.
func (f *ObservationFlattener) Flatten(resources []fhir.Resource) (*Frame, error) {
	table := NewTable(f.required)

	for i, obs := range resources {
		// Prefer the direct timestamp, fall back to the period start.
		// Both absent is a missing cell, not an error.
		var effective interface{}
		if s, ok := obs.String("effectiveDateTime"); ok {
			effective = s
		} else if s, ok := obs.String("effectivePeriod", "start"); ok {
			effective = s
		}

		codings, ok := obs.Codings("code", "coding")
		if !ok {
			return nil, &FieldMissingError{Index: i, Field: "code.coding"}
		}

		// LOINC always reads slot 0; the HealthKit code and quantity
		// name prefer slot 1 because upstream places the vendor coding
		// second when both systems are present.
		var loincCode, display, healthKitCode, quantityName string
		if len(codings) > 0 {
			loincCode = codings[0].Code
			display = codings[0].Display
			healthKitCode = codings[0].Code
			quantityName = codings[0].Display
		}
		if len(codings) > 1 {
			healthKitCode = codings[1].Code
			quantityName = codings[1].Display
		}

		userID, ok := obs.String("subject", "id")
		if !ok {
			return nil, &FieldMissingError{Index: i, Field: "subject.id"}
		}

		unit, ok := obs.String("valueQuantity", "unit")
		if !ok {
			return nil, &FieldMissingError{Index: i, Field: "valueQuantity.unit"}
		}
		value, ok := obs.Number("valueQuantity", "value")
		if !ok {
			return nil, &FieldMissingError{Index: i, Field: "valueQuantity.value"}
		}

		table.Append(map[Column]interface{}{
			ColUserID:             userID,
			ColEffectiveDateTime:  effective,
			ColQuantityName:       quantityName,
			ColQuantityUnit:       unit,
			ColQuantityValue:      value,
			ColLoincCode:          loincCode,
			ColDisplay:            display,
			ColAppleHealthKitCode: healthKitCode,
		})
	}

	coerceDateColumn(table, ColEffectiveDateTime)

	return NewFrame(table, f.resourceType)
}

// coerceDateColumn reinterprets an entire column as calendar dates,
// turning unparseable cells into missing values rather than failing.
func coerceDateColumn(t *Table, c Column) {
	vals, ok := t.ColumnValues(c)
	if !ok {
		return
	}
	for row, v := range vals {
		t.SetCell(row, c, parseDate(v))
	}
}

// parseDate returns the calendar date for a timestamp string, or nil
// when the cell is missing or unparseable.
func parseDate(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	return nil
}
