package flatten

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func observationRow(day interface{}) map[Column]interface{} {
	return map[Column]interface{}{
		ColUserID:             "user-1",
		ColEffectiveDateTime:  day,
		ColQuantityName:       "Heart Rate",
		ColQuantityUnit:       "beats/minute",
		ColQuantityValue:      72.0,
		ColLoincCode:          "8867-4",
		ColDisplay:            "Heart rate",
		ColAppleHealthKitCode: "HKQuantityTypeIdentifierHeartRate",
	}
}

func TestNewFrame_UnsupportedType(t *testing.T) {
	table := NewTable([]Column{ColUserID})
	_, err := NewFrame(table, ResourceType("Encounter"))
	if err == nil {
		t.Fatal("expected error for unregistered resource type")
	}
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %T", err)
	}
}

func TestNewFrame_QuestionnaireResponseHasSchema(t *testing.T) {
	// The type has a schema entry even though no flattener exists, so
	// frame construction must succeed.
	cols, _ := RequiredColumns(TypeQuestionnaireResponse)
	frame, err := NewFrame(NewTable(cols), TypeQuestionnaireResponse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.ResourceType() != TypeQuestionnaireResponse {
		t.Errorf("resource type = %q", frame.ResourceType())
	}
}

func TestValidateColumns_Clean(t *testing.T) {
	cols, _ := RequiredColumns(TypeObservation)
	table := NewTable(cols)
	table.Append(observationRow(date(2024, 1, 15)))
	table.Append(observationRow(nil)) // missing date cell is tolerated

	frame, err := NewFrame(table, TypeObservation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := frame.ValidateColumns(); err != nil {
		t.Fatalf("expected clean validation, got %v", err)
	}
}

func TestValidateColumns_MissingSingleColumn(t *testing.T) {
	cols, _ := RequiredColumns(TypeObservation)
	var trimmed []Column
	for _, c := range cols {
		if c != ColQuantityValue {
			trimmed = append(trimmed, c)
		}
	}
	frame, _ := NewFrame(NewTable(trimmed), TypeObservation)

	err := frame.ValidateColumns()
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(missing.Columns) != 1 || missing.Columns[0] != ColQuantityValue {
		t.Errorf("missing columns = %v, want [QuantityValue]", missing.Columns)
	}
	if !strings.Contains(err.Error(), "QuantityValue") {
		t.Errorf("error message %q does not mention QuantityValue", err.Error())
	}
}

func TestValidateColumns_MissingColumnsListsAll(t *testing.T) {
	frame, _ := NewFrame(NewTable([]Column{ColUserID, ColEffectiveDateTime}), TypeObservation)

	err := frame.ValidateColumns()
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(missing.Columns) != 6 {
		t.Errorf("expected all 6 absent columns reported, got %v", missing.Columns)
	}
}

func TestValidateColumns_OneBadDateFailsWholeCheck(t *testing.T) {
	cols, _ := RequiredColumns(TypeObservation)
	table := NewTable(cols)
	for i := 0; i < 9; i++ {
		table.Append(observationRow(date(2024, 1, 1+i)))
	}
	table.Append(observationRow("2024-01-15")) // string, not a date

	frame, _ := NewFrame(table, TypeObservation)
	err := frame.ValidateColumns()
	var wrong *WrongTypeError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected WrongTypeError, got %v", err)
	}
	if wrong.Column != ColEffectiveDateTime {
		t.Errorf("wrong column = %q, want EffectiveDateTime", wrong.Column)
	}
}

func TestValidateColumns_RejectsTimeOfDay(t *testing.T) {
	cols, _ := RequiredColumns(TypeObservation)
	table := NewTable(cols)
	table.Append(observationRow(time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)))

	frame, _ := NewFrame(table, TypeObservation)
	var wrong *WrongTypeError
	if !errors.As(frame.ValidateColumns(), &wrong) {
		t.Fatal("expected WrongTypeError for a timestamp with a time-of-day component")
	}
}

func TestValidateColumns_NonStringCell(t *testing.T) {
	cols, _ := RequiredColumns(TypeObservation)
	table := NewTable(cols)
	row := observationRow(date(2024, 1, 15))
	row[ColLoincCode] = 8867.4
	table.Append(row)

	frame, _ := NewFrame(table, TypeObservation)
	err := frame.ValidateColumns()
	var wrong *WrongTypeError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected WrongTypeError, got %v", err)
	}
	if wrong.Column != ColLoincCode {
		t.Errorf("wrong column = %q, want LoincCode", wrong.Column)
	}
}

func TestValidateColumns_QuantityValueExemptFromStringCheck(t *testing.T) {
	cols, _ := RequiredColumns(TypeObservation)
	table := NewTable(cols)
	table.Append(observationRow(date(2024, 1, 15))) // QuantityValue is 72.0

	frame, _ := NewFrame(table, TypeObservation)
	if err := frame.ValidateColumns(); err != nil {
		t.Fatalf("numeric QuantityValue must pass validation, got %v", err)
	}
}
