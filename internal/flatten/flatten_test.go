package flatten

import (
	"errors"
	"testing"

	"github.com/fhirtab/fhirtab/internal/platform/fhir"
)

func TestFlattenResources_EmptyBatch(t *testing.T) {
	frame, err := FlattenResources(nil)
	if err != nil {
		t.Fatalf("an empty batch must not be an error, got %v", err)
	}
	if frame != nil {
		t.Error("expected a nil frame for an empty batch")
	}

	frame, err = FlattenResources([]fhir.Resource{})
	if err != nil || frame != nil {
		t.Errorf("empty slice: frame=%v err=%v, want nil/nil", frame, err)
	}
}

func TestFlattenResources_Observation(t *testing.T) {
	batch := []fhir.Resource{
		makeObservation("user-1", "2024-01-15", [2]string{"8867-4", "Heart rate"}),
		makeObservation("user-2", "2024-01-16", [2]string{"8867-4", "Heart rate"}),
	}

	frame, err := FlattenResources(batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Table().NumRows() != 2 {
		t.Errorf("expected 2 rows, got %d", frame.Table().NumRows())
	}
}

func TestFlattenResources_QuestionnaireResponseHasNoFlattener(t *testing.T) {
	// The schema registry knows the type, but no flattener is
	// registered for it, so dispatch fails with the flattener reason.
	batch := []fhir.Resource{
		{"resourceType": "QuestionnaireResponse"},
	}

	_, err := FlattenResources(batch)
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
	if unsupported.Reason != ReasonNoFlattener {
		t.Errorf("reason = %q, want %q", unsupported.Reason, ReasonNoFlattener)
	}

	if _, schemaErr := RequiredColumns(TypeQuestionnaireResponse); schemaErr != nil {
		t.Errorf("schema lookup must still succeed: %v", schemaErr)
	}
}

func TestFlattenResources_UnknownType(t *testing.T) {
	_, err := FlattenResources([]fhir.Resource{{"resourceType": "Patient"}})
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
}
