package flatten

// resourceColumns is the static registry mapping each resource type to
// its required output columns, in header order. QuestionnaireResponse
// has a registered schema but no flattener yet; see flatten.go.
var resourceColumns = map[ResourceType][]Column{
	TypeObservation: {
		ColUserID,
		ColEffectiveDateTime,
		ColQuantityName,
		ColQuantityUnit,
		ColQuantityValue,
		ColLoincCode,
		ColDisplay,
		ColAppleHealthKitCode,
	},
	TypeQuestionnaireResponse: {
		ColUserID,
		ColEffectiveDateTime,
		ColQuantityName,
		ColQuantityValue,
		ColLoincCode,
	},
}

// RequiredColumns returns the ordered column set registered for the
// given resource type. The returned slice is a copy.
func RequiredColumns(rt ResourceType) ([]Column, error) {
	cols, ok := resourceColumns[rt]
	if !ok {
		return nil, &UnsupportedTypeError{ResourceType: rt, Reason: ReasonNoSchema}
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return out, nil
}

// RegisteredTypes returns every resource type with a schema entry.
func RegisteredTypes() []ResourceType {
	types := make([]ResourceType, 0, len(resourceColumns))
	for rt := range resourceColumns {
		types = append(types, rt)
	}
	return types
}
