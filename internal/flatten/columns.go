// Package flatten converts nested FHIR resources into flat tabular
// frames with a fixed, per-resource-type column set. Flattening is
// synchronous and stateless across calls; a produced Frame is treated
// as read-only.
package flatten

// Column names the canonical output columns. The constant's string
// value is the literal table header, so these values are wire-visible.
type Column string

const (
	ColUserID             Column = "UserId"
	ColEffectiveDateTime  Column = "EffectiveDateTime"
	ColQuantityName       Column = "QuantityName"
	ColQuantityUnit       Column = "QuantityUnit"
	ColQuantityValue      Column = "QuantityValue"
	ColLoincCode          Column = "LoincCode"
	ColDisplay            Column = "Display"
	ColAppleHealthKitCode Column = "AppleHealthKitCode"
)

// ResourceType identifies the FHIR resource category being flattened.
type ResourceType string

const (
	TypeObservation           ResourceType = "Observation"
	TypeQuestionnaireResponse ResourceType = "QuestionnaireResponse"
)
