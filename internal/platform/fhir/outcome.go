package fhir

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by this service.
const (
	IssueTypeInvalid       = "invalid"
	IssueTypeRequired      = "required"
	IssueTypeValue         = "value"
	IssueTypeNotSupported  = "not-supported"
	IssueTypeProcessing    = "processing"
	IssueTypeTooCostly     = "too-costly"
	IssueTypeInformational = "informational"
)

// OperationOutcome is the FHIR error/notice payload returned by the API.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

// ErrorOutcome creates a generic processing-error outcome.
func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

// InfoOutcome creates an informational outcome, used for notices such as
// an empty input batch.
func InfoOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityInformation, IssueTypeInformational, diagnostics)
}
