package flatten

import (
	"github.com/rs/zerolog/log"

	"github.com/fhirtab/fhirtab/internal/platform/fhir"
)

// Flattener converts one resource type's records into a Frame.
type Flattener interface {
	Flatten(resources []fhir.Resource) (*Frame, error)
}

// flattenerFactories maps each resource type to its flattener
// constructor. QuestionnaireResponse has a schema entry but no factory,
// so dispatching it fails with ReasonNoFlattener rather than
// ReasonNoSchema.
var flattenerFactories = map[ResourceType]func() (Flattener, error){
	TypeObservation: func() (Flattener, error) { return NewObservationFlattener() },
}

// FlattenResources selects the flattener matching the batch's resource
// type (taken from the first record) and runs it. An empty batch is not
// an error: it returns a nil frame and logs an informational notice.
func FlattenResources(resources []fhir.Resource) (*Frame, error) {
	if len(resources) == 0 {
		log.Info().Msg("no resources to flatten")
		return nil, nil
	}

	rt := ResourceType(resources[0].Type())
	factory, ok := flattenerFactories[rt]
	if !ok {
		return nil, &UnsupportedTypeError{ResourceType: rt, Reason: ReasonNoFlattener}
	}

	flattener, err := factory()
	if err != nil {
		return nil, err
	}
	return flattener.Flatten(resources)
}
