package flatten

import (
	"bytes"
	"fmt"
	"strings"
)

// columnSQL maps each column to the jsonb expression that derives it
// from a `resource` column holding the raw FHIR document. The COALESCE
// chains mirror the flattener's coding-slot fallback.
var columnSQL = map[Column]string{
	ColUserID:            `resource->'subject'->>'id'`,
	ColEffectiveDateTime: `COALESCE(resource->>'effectiveDateTime', resource->'effectivePeriod'->>'start')::date`,
	ColQuantityName: `COALESCE(resource->'code'->'coding'->1->>'display',` +
		` resource->'code'->'coding'->0->>'display', '')`,
	ColQuantityUnit:  `resource->'valueQuantity'->>'unit'`,
	ColQuantityValue: `(resource->'valueQuantity'->>'value')::numeric`,
	ColLoincCode:     `COALESCE(resource->'code'->'coding'->0->>'code', '')`,
	ColDisplay:       `COALESCE(resource->'code'->'coding'->0->>'display', '')`,
	ColAppleHealthKitCode: `COALESCE(resource->'code'->'coding'->1->>'code',` +
		` resource->'code'->'coding'->0->>'code', '')`,
}

// GenerateSQL emits a PostgreSQL CREATE VIEW statement producing the
// registered column set for the given resource type from a jsonb
// `fhir_resource` table. Text generation only; nothing here connects to
// a database.
func GenerateSQL(rt ResourceType) (string, error) {
	columns, err := RequiredColumns(rt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("CREATE OR REPLACE VIEW %s_flat AS\nSELECT\n", strings.ToLower(string(rt))))
	for i, c := range columns {
		buf.WriteString(fmt.Sprintf("  %s AS %q", columnSQL[c], string(c)))
		if i < len(columns)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString(fmt.Sprintf("FROM fhir_resource\nWHERE resource->>'resourceType' = '%s';\n", string(rt)))
	return buf.String(), nil
}
