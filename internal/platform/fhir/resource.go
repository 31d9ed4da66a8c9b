// Package fhir holds the minimal FHIR surface the tabulation service
// consumes: an opaque resource representation with path accessors, and
// OperationOutcome payloads for error responses. Resources arrive fully
// parsed from an upstream collaborator; this package never fetches or
// stores them.
package fhir

// Resource is one FHIR resource as decoded JSON. The service treats it
// as opaque apart from the handful of paths the flatteners read.
type Resource map[string]interface{}

// Coding is a (code, display) pair under some coding system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Type returns the resourceType tag, or "" if absent.
func (r Resource) Type() string {
	rt, _ := r["resourceType"].(string)
	return rt
}

// walk descends nested objects along path, stopping one segment short.
// It returns the value at the final segment and whether every segment
// existed.
func (r Resource) walk(path ...string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(r)
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string value at the given path.
func (r Resource) String(path ...string) (string, bool) {
	v, ok := r.walk(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Number returns the numeric value at the given path. JSON numbers
// decode as float64; integers stored by typed producers are accepted
// too.
func (r Resource) Number(path ...string) (float64, bool) {
	v, ok := r.walk(path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Codings returns the ordered coding list at the given path. The second
// return distinguishes "list absent" from "list present but empty":
// callers that require the list treat absence as a hard failure while an
// empty list is valid input.
func (r Resource) Codings(path ...string) ([]Coding, bool) {
	v, ok := r.walk(path...)
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	codings := make([]Coding, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var c Coding
		c.System, _ = m["system"].(string)
		c.Code, _ = m["code"].(string)
		c.Display, _ = m["display"].(string)
		codings = append(codings, c)
	}
	return codings, true
}
