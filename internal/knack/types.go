package knack

import "encoding/json"

// Record is a raw record as returned by the objects API: an opaque mapping
// from field key to value. Every record carries an "id" string and a
// "created_at" timestamp alongside its field values.
type Record map[string]interface{}

// ID returns the record's unique identifier, or "" if absent.
func (r Record) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}
	return ""
}

// Field returns the raw value stored under the given field key.
func (r Record) Field(key string) interface{} {
	return r[key]
}

// Filter is a single server-side filter rule, serialized into the
// "filters" query parameter as a JSON array.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// recordsPage is the envelope for one page of a records listing.
type recordsPage struct {
	Records      []Record    `json:"records"`
	TotalPages   int         `json:"total_pages"`
	CurrentPage  json.Number `json:"current_page"`
	TotalRecords int         `json:"total_records"`
}

// createResponse is the envelope for a successful create call.
type createResponse struct {
	ID string `json:"id"`
}
