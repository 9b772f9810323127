// Package httpx maps service errors and payloads onto HTTP responses. Error
// bodies follow RFC 7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ProblemDetail is the error body returned by every endpoint.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// maxBodyBytes caps request bodies; movement and product payloads are tiny.
const maxBodyBytes = 1 << 20

// JSON writes data with the given status. Encode errors are dropped: the
// status line is already on the wire by then.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// NoContent writes a bare 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Problem writes an RFC 7807 body with its registered media type.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON reads one JSON document from the request body. Unknown fields
// are rejected so typos in client payloads surface as 400s instead of being
// silently ignored.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
