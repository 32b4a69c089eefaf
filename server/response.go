package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Response bodies
// --------------------------------------------------------------------------

// errorResponse is the uniform error body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// operationResponse acknowledges a state-changing request.
type operationResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// countResponse acknowledges a bulk operation and reports how many
// entries it touched.
type countResponse struct {
	Success   bool   `json:"success"`
	Count     int    `json:"count"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statsResponse wraps a component's stats struct.
type statsResponse struct {
	Stats     any    `json:"stats"`
	Timestamp string `json:"timestamp"`
}

// keyResponse is the body of a single-key read.
type keyResponse struct {
	Key       string      `json:"key"`
	Value     store.Value `json:"value"`
	DataType  string      `json:"data_type"`
	Timestamp string      `json:"timestamp"`
}

// keyListResponse is the body of a key listing.
type keyListResponse struct {
	Keys      []string `json:"keys"`
	Count     int      `json:"count"`
	Timestamp string   `json:"timestamp"`
}

// timestamp returns the server time in the format used by all response
// bodies.
func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

// --------------------------------------------------------------------------
// Writers
// --------------------------------------------------------------------------

// writeJSON serializes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the uniform error body with an explicit status code.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Timestamp: timestamp(),
		Path:      r.URL.Path,
	})
}

// writeStoreError maps a store error to its HTTP status and writes the
// uniform error body.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, httpStatusOf(err), err.Error())
}

// httpStatusOf maps the error codes of the storage layer to HTTP status
// codes. A held cross-process lock is a retryable condition and maps to
// 503, validation failures map to 400.
func httpStatusOf(err error) int {
	switch store.CodeOf(err) {
	case store.RetCBusy:
		return http.StatusServiceUnavailable
	case store.RetCInvalidKey:
		return http.StatusBadRequest
	case store.RetCNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
