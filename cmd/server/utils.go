package main

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// saveErrorResponse is the body of a failed save.
type saveErrorResponse struct {
	Errors  []breeze.EntityError `json:"errors"`
	Message string               `json:"message"`
	Code    string               `json:"code,omitempty"`
	Details map[string]any       `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Warnw("failed to write response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
