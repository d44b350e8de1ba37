package httputil

import (
	"encoding/json"
	"net/http"
)

// Fields are extra top-level members merged into a response body
type Fields map[string]interface{}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response of the form {"success": true, ...fields}
func WriteSuccess(w http.ResponseWriter, fields Fields) error {
	body := make(Fields, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	return WriteJSON(w, http.StatusOK, body)
}

// WriteFailure writes {"success": false, "message": message, ...fields}
func WriteFailure(w http.ResponseWriter, status int, message string, fields Fields) {
	body := make(Fields, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = false
	body["message"] = message
	_ = WriteJSON(w, status, body)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusBadRequest, message, nil)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusUnauthorized, message, nil)
}

// WriteForbidden writes a forbidden error (403) with optional flags
func WriteForbidden(w http.ResponseWriter, message string, fields Fields) {
	WriteFailure(w, http.StatusForbidden, message, fields)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusNotFound, message, nil)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusTooManyRequests, message, nil)
}

// WriteServerError writes the generic 500 body. Callers log the cause.
func WriteServerError(w http.ResponseWriter) {
	WriteFailure(w, http.StatusInternalServerError, "Server error", nil)
}
