// Package api holds the JSON response helpers shared by every handler,
// so success payloads and error envelopes stay uniform across the API.
package api

import (
	"encoding/json"
	"net/http"
)

// Success writes data as the JSON response body with the given status.
// A nil data writes the status line and headers only.
func Success(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error writes the error envelope used across the API.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
