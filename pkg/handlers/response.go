package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
)

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the classified error in the engine's error shape:
// {"message": "<ErrorKind>: <detail>"} with the status the taxonomy maps to.
func WriteError(w http.ResponseWriter, err error) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(err))
	return json.NewEncoder(w).Encode(map[string]string{
		"message": err.Error(),
	})
}

// ErrorResponse writes a JSON error with an explicit status code, for
// failures that never became classified errors.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"message": message,
	})
}
