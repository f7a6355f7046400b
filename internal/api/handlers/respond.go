package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps err through the error taxonomy.
func respondWithAppError(w http.ResponseWriter, err error) {
	respondWithJSON(w, apperrors.HTTPStatus(err), map[string]string{
		"error":      apperrors.PublicMessage(err),
		"error_type": string(apperrors.TypeOf(err)),
	})
}
