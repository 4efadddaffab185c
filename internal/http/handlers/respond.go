package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/areuok/server/internal/apperr"
)

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondAppError maps an application error onto the HTTP taxonomy:
// NotFound 404, BadRequest 400, everything else 500. Internal detail is
// logged server-side and never shown to the client.
func respondAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperr.CodeNotFound:
			respondWithError(w, http.StatusNotFound, appErr.Message)
			return
		case apperr.CodeBadRequest:
			respondWithError(w, http.StatusBadRequest, appErr.Message)
			return
		default:
			log.Printf("Internal error: %v", err)
			respondWithError(w, http.StatusInternalServerError, appErr.Message)
			return
		}
	}

	log.Printf("Unclassified error: %v", err)
	respondWithError(w, http.StatusInternalServerError, "internal server error")
}
