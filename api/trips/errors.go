package trips

import (
	"encoding/json"
	"errors"
	"net/http"

	coretrips "github.com/kilianp07/evtrip/core/trips"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: msg}})
}

func notFound(w http.ResponseWriter, msg string) {
	writeErrorCode(w, http.StatusNotFound, "not_found", msg)
}

// writeError maps command errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coretrips.ErrInvalidInput):
		writeErrorCode(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, coretrips.ErrUnknownVehicle):
		notFound(w, err.Error())
	default:
		h.log.Errorf("request failed: %v", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
