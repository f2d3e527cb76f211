package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/torresgol10/movie-club/internal/club/domain"
)

// maxRequestBody caps JSON request bodies at 64 KiB.
const maxRequestBody = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads the request body into target. On failure it writes a
// 400 response and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
// Unknown errors are logged and reported as 500 without detail.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrInvalidScore),
		errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrInvalidPIN):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrNoVettingMovie),
		errors.Is(err, domain.ErrMovieNotAvailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrSlotConflict),
		errors.Is(err, domain.ErrVettingIncomplete),
		errors.Is(err, domain.ErrNameTaken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
