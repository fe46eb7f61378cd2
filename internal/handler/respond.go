package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parisxmas/TenderDesk/internal/intake"
	"github.com/parisxmas/TenderDesk/internal/repository"
)

type errorBody struct {
	Error string      `json:"error"`
	Kind  intake.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps intake kinds and repository sentinels to statuses.
// Messages of server-side failures are not echoed to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	var ierr *intake.Error
	switch {
	case errors.As(err, &ierr):
		status := ierr.Kind.HTTPStatus()
		msg := ierr.Message
		if status >= 500 {
			msg = "failed to store upload"
		}
		writeJSON(w, status, errorBody{Error: msg, Kind: ierr.Kind})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
