package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/domain/project"
)

// errorBody is the wire shape of every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses and stable error codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal"

	switch {
	case errors.Is(err, counter.ErrBoundsExceeded):
		status, code = http.StatusConflict, "bounds_exceeded"
	case errors.Is(err, counter.ErrCounterNotFound),
		errors.Is(err, counter.ErrProjectNotFound),
		errors.Is(err, link.ErrLinkNotFound),
		errors.Is(err, link.ErrCounterNotFound),
		errors.Is(err, history.ErrEntryNotFound),
		errors.Is(err, project.ErrProjectNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, link.ErrDuplicateLink),
		errors.Is(err, counter.ErrCounterLinked),
		errors.Is(err, counter.ErrParentCycle):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, counter.ErrInvalidInput),
		errors.Is(err, counter.ErrCounterInactive),
		errors.Is(err, link.ErrInvalidInput),
		errors.Is(err, link.ErrSelfLink),
		errors.Is(err, link.ErrCrossProject),
		errors.Is(err, history.ErrInvalidInput),
		errors.Is(err, project.ErrInvalidInput):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, broadcast.ErrUnauthorized):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		msg = "internal error"
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "validation", Message: msg}})
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
