package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid entry id")
		return
	}

	entry, err := s.svc.History.Get(r.Context(), tenantID, entryID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleProjectHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	entries, err := s.svc.History.ListForProject(r.Context(), tenantID, chi.URLParam(r, "projectID"), listOptions(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleUndo re-applies a past entry's old value as a fresh forward
// mutation. The ledger itself is never rewritten.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid entry id")
		return
	}

	var req struct {
		Note *string `json:"note"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "malformed request body")
			return
		}
	}

	result, err := s.svc.History.Undo(r.Context(), tenantID, entryID, req.Note)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
