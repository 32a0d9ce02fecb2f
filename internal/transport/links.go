package transport

import (
	"net/http"

	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleRegisterLink(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		SourceCounterID string          `json:"source_counter_id"`
		TargetCounterID string          `json:"target_counter_id"`
		Type            link.Type       `json:"type"`
		Condition       *link.Condition `json:"condition,omitempty"`
		Action          link.Action     `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	l, err := s.svc.Links.Register(r.Context(), tenantID, link.RegisterRequest{
		ProjectID:       chi.URLParam(r, "projectID"),
		SourceCounterID: req.SourceCounterID,
		TargetCounterID: req.TargetCounterID,
		Type:            req.Type,
		Condition:       req.Condition,
		Action:          req.Action,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	l, err := s.svc.Links.Get(r.Context(), tenantID, chi.URLParam(r, "linkID"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	links, err := s.svc.Links.ListByProject(r.Context(), tenantID, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (s *Server) handleUpdateLink(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Type      *link.Type      `json:"type"`
		Condition *link.Condition `json:"condition"`
		Action    *link.Action    `json:"action"`
		IsActive  *bool           `json:"is_active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	l, err := s.svc.Links.Update(r.Context(), tenantID, link.UpdateRequest{
		ID:        chi.URLParam(r, "linkID"),
		Type:      req.Type,
		Condition: req.Condition,
		Action:    req.Action,
		IsActive:  req.IsActive,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	if err := s.svc.Links.Delete(r.Context(), tenantID, chi.URLParam(r, "linkID")); err != nil {
		writeError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
