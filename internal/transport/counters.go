package transport

import (
	"net/http"
	"strconv"

	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateCounter(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		ParentID     *string          `json:"parent_id,omitempty"`
		Name         string           `json:"name"`
		InitialValue *int64           `json:"initial_value,omitempty"`
		MinValue     *int64           `json:"min_value,omitempty"`
		MaxValue     *int64           `json:"max_value,omitempty"`
		IncrementBy  int64            `json:"increment_by,omitempty"`
		Pattern      *counter.Pattern `json:"pattern,omitempty"`
		DisplayColor string           `json:"display_color,omitempty"`
		IsVisible    *bool            `json:"is_visible,omitempty"`
		SortOrder    int              `json:"sort_order,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	c, err := s.svc.Counters.Create(r.Context(), tenantID, counter.CreateRequest{
		ProjectID:    chi.URLParam(r, "projectID"),
		ParentID:     req.ParentID,
		Name:         req.Name,
		InitialValue: req.InitialValue,
		MinValue:     req.MinValue,
		MaxValue:     req.MaxValue,
		IncrementBy:  req.IncrementBy,
		Pattern:      req.Pattern,
		DisplayColor: req.DisplayColor,
		IsVisible:    req.IsVisible,
		SortOrder:    req.SortOrder,
		DeviceID:     DeviceFromContext(r.Context()),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	c, err := s.svc.Counters.Get(r.Context(), tenantID, chi.URLParam(r, "counterID"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListCounters(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	counters, err := s.svc.Counters.ListByProject(r.Context(), tenantID, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

func (s *Server) handleUpdateCounter(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Name         *string          `json:"name"`
		DisplayColor *string          `json:"display_color"`
		ParentID     *string          `json:"parent_id"`
		ClearParent  bool             `json:"clear_parent,omitempty"`
		MinValue     *int64           `json:"min_value"`
		ClearMin     bool             `json:"clear_min,omitempty"`
		MaxValue     *int64           `json:"max_value"`
		ClearMax     bool             `json:"clear_max,omitempty"`
		IncrementBy  *int64           `json:"increment_by"`
		Pattern      *counter.Pattern `json:"pattern"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	c, err := s.svc.Counters.UpdateSpec(r.Context(), tenantID, counter.UpdateSpecRequest{
		CounterID:    chi.URLParam(r, "counterID"),
		Name:         req.Name,
		DisplayColor: req.DisplayColor,
		ParentID:     req.ParentID,
		ClearParent:  req.ClearParent,
		MinValue:     req.MinValue,
		ClearMin:     req.ClearMin,
		MaxValue:     req.MaxValue,
		ClearMax:     req.ClearMax,
		IncrementBy:  req.IncrementBy,
		Pattern:      req.Pattern,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCounter(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	if err := s.svc.Counters.Delete(r.Context(), tenantID, chi.URLParam(r, "counterID")); err != nil {
		writeError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleValueOp is the single mutation endpoint for counter values:
// increment, decrement, reset, and set all commit through it.
func (s *Server) handleValueOp(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Op    string  `json:"op"`
		Value *int64  `json:"value,omitempty"`
		Note  *string `json:"note,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	result, err := s.svc.Counters.UpdateValue(r.Context(), tenantID, counter.UpdateRequest{
		CounterID: chi.URLParam(r, "counterID"),
		Op:        counter.Op(req.Op),
		Value:     req.Value,
		Note:      req.Note,
		DeviceID:  DeviceFromContext(r.Context()),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Visible bool `json:"visible"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	c, err := s.svc.Counters.SetVisibility(r.Context(), tenantID, chi.URLParam(r, "counterID"), req.Visible)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	c, err := s.svc.Counters.SetActive(r.Context(), tenantID, chi.URLParam(r, "counterID"), req.Active)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleReorderCounters(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		CounterIDs []string `json:"counter_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	if err := s.svc.Counters.Reorder(r.Context(), tenantID, chi.URLParam(r, "projectID"), req.CounterIDs); err != nil {
		writeError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCounterHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	entries, err := s.svc.History.ListForCounter(r.Context(), tenantID, chi.URLParam(r, "counterID"), listOptions(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func listOptions(r *http.Request) history.ListOptions {
	var opts history.ListOptions
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	return opts
}
