package web

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/core"
)

// TransitionRequest moves records to approved or rejected.
type TransitionRequest struct {
	IDs    []uuid.UUID `json:"ids"`
	To     string      `json:"to"`
	Reason string      `json:"reason,omitempty"`
}

// IDsRequest names records for a bulk operation.
type IDsRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// StagingListResponse is a page of staging records.
type StagingListResponse struct {
	Status  core.Status          `json:"status"`
	Count   int                  `json:"count"`
	Records []core.StagingRecord `json:"records"`
}

// handleListStaging lists records with ?status= (default pending) and an
// optional ?q= product name search.
func (s *Server) handleListStaging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := core.StatusPending
	if raw := q.Get("status"); raw != "" {
		st, err := core.ParseStatus(raw)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		status = st
	}

	records, err := s.service.ListByStatus(r.Context(), status, q.Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, StagingListResponse{Status: status, Count: len(records), Records: nonNil(records)})
}

func (s *Server) handleGetStaging(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// handleEditStaging applies a CandidatePatch to a pending record.
func (s *Server) handleEditStaging(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var patch core.CandidatePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.Edit(WithRequestMetadata(r.Context(), r), id, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	to, err := core.ParseStatus(req.To)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.transition(w, r, req.IDs, to, req.Reason)
}

// handleTransitionTo is handleTransition with a fixed target.
func (s *Server) handleTransitionTo(to core.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs    []uuid.UUID `json:"ids"`
			Reason string      `json:"reason,omitempty"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
		s.transition(w, r, req.IDs, to, req.Reason)
	}
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, ids []uuid.UUID, to core.Status, reason string) {
	res, err := s.service.Transition(WithRequestMetadata(r.Context(), r), ids, to, reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBulkResponse(res))
}

func (s *Server) handleDeleteStaging(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.service.Remove(WithRequestMetadata(r.Context(), r), req.IDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBulkResponse(res))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
