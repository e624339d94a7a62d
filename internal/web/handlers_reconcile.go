package web

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/core"
)

// ReconcileRequest optionally limits a run to some approved records.
type ReconcileRequest struct {
	IDs []uuid.UUID `json:"ids,omitempty"`
}

// ReconcileFailure is a record the run could not settle.
type ReconcileFailure struct {
	Record core.StagingRecord `json:"record"`
	Error  ErrorResponse      `json:"error"`
}

// ReconcileResponse splits a run into committed products, duplicates and
// failures, with a count for each.
type ReconcileResponse struct {
	CommittedCount int                     `json:"committedCount"`
	DuplicateCount int                     `json:"duplicateCount"`
	FailedCount    int                     `json:"failedCount"`
	Committed      []core.CanonicalProduct `json:"committed"`
	Duplicates     []core.StagingRecord    `json:"duplicates"`
	Failed         []ReconcileFailure      `json:"failed"`
}

func toReconcileResponse(res core.ReconcileResult) ReconcileResponse {
	out := ReconcileResponse{
		CommittedCount: len(res.Committed),
		DuplicateCount: len(res.Duplicates),
		FailedCount:    len(res.Failed),
		Committed:      nonNil(res.Committed),
		Duplicates:     nonNil(res.Duplicates),
		Failed:         make([]ReconcileFailure, len(res.Failed)),
	}
	for i, f := range res.Failed {
		out.Failed[i] = ReconcileFailure{Record: f.Record, Error: newErrorResponse(f.Err)}
	}
	return out
}

// handleReconcile commits approved records. With no body, or no ids, every
// approved record is reconciled. Ids that cannot be read come back as
// failures next to the rest of the run.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	ctx := WithRequestMetadata(r.Context(), r)
	var (
		res core.ReconcileResult
		err error
	)
	if len(req.IDs) == 0 {
		res, err = s.service.ReconcileApproved(ctx)
	} else {
		res, err = s.service.ReconcileIDs(ctx, req.IDs)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toReconcileResponse(res))
}

func (s *Server) handleListDuplicates(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListDuplicates(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, StagingListResponse{Status: core.StatusDuplicate, Count: len(records), Records: nonNil(records)})
}

func (s *Server) handleDiscardDuplicates(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.service.DiscardDuplicates(WithRequestMetadata(r.Context(), r), req.IDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBulkResponse(res))
}
