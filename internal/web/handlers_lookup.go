package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/logging"
	"github.com/JonMunkholm/intake/internal/variant"
)

const healthCheckTimeout = 2 * time.Second

// VariantResponse is the parse of one variant string.
type VariantResponse struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Parsed     bool   `json:"parsed"`
	Size       string `json:"size,omitempty"`
	Unit       string `json:"unit,omitempty"`
	Count      int    `json:"count,omitempty"`
	WeightKg   *int64 `json:"weightKg"`
}

// ClassifyResponse is the category resolved for a product.
type ClassifyResponse struct {
	Matched        bool                     `json:"matched"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	cats, err := s.service.Categories(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"categories": nonNil(cats)})
}

// handleClassify previews the category for ?name= and ?manufacturer=.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		s.respondError(w, r, &core.ValidationError{Field: "name", Message: "required field is empty"})
		return
	}

	cls, ok, err := s.service.Classify(r.Context(), name, strings.TrimSpace(q.Get("manufacturer")))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := ClassifyResponse{Matched: ok}
	if ok {
		resp.Classification = &cls
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleVariant previews the normalization of ?raw=.
func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("raw")
	if strings.TrimSpace(raw) == "" {
		s.respondError(w, r, &core.ValidationError{Field: "raw", Message: "required field is empty"})
		return
	}

	res := variant.Normalize(raw)
	resp := VariantResponse{
		Raw:        raw,
		Normalized: res.Text,
		Parsed:     res.Parsed,
		WeightKg:   res.WeightKg,
	}
	if res.Parsed {
		resp.Unit = string(res.Unit)
		resp.Count = res.Count
		if res.Size.Valid {
			resp.Size = res.Size.Decimal.String()
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleAudit lists recent audit entries, ?limit= defaulting to 100.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", 100), 1000)
	entries, err := s.audit.ListAudit(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, core.Upstream("audit log", err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

// HealthResponse reports dependency reachability and ingest capacity.
type HealthResponse struct {
	Status string                   `json:"status"`
	Checks map[string]string        `json:"checks"`
	Ingest core.IngestLimiterStatus `json:"ingest"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Checks: make(map[string]string, len(s.checks)),
		Ingest: s.service.Limiter().Status(),
	}
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.pinger.Ping(ctx)
		cancel()
		if err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "dependency", c.name, "error", err)
			resp.Status = "degraded"
			resp.Checks[c.name] = "unavailable"
			continue
		}
		resp.Checks[c.name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
