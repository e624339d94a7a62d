package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/store/memory"
	"github.com/JonMunkholm/intake/internal/web"
)

const supplierSheet = `Product Name,Manufacturer,Variant,Category
Golden Penny Semovita,Flour Mills,10 x 1kg,
Maltina Classic,Nigerian Breweries,330ml x 24,
Peak Milk Powder,FrieslandCampina,family tin,Dairy > Milk
`

type harness struct {
	srv       *web.Server
	staging   *memory.Staging
	canonical *memory.Canonical
	taxonomy  *memory.Taxonomy
	audit     *memory.AuditLog
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newHarness(t *testing.T, mutate func(*config.Config), opts ...web.Option) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.Rate.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		staging:   memory.NewStaging(),
		canonical: memory.NewCanonical(),
		taxonomy:  memory.NewTaxonomy(nil),
		audit:     &memory.AuditLog{},
	}
	svc, err := core.NewService(core.Deps{
		Staging:   h.staging,
		Canonical: h.canonical,
		Taxonomy:  h.taxonomy,
		Audit:     h.audit,
	}, cfg)
	require.NoError(t, err)

	opts = append([]web.Option{web.WithAuditReader(h.audit)}, opts...)
	h.srv = web.NewServer(svc, cfg, opts...)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (h *harness) upload(t *testing.T, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "intake-test")
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestIngestReviewCommitFlow(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.upload(t, "supplier.csv", []byte(supplierSheet))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ingest := decode[core.IngestResult](t, rec)
	assert.Equal(t, 3, ingest.Staged)
	assert.Equal(t, 1, ingest.Unparseable)

	rec = h.do(t, http.MethodGet, "/api/staging", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[web.StagingListResponse](t, rec)
	assert.Equal(t, core.StatusPending, list.Status)
	require.Equal(t, 3, list.Count)

	var approve []uuid.UUID
	var reject uuid.UUID
	for _, r := range list.Records {
		if r.ProductName == "Peak Milk Powder" {
			reject = r.ID
			continue
		}
		approve = append(approve, r.ID)
	}

	rec = h.do(t, http.MethodPost, "/api/staging/approve", web.IDsRequest{IDs: approve})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bulk := decode[web.BulkResponse[core.StagingRecord]](t, rec)
	assert.Equal(t, 2, bulk.Succeeded)
	assert.Equal(t, 0, bulk.Failed)

	rec = h.do(t, http.MethodPost, "/api/staging/transition", web.TransitionRequest{
		IDs: []uuid.UUID{reject}, To: "rejected", Reason: "no weight on label",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	bulk = decode[web.BulkResponse[core.StagingRecord]](t, rec)
	require.Len(t, bulk.Items, 1)
	require.NotNil(t, bulk.Items[0].Result)
	assert.Equal(t, "no weight on label", *bulk.Items[0].Result.RejectionReason)

	rec = h.do(t, http.MethodPost, "/api/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[web.ReconcileResponse](t, rec)
	assert.Len(t, res.Committed, 2)
	assert.Equal(t, 2, res.CommittedCount)
	assert.Empty(t, res.Duplicates)
	assert.Empty(t, res.Failed)
	assert.Len(t, h.canonical.Products(), 2)

	rec = h.do(t, http.MethodGet, "/api/staging?status=approved", nil)
	assert.Equal(t, 0, decode[web.StagingListResponse](t, rec).Count)

	rec = h.do(t, http.MethodGet, "/api/audit?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[struct {
		Entries []core.AuditEntry `json:"entries"`
	}](t, rec)
	require.Len(t, audit.Entries, 2)
	assert.Equal(t, core.ActionCommit, audit.Entries[0].Action)

	entries := h.audit.Entries()
	assert.Equal(t, core.ActionIngest, entries[0].Action)
	assert.Equal(t, "intake-test", entries[0].UserAgent)
}

func TestReconcileMarksDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusOK, h.upload(t, "a.csv", []byte(supplierSheet)).Code)
	require.Equal(t, http.StatusOK, h.upload(t, "b.csv", []byte(supplierSheet)).Code)

	list := decode[web.StagingListResponse](t, h.do(t, http.MethodGet, "/api/staging?q=maltina", nil))
	require.Equal(t, 2, list.Count)
	ids := []uuid.UUID{list.Records[0].ID, list.Records[1].ID}

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/staging/approve", web.IDsRequest{IDs: ids}).Code)

	res := decode[web.ReconcileResponse](t, h.do(t, http.MethodPost, "/api/reconcile", web.ReconcileRequest{IDs: ids}))
	assert.Len(t, res.Committed, 1)
	require.Len(t, res.Duplicates, 1)

	dups := decode[web.StagingListResponse](t, h.do(t, http.MethodGet, "/api/duplicates", nil))
	require.Equal(t, 1, dups.Count)

	rec := h.do(t, http.MethodPost, "/api/duplicates/discard", web.IDsRequest{IDs: []uuid.UUID{dups.Records[0].ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[web.BulkResponse[uuid.UUID]](t, rec).Succeeded)
	assert.Equal(t, 4, h.staging.Len())
}

func TestReconcileByIDsKeepsGoingPastUnknownID(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusOK, h.upload(t, "a.csv", []byte(supplierSheet)).Code)

	list := decode[web.StagingListResponse](t, h.do(t, http.MethodGet, "/api/staging", nil))
	require.Equal(t, 3, list.Count)
	var ids []uuid.UUID
	for _, r := range list.Records {
		ids = append(ids, r.ID)
	}
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/staging/approve", web.IDsRequest{IDs: ids}).Code)

	missing := uuid.New()
	rec := h.do(t, http.MethodPost, "/api/reconcile", web.ReconcileRequest{IDs: append(ids, missing, ids[0])})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[web.ReconcileResponse](t, rec)
	assert.Equal(t, 3, res.CommittedCount)
	assert.Equal(t, 0, res.DuplicateCount)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, missing, res.Failed[0].Record.ID)
	assert.Equal(t, "STG002", res.Failed[0].Error.Code)
	assert.Len(t, h.canonical.Products(), 3)
}

func TestReconcileByIDsTooMany(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Review.MaxBulkIDs = 1 })
	rec := h.do(t, http.MethodPost, "/api/reconcile", web.ReconcileRequest{IDs: []uuid.UUID{uuid.New(), uuid.New()}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL007", decode[web.ErrorResponse](t, rec).Code)
}

func TestBulkReportsPerItemFailures(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusOK, h.upload(t, "a.csv", []byte(supplierSheet)).Code)
	list := decode[web.StagingListResponse](t, h.do(t, http.MethodGet, "/api/staging", nil))

	missing := uuid.New()
	ids := []uuid.UUID{list.Records[0].ID, missing, list.Records[1].ID}
	rec := h.do(t, http.MethodPost, "/api/staging/approve", web.IDsRequest{IDs: ids})
	require.Equal(t, http.StatusOK, rec.Code)

	bulk := decode[web.BulkResponse[core.StagingRecord]](t, rec)
	assert.Equal(t, 2, bulk.Succeeded)
	assert.Equal(t, 1, bulk.Failed)
	require.Len(t, bulk.Items, 3)
	assert.Equal(t, missing, bulk.Items[1].ID)
	require.NotNil(t, bulk.Items[1].Error)
	assert.Equal(t, "STG002", bulk.Items[1].Error.Code)

	// Approved records cannot be rejected.
	rec = h.do(t, http.MethodPost, "/api/staging/reject", map[string]any{"ids": ids[:1], "reason": "dup"})
	bulk = decode[web.BulkResponse[core.StagingRecord]](t, rec)
	require.NotNil(t, bulk.Items[0].Error)
	assert.Equal(t, "STG001", bulk.Items[0].Error.Code)
}

func TestEditStaging(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusOK, h.upload(t, "a.csv", []byte(supplierSheet)).Code)
	list := decode[web.StagingListResponse](t, h.do(t, http.MethodGet, "/api/staging?q=peak", nil))
	require.Equal(t, 1, list.Count)
	id := list.Records[0].ID

	rec := h.do(t, http.MethodPatch, "/api/staging/"+id.String(), map[string]string{"variant": "12 x 400g"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[core.StagingRecord](t, rec)
	assert.Equal(t, "400G x 12", got.VariantNormalized)
	require.NotNil(t, got.WeightKg)
	assert.EqualValues(t, 5, *got.WeightKg)

	rec = h.do(t, http.MethodPatch, "/api/staging/"+id.String(), map[string]string{"colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/staging/"+uuid.NewString(), map[string]string{"brand": "Peak"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "STG002", decode[web.ErrorResponse](t, rec).Code)

	rec = h.do(t, http.MethodGet, "/api/staging/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decode[web.ErrorResponse](t, rec).Field)
}

func TestErrorStatusCodes(t *testing.T) {
	t.Run("invalid status filter", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.do(t, http.MethodGet, "/api/staging?status=archived", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL008", decode[web.ErrorResponse](t, rec).Code)
	})

	t.Run("transition to pending", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.do(t, http.MethodPost, "/api/staging/transition", web.TransitionRequest{IDs: []uuid.UUID{uuid.New()}, To: "pending"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.do(t, http.MethodPost, "/api/ingest", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "FILE004", decode[web.ErrorResponse](t, rec).Code)
	})

	t.Run("file too large", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.Ingest.MaxFileSize = 64 })
		rec := h.upload(t, "big.csv", []byte(supplierSheet))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "FILE001", decode[web.ErrorResponse](t, rec).Code)
	})

	t.Run("unsupported file", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.upload(t, "catalog.pdf", []byte("%PDF-1.7"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "FILE006", decode[web.ErrorResponse](t, rec).Code)
	})

	t.Run("taxonomy unavailable", func(t *testing.T) {
		h := newHarness(t, nil)
		h.taxonomy.SetUnavailable(errors.New("connection refused"))
		rec := h.upload(t, "a.csv", []byte(supplierSheet))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("Retry-After"))
		assert.Equal(t, "UPS001", decode[web.ErrorResponse](t, rec).Code)
	})
}

func TestLookups(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/variant?raw=12x400g", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[web.VariantResponse](t, rec)
	assert.Equal(t, "400G x 12", v.Normalized)
	assert.True(t, v.Parsed)
	assert.Equal(t, "400", v.Size)
	require.NotNil(t, v.WeightKg)
	assert.EqualValues(t, 5, *v.WeightKg)

	rec = h.do(t, http.MethodGet, "/api/variant?raw=family+pack", nil)
	v = decode[web.VariantResponse](t, rec)
	assert.False(t, v.Parsed)
	assert.Nil(t, v.WeightKg)

	rec = h.do(t, http.MethodGet, "/api/classify?name=Golden+Penny+Semovita&manufacturer=Flour+Mills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cls := decode[web.ClassifyResponse](t, rec)
	require.True(t, cls.Matched)
	assert.Equal(t, "Poundo, Wheat & Semolina", cls.Classification.Category)

	rec = h.do(t, http.MethodGet, "/api/classify", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/taxonomy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Poundo, Wheat & Semolina")
}

func TestShutdownConcurrentWithStart(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = 0
	})

	started := make(chan error, 1)
	go func() { started <- h.srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))
	require.NoError(t, h.srv.Shutdown(ctx), "second shutdown")

	select {
	case err := <-started:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestHealth(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })
	up := pingFunc(func(context.Context) error { return nil })

	h := newHarness(t, nil, web.WithHealthCheck("postgres", up))
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[web.HealthResponse](t, rec).Status)

	h = newHarness(t, nil, web.WithHealthCheck("postgres", up), web.WithHealthCheck("mongo", down))
	rec = h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[web.HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unavailable", health.Checks["mongo"])
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

func TestAPIKeyAndHeaders(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	rec := h.do(t, http.MethodGet, "/api/staging", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/api/staging", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.RequestsPerMinute = 100
		c.Rate.IngestLimit = 1
	})

	require.Equal(t, http.StatusOK, h.upload(t, "a.csv", []byte(supplierSheet)).Code)
	rec := h.upload(t, "b.csv", []byte(supplierSheet))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "RATE001"))

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/staging", nil).Code)
}
