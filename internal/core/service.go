package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/config"
)

// Deps are the collaborators of a Service. Audit and Classifier are
// optional.
type Deps struct {
	Staging    StagingStore
	Canonical  CanonicalStore
	Taxonomy   TaxonomySource
	Audit      AuditSink
	Classifier *classify.Classifier
}

// Service is the entry point for ingest, review and commit operations.
// It is safe for concurrent use.
type Service struct {
	staging    StagingStore
	canonical  CanonicalStore
	taxonomy   TaxonomySource
	audit      AuditSink
	classifier *classify.Classifier

	cfg        *config.Config
	limiter    *IngestLimiter
	reconciler *Reconciler
	now        func() time.Time
}

// NewService wires a Service. A nil cfg uses config.Defaults().
func NewService(deps Deps, cfg *config.Config) (*Service, error) {
	if deps.Staging == nil {
		return nil, errors.New("core: staging store is required")
	}
	if deps.Canonical == nil {
		return nil, errors.New("core: canonical store is required")
	}
	if deps.Taxonomy == nil {
		return nil, errors.New("core: taxonomy source is required")
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New(classify.DefaultRules())
	}

	s := &Service{
		staging:    deps.Staging,
		canonical:  deps.Canonical,
		taxonomy:   deps.Taxonomy,
		audit:      deps.Audit,
		classifier: deps.Classifier,
		cfg:        cfg,
		limiter:    NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime),
		now:        time.Now,
	}
	s.reconciler = NewReconciler(deps.Staging, deps.Canonical, cfg.Review.BulkConcurrency)
	return s, nil
}

// Limiter exposes the ingest limiter for health checks and shutdown.
func (s *Service) Limiter() *IngestLimiter {
	return s.limiter
}

// Reconciler returns the commit engine used by ReconcileApproved.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Categories returns the current taxonomy.
func (s *Service) Categories(ctx context.Context) ([]classify.Category, error) {
	tax, err := s.loadTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	return tax.Categories(), nil
}

// Classify runs the classifier against the current taxonomy.
func (s *Service) Classify(ctx context.Context, productName, manufacturerName string) (classify.Classification, bool, error) {
	tax, err := s.loadTaxonomy(ctx)
	if err != nil {
		return classify.Classification{}, false, err
	}
	cls, ok := s.classifier.Classify(productName, manufacturerName, tax)
	return cls, ok, nil
}

func (s *Service) bulkLimit() int {
	return s.cfg.Review.BulkConcurrency
}
