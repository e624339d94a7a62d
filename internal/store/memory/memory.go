// Package memory implements the core storage ports in process memory.
//
// The stores back the CLI's --dry-run mode and the service tests. They
// honor the same contracts as the database backends: status compare and
// set, unique product keys, and *NotFoundError for missing ids.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/core"
)

var (
	_ core.StagingStore   = (*Staging)(nil)
	_ core.CanonicalStore = (*Canonical)(nil)
	_ core.TaxonomySource = (*Taxonomy)(nil)
	_ core.AuditSink      = (*AuditLog)(nil)
)

// outage makes a store fail every call while set.
type outage struct {
	mu  sync.RWMutex
	err error
}

// SetUnavailable makes every call fail with err. Pass nil to recover.
func (o *outage) SetUnavailable(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *outage) check() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

type stagingEntry struct {
	rec core.StagingRecord
	seq int64
}

// Staging is an in-memory StagingStore.
type Staging struct {
	outage

	mu      sync.RWMutex
	records map[uuid.UUID]stagingEntry
	seq     int64
	now     func() time.Time
}

// NewStaging returns an empty store.
func NewStaging() *Staging {
	return &Staging{
		records: make(map[uuid.UUID]stagingEntry),
		now:     time.Now,
	}
}

func (s *Staging) InsertStaging(_ context.Context, rec core.StagingRecord) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("staging record %s already exists", rec.ID)
	}
	s.seq++
	s.records[rec.ID] = stagingEntry{rec: rec, seq: s.seq}
	return nil
}

func (s *Staging) GetStaging(_ context.Context, id uuid.UUID) (core.StagingRecord, error) {
	if err := s.check(); err != nil {
		return core.StagingRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return core.StagingRecord{}, &core.NotFoundError{ID: id}
	}
	return e.rec, nil
}

func (s *Staging) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to core.Status, reason *string) (core.StagingRecord, error) {
	if err := s.check(); err != nil {
		return core.StagingRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return core.StagingRecord{}, &core.NotFoundError{ID: id}
	}
	if e.rec.Status != from {
		return core.StagingRecord{}, &core.InvalidStateError{ID: id, Status: e.rec.Status, Op: "move to " + string(to)}
	}

	e.rec.Status = to
	e.rec.RejectionReason = nil
	if to == core.StatusRejected && reason != nil {
		r := *reason
		e.rec.RejectionReason = &r
	}
	e.rec.UpdatedAt = s.now()
	s.records[id] = e
	return e.rec, nil
}

func (s *Staging) UpdatePending(_ context.Context, rec core.StagingRecord) (core.StagingRecord, error) {
	if err := s.check(); err != nil {
		return core.StagingRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[rec.ID]
	if !ok {
		return core.StagingRecord{}, &core.NotFoundError{ID: rec.ID}
	}
	if e.rec.Status != core.StatusPending {
		return core.StagingRecord{}, &core.InvalidStateError{ID: rec.ID, Status: e.rec.Status, Op: "edit"}
	}

	e.rec.NormalizedCandidate = rec.NormalizedCandidate
	e.rec.UpdatedAt = rec.UpdatedAt
	s.records[rec.ID] = e
	return e.rec, nil
}

func (s *Staging) DeleteStaging(_ context.Context, id uuid.UUID, statuses ...core.Status) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return &core.NotFoundError{ID: id}
	}
	if len(statuses) > 0 && !slices.Contains(statuses, e.rec.Status) {
		return &core.InvalidStateError{ID: id, Status: e.rec.Status, Op: "delete"}
	}
	delete(s.records, id)
	return nil
}

func (s *Staging) ListStaging(_ context.Context, filter core.StagingFilter) ([]core.StagingRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var entries []stagingEntry
	for _, e := range s.records {
		if filter.Status != nil && e.rec.Status != *filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.rec.ProductName), search) {
			continue
		}
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(a, b stagingEntry) int {
		if c := a.rec.CreatedAt.Compare(b.rec.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq - b.seq)
	})

	out := make([]core.StagingRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Staging) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Canonical is an in-memory CanonicalStore keyed by ProductKey.
type Canonical struct {
	outage

	mu       sync.RWMutex
	products map[core.ProductKey]core.CanonicalProduct
}

// NewCanonical returns a catalog holding products.
func NewCanonical(products ...core.CanonicalProduct) *Canonical {
	c := &Canonical{products: make(map[core.ProductKey]core.CanonicalProduct)}
	for _, p := range products {
		c.products[p.Key()] = p
	}
	return c
}

func (c *Canonical) FindByKey(_ context.Context, key core.ProductKey) (*core.CanonicalProduct, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *Canonical) InsertMany(_ context.Context, products []core.CanonicalProduct) (core.InsertManyResult, error) {
	if err := c.check(); err != nil {
		return core.InsertManyResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var res core.InsertManyResult
	for _, p := range products {
		key := p.Key()
		if _, exists := c.products[key]; exists {
			res.Failed = append(res.Failed, core.InsertFailure{Product: p, Err: &core.DuplicateKeyError{Key: key}})
			continue
		}
		c.products[key] = p
		res.Inserted = append(res.Inserted, p)
	}
	return res, nil
}

// Products returns the catalog ordered by creation time.
func (c *Canonical) Products() []core.CanonicalProduct {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.CanonicalProduct, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b core.CanonicalProduct) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return out
}

// Taxonomy is a fixed TaxonomySource.
type Taxonomy struct {
	outage
	cats []classify.Category
}

// NewTaxonomy serves cats. A nil cats serves the built-in taxonomy.
func NewTaxonomy(cats []classify.Category) *Taxonomy {
	if cats == nil {
		cats = classify.DefaultCategories()
	}
	return &Taxonomy{cats: cats}
}

func (t *Taxonomy) ListCategories(context.Context) ([]classify.Category, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return slices.Clone(t.cats), nil
}

// AuditLog collects audit entries.
type AuditLog struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (a *AuditLog) InsertAudit(_ context.Context, entry core.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
	return nil
}

// Entries returns the recorded entries in insertion order.
func (a *AuditLog) Entries() []core.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.entries)
}

// ListAudit returns up to limit entries, newest first.
func (a *AuditLog) ListAudit(_ context.Context, limit int) ([]core.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || limit > len(a.entries) {
		limit = len(a.entries)
	}
	out := make([]core.AuditEntry, 0, limit)
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}
