package core

// reconcile.go commits approved staging records to the canonical catalog.
//
// The exact key lookup is the only dedup step. A record whose key already
// exists, or repeats an earlier record of the same run, is relabelled
// duplicate and kept for review. Everything else is inserted as one batch;
// inserted records are removed from staging. A key that appears between
// the lookup and the insert is caught by the store's unique constraint and
// handled as a duplicate too, so reruns never write a key twice.

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/logging"
)

// ReconcileFailure is a record that was neither committed nor relabelled.
// It keeps its previous status.
type ReconcileFailure struct {
	Record StagingRecord `json:"record"`
	Err    error         `json:"-"`
}

// ReconcileResult reports every input record in exactly one bucket.
type ReconcileResult struct {
	Committed  []CanonicalProduct `json:"committed"`
	Duplicates []StagingRecord    `json:"duplicates"`
	Failed     []ReconcileFailure `json:"failed"`
}

// Reconciler partitions approved records into unique and duplicate sets
// and commits the unique set.
type Reconciler struct {
	staging     StagingStore
	canonical   CanonicalStore
	concurrency int
	now         func() time.Time
}

// NewReconciler creates a Reconciler issuing at most concurrency store
// calls at once.
func NewReconciler(staging StagingStore, canonical CanonicalStore, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultBulkConcurrency
	}
	return &Reconciler{
		staging:     staging,
		canonical:   canonical,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// ReconcileAndCommit processes records, which must all be approved. Both
// the commit and the relabel branch always run, even when the other is
// empty.
func (r *Reconciler) ReconcileAndCommit(ctx context.Context, records []StagingRecord) ReconcileResult {
	var res ReconcileResult
	log := logging.FromContext(ctx)

	approved := make([]StagingRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status != StatusApproved {
			res.Failed = append(res.Failed, ReconcileFailure{
				Record: rec,
				Err:    &InvalidStateError{ID: rec.ID, Status: rec.Status, Op: "commit"},
			})
			continue
		}
		approved = append(approved, rec)
	}

	// Step 1: exact key lookup.
	lookups := RunBulk(ctx, r.concurrency, approved,
		func(rec StagingRecord) uuid.UUID { return rec.ID },
		func(ctx context.Context, rec StagingRecord) (bool, error) {
			existing, err := r.canonical.FindByKey(ctx, rec.Key())
			if err != nil {
				return false, Upstream("canonical store", err)
			}
			return existing != nil, nil
		})

	// Step 2: partition in input order.
	var unique, dups []StagingRecord
	seen := make(map[ProductKey]struct{}, len(approved))
	for _, o := range lookups.Outcomes {
		rec := approved[o.Index]
		if o.Err != nil {
			res.Failed = append(res.Failed, ReconcileFailure{Record: rec, Err: o.Err})
			continue
		}
		key := rec.Key()
		if _, repeat := seen[key]; o.Value || repeat {
			dups = append(dups, rec)
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rec)
	}

	// Step 3: commit uniques and clear them from staging.
	committed, lateDups, failed := r.commit(ctx, unique)
	res.Committed = committed
	res.Failed = append(res.Failed, failed...)
	dups = append(dups, lateDups...)

	// Step 4: relabel duplicates.
	relabel := RunBulk(ctx, r.concurrency, dups,
		func(rec StagingRecord) uuid.UUID { return rec.ID },
		func(ctx context.Context, rec StagingRecord) (StagingRecord, error) {
			updated, err := r.staging.CompareAndSetStatus(ctx, rec.ID, StatusApproved, StatusDuplicate, nil)
			if err != nil {
				return StagingRecord{}, Upstream("staging store", err)
			}
			return updated, nil
		})
	for _, o := range relabel.Outcomes {
		if o.Err != nil {
			res.Failed = append(res.Failed, ReconcileFailure{Record: dups[o.Index], Err: o.Err})
			continue
		}
		res.Duplicates = append(res.Duplicates, o.Value)
	}

	log.Info("reconciliation finished",
		"records", len(records),
		"committed", len(res.Committed),
		"duplicates", len(res.Duplicates),
		"failed", len(res.Failed),
	)
	return res
}

// commit inserts unique records and deletes the inserted ones from
// staging. Records rejected by the unique constraint come back as late
// duplicates.
func (r *Reconciler) commit(ctx context.Context, unique []StagingRecord) ([]CanonicalProduct, []StagingRecord, []ReconcileFailure) {
	if len(unique) == 0 {
		return nil, nil, nil
	}

	now := r.now()
	bySource := make(map[uuid.UUID]StagingRecord, len(unique))
	products := make([]CanonicalProduct, len(unique))
	for i, rec := range unique {
		products[i] = NewCanonicalProduct(rec, now)
		bySource[rec.ID] = rec
	}

	var (
		lateDups []StagingRecord
		failed   []ReconcileFailure
	)

	ins, err := r.canonical.InsertMany(ctx, products)
	if err != nil {
		err = Upstream("canonical store", err)
		for _, rec := range unique {
			failed = append(failed, ReconcileFailure{Record: rec, Err: err})
		}
		return nil, nil, failed
	}

	for _, f := range ins.Failed {
		rec := bySource[f.Product.SourceStagingID]
		if errors.Is(f.Err, ErrDuplicateKey) {
			lateDups = append(lateDups, rec)
			continue
		}
		failed = append(failed, ReconcileFailure{Record: rec, Err: Upstream("canonical store", f.Err)})
	}

	cleanup := RunBulk(ctx, r.concurrency, ins.Inserted,
		func(p CanonicalProduct) uuid.UUID { return p.SourceStagingID },
		func(ctx context.Context, p CanonicalProduct) (CanonicalProduct, error) {
			if err := r.staging.DeleteStaging(ctx, p.SourceStagingID, StatusApproved); err != nil {
				return CanonicalProduct{}, Upstream("staging store", err)
			}
			return p, nil
		})

	var committed []CanonicalProduct
	for _, o := range cleanup.Outcomes {
		if o.Err != nil {
			// The product is in the catalog; a rerun will relabel the
			// leftover staging record as a duplicate.
			logging.FromContext(ctx).Warn("committed record not cleared from staging",
				"staging_id", o.ID,
				"error", o.Err,
			)
			failed = append(failed, ReconcileFailure{Record: bySource[o.ID], Err: o.Err})
			continue
		}
		committed = append(committed, o.Value)
	}
	return committed, lateDups, failed
}

// ReconcileApproved commits every approved staging record.
func (s *Service) ReconcileApproved(ctx context.Context) (ReconcileResult, error) {
	approved := StatusApproved
	records, err := s.staging.ListStaging(ctx, StagingFilter{Status: &approved})
	if err != nil {
		return ReconcileResult{}, Upstream("staging store", err)
	}
	return s.Reconcile(ctx, records), nil
}

// ReconcileIDs commits the approved records named by ids. ids are deduped
// and capped like any bulk request. An id that cannot be read is reported
// as a failure carrying only that id; the rest are still reconciled.
func (s *Service) ReconcileIDs(ctx context.Context, ids []uuid.UUID) (ReconcileResult, error) {
	ids, err := s.checkIDs(ids)
	if err != nil {
		return ReconcileResult{}, err
	}

	reads := RunBulk(ctx, s.bulkLimit(), ids, identity, s.Get)

	var lookupFailures []ReconcileFailure
	records := make([]StagingRecord, 0, len(ids))
	for _, o := range reads.Outcomes {
		if o.Err != nil {
			lookupFailures = append(lookupFailures, ReconcileFailure{Record: StagingRecord{ID: o.ID}, Err: o.Err})
			continue
		}
		records = append(records, o.Value)
	}

	res := ReconcileResult{}
	if len(records) > 0 {
		res = s.Reconcile(ctx, records)
	}
	res.Failed = append(lookupFailures, res.Failed...)
	return res, nil
}

// Reconcile commits the given records. The caller must pass records read
// from the staging store.
func (s *Service) Reconcile(ctx context.Context, records []StagingRecord) ReconcileResult {
	if t := s.cfg.Review.ReconcileTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	res := s.reconciler.ReconcileAndCommit(ctx, records)

	ids := make([]uuid.UUID, len(res.Committed))
	for i, p := range res.Committed {
		ids[i] = p.SourceStagingID
	}
	s.logAudit(ctx, AuditLogParams{
		Action:       ActionCommit,
		RecordIDs:    ids,
		RowsAffected: len(res.Committed),
		Detail:       map[string]any{"requested": len(records), "failed": len(res.Failed)},
	})

	dupIDs := make([]uuid.UUID, len(res.Duplicates))
	for i, d := range res.Duplicates {
		dupIDs[i] = d.ID
	}
	s.logAudit(ctx, AuditLogParams{
		Action:       ActionMarkDuplicate,
		RecordIDs:    dupIDs,
		RowsAffected: len(res.Duplicates),
	})
	return res
}
