package core

// staging.go implements the review state machine over the staging store.
//
// Every bulk operation runs its records independently through RunBulk and
// returns one outcome per id. There is no cross-record atomicity: a batch
// of ten approvals may end with nine approved and one failure, and the
// caller sees exactly which.

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/logging"
)

// Stage persists candidates as pending records of one batch. Candidates
// missing a required field fail with *ValidationError and are not stored.
func (s *Service) Stage(ctx context.Context, batchID uuid.UUID, candidates []NormalizedCandidate) BulkResult[StagingRecord] {
	now := s.now()
	records := make([]StagingRecord, len(candidates))
	for i, c := range candidates {
		records[i] = StagingRecord{
			ID:                  uuid.New(),
			BatchID:             batchID,
			NormalizedCandidate: c,
			Status:              StatusPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	}

	return RunBulk(ctx, s.bulkLimit(), records,
		func(r StagingRecord) uuid.UUID { return r.ID },
		func(ctx context.Context, r StagingRecord) (StagingRecord, error) {
			if err := ValidateCandidate(r.NormalizedCandidate); err != nil {
				return StagingRecord{}, err
			}
			if err := s.staging.InsertStaging(ctx, r); err != nil {
				return StagingRecord{}, Upstream("staging store", err)
			}
			return r, nil
		})
}

// Transition moves each id to the requested review status. Only approved
// and rejected may be requested; rejecting needs a non-empty reason.
// The error return is for a malformed request as a whole.
func (s *Service) Transition(ctx context.Context, ids []uuid.UUID, to Status, reason string) (BulkResult[StagingRecord], error) {
	if !isReviewTarget(to) {
		return BulkResult[StagingRecord]{}, &ValidationError{
			Field:   "to",
			Value:   string(to),
			Message: fmt.Sprintf("invalid status, must be one of: %s", joinStatuses(reviewTargets)),
		}
	}
	ids, err := s.checkIDs(ids)
	if err != nil {
		return BulkResult[StagingRecord]{}, err
	}

	reason = strings.TrimSpace(reason)
	var reasonPtr *string
	if to == StatusRejected && reason != "" {
		reasonPtr = &reason
	}

	res := RunBulk(ctx, s.bulkLimit(), ids, identity,
		func(ctx context.Context, id uuid.UUID) (StagingRecord, error) {
			if to == StatusRejected && reasonPtr == nil {
				return StagingRecord{}, &ValidationError{Field: "reason", Message: "required field is empty: a reason is needed to reject"}
			}
			rec, err := s.staging.GetStaging(ctx, id)
			if err != nil {
				return StagingRecord{}, Upstream("staging store", err)
			}
			if !rec.Status.CanTransition(to) {
				return StagingRecord{}, &InvalidStateError{ID: id, Status: rec.Status, Op: opName(to)}
			}
			updated, err := s.staging.CompareAndSetStatus(ctx, id, rec.Status, to, reasonPtr)
			if err != nil {
				return StagingRecord{}, Upstream("staging store", err)
			}
			return updated, nil
		})

	action := ActionApprove
	if to == StatusRejected {
		action = ActionReject
	}
	s.logAudit(ctx, AuditLogParams{
		Action:       action,
		RecordIDs:    res.SucceededIDs(),
		RowsAffected: res.Succeeded(),
		Reason:       reason,
		Detail:       map[string]any{"requested": len(ids), "failed": res.Failed()},
	})

	logging.FromContext(ctx).Info("staging transition",
		"to", to,
		"requested", len(ids),
		"succeeded", res.Succeeded(),
		"failed", res.Failed(),
	)
	return res, nil
}

// Edit applies patch to a pending record. A changed variant is normalized
// again and the result is validated before it is stored.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, patch CandidatePatch) (StagingRecord, error) {
	if patch.Empty() {
		return StagingRecord{}, &ValidationError{Message: "patch changes nothing"}
	}

	rec, err := s.staging.GetStaging(ctx, id)
	if err != nil {
		return StagingRecord{}, Upstream("staging store", err)
	}
	if rec.Status != StatusPending {
		return StagingRecord{}, &InvalidStateError{ID: id, Status: rec.Status, Op: "edit"}
	}

	changed := applyPatch(&rec.NormalizedCandidate, patch)
	if err := ValidateCandidate(rec.NormalizedCandidate); err != nil {
		return StagingRecord{}, err
	}
	rec.UpdatedAt = s.now()

	updated, err := s.staging.UpdatePending(ctx, rec)
	if err != nil {
		return StagingRecord{}, Upstream("staging store", err)
	}

	s.logAudit(ctx, AuditLogParams{
		Action:       ActionEdit,
		BatchID:      updated.BatchID,
		RecordIDs:    []uuid.UUID{id},
		RowsAffected: 1,
		Detail:       map[string]any{"fields": changed},
	})
	return updated, nil
}

// applyPatch writes the set fields of p into c and returns their names.
func applyPatch(c *NormalizedCandidate, p CandidatePatch) []string {
	var changed []string
	setString := func(name string, dst *string, src *string) {
		if src == nil {
			return
		}
		*dst = strings.TrimSpace(*src)
		changed = append(changed, name)
	}

	setString("productName", &c.ProductName, p.ProductName)
	setString("manufacturerName", &c.ManufacturerName, p.ManufacturerName)
	setString("brand", &c.Brand, p.Brand)
	setString("imageUrl", &c.ImageURL, p.ImageURL)

	if p.Variant != nil {
		applyVariant(c, *p.Variant)
		changed = append(changed, "variant")
	}
	if p.ProductCategory != nil {
		c.ProductCategory = optional(*p.ProductCategory)
		if c.ProductCategory == nil {
			c.ProductSubcategory = nil
		}
		changed = append(changed, "productCategory")
	}
	if p.ProductSubcategory != nil {
		c.ProductSubcategory = optional(*p.ProductSubcategory)
		changed = append(changed, "productSubcategory")
	}
	return changed
}

// Remove deletes records whatever their status.
func (s *Service) Remove(ctx context.Context, ids []uuid.UUID) (BulkResult[uuid.UUID], error) {
	return s.deleteMany(ctx, ids, ActionDelete)
}

// DiscardDuplicates deletes records that are in the duplicate status. Any
// other status fails that id with *InvalidStateError.
func (s *Service) DiscardDuplicates(ctx context.Context, ids []uuid.UUID) (BulkResult[uuid.UUID], error) {
	return s.deleteMany(ctx, ids, ActionDiscardDuplicate, StatusDuplicate)
}

func (s *Service) deleteMany(ctx context.Context, ids []uuid.UUID, action AuditAction, only ...Status) (BulkResult[uuid.UUID], error) {
	ids, err := s.checkIDs(ids)
	if err != nil {
		return BulkResult[uuid.UUID]{}, err
	}

	res := RunBulk(ctx, s.bulkLimit(), ids, identity,
		func(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
			if err := s.staging.DeleteStaging(ctx, id, only...); err != nil {
				return uuid.Nil, Upstream("staging store", err)
			}
			return id, nil
		})

	s.logAudit(ctx, AuditLogParams{
		Action:       action,
		RecordIDs:    res.SucceededIDs(),
		RowsAffected: res.Succeeded(),
		Detail:       map[string]any{"requested": len(ids), "failed": res.Failed()},
	})
	return res, nil
}

// ListByStatus returns records in status whose product name contains
// search, case-insensitively. An empty search matches everything.
func (s *Service) ListByStatus(ctx context.Context, status Status, search string) ([]StagingRecord, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Value: string(status), Message: "invalid status"}
	}
	recs, err := s.staging.ListStaging(ctx, StagingFilter{Status: &status, Search: strings.TrimSpace(search)})
	if err != nil {
		return nil, Upstream("staging store", err)
	}
	return recs, nil
}

// ListDuplicates returns records relabelled as duplicates by reconciliation.
func (s *Service) ListDuplicates(ctx context.Context, search string) ([]StagingRecord, error) {
	return s.ListByStatus(ctx, StatusDuplicate, search)
}

// Get returns one staging record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (StagingRecord, error) {
	rec, err := s.staging.GetStaging(ctx, id)
	if err != nil {
		return StagingRecord{}, Upstream("staging store", err)
	}
	return rec, nil
}

// checkIDs dedupes ids and enforces the bulk size limit.
func (s *Service) checkIDs(ids []uuid.UUID) ([]uuid.UUID, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "ids", Message: "required field is empty: no ids given"}
	}
	if max := s.cfg.Review.MaxBulkIDs; max > 0 && len(ids) > max {
		return nil, &ValidationError{
			Field:   "ids",
			Message: fmt.Sprintf("too many ids: %d exceeds the limit of %d", len(ids), max),
		}
	}
	return ids, nil
}
