package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/intake/internal/core"
)

func record(name string, status core.Status, created time.Time) core.StagingRecord {
	return core.StagingRecord{
		ID:      uuid.New(),
		BatchID: uuid.New(),
		NormalizedCandidate: core.NormalizedCandidate{
			ProductName:       name,
			ManufacturerName:  "Nestle",
			Brand:             "Nestle",
			VariantNormalized: "400G x 1",
		},
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStagingCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewStaging()
	rec := record("Milo", core.StatusPending, time.Now())
	require.NoError(t, s.InsertStaging(ctx, rec))

	reason := "blurry image"
	got, err := s.CompareAndSetStatus(ctx, rec.ID, core.StatusPending, core.StatusRejected, &reason)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "blurry image", *got.RejectionReason)

	_, err = s.CompareAndSetStatus(ctx, rec.ID, core.StatusPending, core.StatusApproved, nil)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = s.CompareAndSetStatus(ctx, uuid.New(), core.StatusPending, core.StatusApproved, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStagingReasonClearedOutsideRejected(t *testing.T) {
	ctx := context.Background()
	s := NewStaging()
	rec := record("Milo", core.StatusPending, time.Now())
	require.NoError(t, s.InsertStaging(ctx, rec))

	reason := "ignored"
	got, err := s.CompareAndSetStatus(ctx, rec.ID, core.StatusPending, core.StatusApproved, &reason)
	require.NoError(t, err)
	assert.Nil(t, got.RejectionReason)
}

func TestStagingDeleteWithStatuses(t *testing.T) {
	ctx := context.Background()
	s := NewStaging()
	rec := record("Milo", core.StatusApproved, time.Now())
	require.NoError(t, s.InsertStaging(ctx, rec))

	err := s.DeleteStaging(ctx, rec.ID, core.StatusDuplicate)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.DeleteStaging(ctx, rec.ID, core.StatusApproved))
	assert.Equal(t, 0, s.Len())

	assert.ErrorIs(t, s.DeleteStaging(ctx, rec.ID), core.ErrNotFound)
}

func TestStagingListOrderAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewStaging()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	late := record("Milo Refill", core.StatusPending, base.Add(time.Minute))
	early := record("MILO Tin", core.StatusPending, base)
	other := record("Peak Milk", core.StatusPending, base)
	approved := record("Milo Cube", core.StatusApproved, base)
	for _, r := range []core.StagingRecord{late, early, other, approved} {
		require.NoError(t, s.InsertStaging(ctx, r))
	}

	pending := core.StatusPending
	got, err := s.ListStaging(ctx, core.StagingFilter{Status: &pending, Search: "milo"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	all, err := s.ListStaging(ctx, core.StagingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStagingUpdatePendingOnly(t *testing.T) {
	ctx := context.Background()
	s := NewStaging()
	rec := record("Milo", core.StatusApproved, time.Now())
	require.NoError(t, s.InsertStaging(ctx, rec))

	rec.ProductName = "Milo Active-Go"
	_, err := s.UpdatePending(ctx, rec)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestCanonicalUniqueKey(t *testing.T) {
	ctx := context.Background()
	existing := core.NewCanonicalProduct(record("Milo", core.StatusApproved, time.Now()), time.Now())
	c := NewCanonical(existing)

	found, err := c.FindByKey(ctx, existing.Key())
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := c.FindByKey(ctx, core.ProductKey{ProductName: "milo", ManufacturerName: "Nestle", VariantNormalized: "400G x 1"})
	require.NoError(t, err)
	assert.Nil(t, missing, "keys are case-sensitive")

	fresh := core.NewCanonicalProduct(record("Bournvita", core.StatusApproved, time.Now()), time.Now())
	again := core.NewCanonicalProduct(record("Milo", core.StatusApproved, time.Now()), time.Now())

	res, err := c.InsertMany(ctx, []core.CanonicalProduct{fresh, again})
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, fresh.ID, res.Inserted[0].ID)
	assert.ErrorIs(t, res.Failed[0].Err, core.ErrDuplicateKey)
	assert.Len(t, c.Products(), 2)
}

func TestSetUnavailable(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	c := NewCanonical()
	c.SetUnavailable(down)
	_, err := c.FindByKey(ctx, core.ProductKey{})
	assert.ErrorIs(t, err, down)

	c.SetUnavailable(nil)
	_, err = c.FindByKey(ctx, core.ProductKey{})
	assert.NoError(t, err)

	tax := NewTaxonomy(nil)
	tax.SetUnavailable(down)
	_, err = tax.ListCategories(ctx)
	assert.ErrorIs(t, err, down)
}

func TestTaxonomyDefaults(t *testing.T) {
	cats, err := NewTaxonomy(nil).ListCategories(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cats)
}

func TestAuditLogListNewestFirst(t *testing.T) {
	var a AuditLog
	ctx := context.Background()
	for _, act := range []core.AuditAction{core.ActionIngest, core.ActionApprove, core.ActionCommit} {
		require.NoError(t, a.InsertAudit(ctx, core.AuditEntry{Action: act}))
	}

	got, err := a.ListAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.ActionCommit, got[0].Action)
	assert.Equal(t, core.ActionApprove, got[1].Action)

	all, err := a.ListAudit(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
