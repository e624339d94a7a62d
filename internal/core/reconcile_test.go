package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/store/memory"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func existingProduct(name, manufacturer, variant string) core.CanonicalProduct {
	return core.NewCanonicalProduct(core.StagingRecord{
		ID:                  uuid.New(),
		NormalizedCandidate: candidate(name, manufacturer, variant),
	}, fixedNow)
}

// approveAll stages cands and approves them.
func (f *fixture) approveAll(t *testing.T, cands ...core.NormalizedCandidate) []uuid.UUID {
	t.Helper()
	ids := f.stage(t, cands...)
	res, err := f.svc.Transition(context.Background(), ids, core.StatusApproved, "")
	require.NoError(t, err)
	require.Zero(t, res.Failed())
	return ids
}

func TestReconcileEndToEnd(t *testing.T) {
	f := newFixture(t, existingProduct("Peak Milk", "FrieslandCampina", "400G x 1"))
	ids := f.approveAll(t,
		candidate("Peak Milk", "FrieslandCampina", "400G x 1"),
		candidate("Golden Penny Semovita", "Flour Mills", "1KG x 10"),
		candidate("Maltina", "Nigerian Breweries", "330ML x 24"),
	)

	res, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Committed, 2)
	require.Len(t, res.Duplicates, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, ids[0], res.Duplicates[0].ID)
	assert.Equal(t, core.StatusDuplicate, res.Duplicates[0].Status)

	// None of the three is left awaiting commit.
	for _, id := range ids[1:] {
		_, err := f.svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
	assert.Empty(t, mustList(t, f, core.StatusApproved))
	assert.Empty(t, mustList(t, f, core.StatusPending))
	assert.Len(t, f.canonical.Products(), 3)
}

func TestReconcileIDsReportsUnknownIDs(t *testing.T) {
	f := newFixture(t)
	ids := f.approveAll(t,
		candidate("Golden Penny Semovita", "Flour Mills", "1KG x 10"),
		candidate("Maltina", "Nigerian Breweries", "330ML x 24"),
		candidate("Peak Milk", "FrieslandCampina", "400G x 1"),
	)
	missing := uuid.New()

	res, err := f.svc.ReconcileIDs(context.Background(), []uuid.UUID{ids[0], ids[1], missing, ids[2], ids[0]})
	require.NoError(t, err)

	assert.Len(t, res.Committed, 3)
	assert.Empty(t, res.Duplicates)
	require.Len(t, res.Failed, 1, "a repeated id is reconciled once")
	assert.Equal(t, missing, res.Failed[0].Record.ID)
	assert.ErrorIs(t, res.Failed[0].Err, core.ErrNotFound)
	assert.Len(t, f.canonical.Products(), 3)
}

func TestReconcileIDsLimits(t *testing.T) {
	f := newFixture(t)
	f.svc.Config().Review.MaxBulkIDs = 2

	_, err := f.svc.ReconcileIDs(context.Background(), []uuid.UUID{uuid.New(), uuid.New(), uuid.New()})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.ReconcileIDs(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	res, err := f.svc.ReconcileIDs(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Len(t, res.Failed, 1)
	assert.Empty(t, f.canonical.Products())
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.approveAll(t, candidate("Indomie Chicken", "Dufil", "70G x 40"))

	first, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Committed, 1)

	// The same product comes in again and is approved a second time.
	again := f.approveAll(t, candidate("Indomie Chicken", "Dufil", "70G x 40"))
	second, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)

	assert.Empty(t, second.Committed)
	require.Len(t, second.Duplicates, 1)
	assert.Equal(t, again[0], second.Duplicates[0].ID)
	assert.Len(t, f.canonical.Products(), 1)
}

func TestReconcileAllDuplicates(t *testing.T) {
	f := newFixture(t,
		existingProduct("Milo", "Nestle", "400G x 1"),
		existingProduct("Ovaltine", "Nestle", "400G x 1"),
	)
	f.approveAll(t,
		candidate("Milo", "Nestle", "400G x 1"),
		candidate("Ovaltine", "Nestle", "400G x 1"),
	)

	res, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Committed)
	assert.Len(t, res.Duplicates, 2)
	assert.Len(t, mustList(t, f, core.StatusDuplicate), 2)
}

func TestReconcileNoDuplicates(t *testing.T) {
	f := newFixture(t)
	f.approveAll(t,
		candidate("Milo", "Nestle", "400G x 1"),
		candidate("Ovaltine", "Nestle", "400G x 1"),
	)

	res, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Committed, 2)
	assert.Empty(t, res.Duplicates)
	assert.Zero(t, f.staging.Len())
}

func TestReconcileRepeatedKeyInOneRun(t *testing.T) {
	f := newFixture(t)
	ids := f.approveAll(t,
		candidate("Milo", "Nestle", "400G x 1"),
		candidate("Milo", "Nestle", "400G x 1"),
	)

	res, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Committed, 1)
	require.Len(t, res.Duplicates, 1)
	assert.ElementsMatch(t, ids, []uuid.UUID{res.Committed[0].SourceStagingID, res.Duplicates[0].ID})
	assert.Len(t, f.canonical.Products(), 1)
}

func TestReconcileKeyIsCaseSensitive(t *testing.T) {
	f := newFixture(t, existingProduct("Milo", "Nestle", "400G x 1"))
	f.approveAll(t, candidate("MILO", "Nestle", "400G x 1"))

	res, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Committed, 1)
	assert.Empty(t, res.Duplicates)
}

func TestReconcileDuplicateReapproved(t *testing.T) {
	f := newFixture(t, existingProduct("Milo", "Nestle", "400G x 1"))
	ids := f.approveAll(t, candidate("Milo", "Nestle", "400G x 1"))

	_, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.StatusDuplicate, f.status(t, ids[0]))

	res, err := f.svc.Transition(context.Background(), ids, core.StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded())
	assert.Equal(t, core.StatusApproved, f.status(t, ids[0]))
}

func TestReconcileRejectsNonApproved(t *testing.T) {
	f := newFixture(t)
	ids := f.stage(t, candidate("Milo", "Nestle", "400G x 1"))
	rec, err := f.svc.Get(context.Background(), ids[0])
	require.NoError(t, err)

	res := f.svc.Reconcile(context.Background(), []core.StagingRecord{rec})
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, core.ErrInvalidState)
	assert.Empty(t, f.canonical.Products())
}

func TestReconcileCanonicalUnavailable(t *testing.T) {
	f := newFixture(t)
	ids := f.approveAll(t,
		candidate("Milo", "Nestle", "400G x 1"),
		candidate("Ovaltine", "Nestle", "400G x 1"),
	)
	f.canonical.SetUnavailable(errors.New("dial tcp: connection refused"))

	res, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Committed)
	assert.Empty(t, res.Duplicates)
	require.Len(t, res.Failed, 2)
	for _, fail := range res.Failed {
		assert.ErrorIs(t, fail.Err, core.ErrUpstreamUnavailable)
		assert.True(t, core.IsRetryable(fail.Err))
	}
	for _, id := range ids {
		assert.Equal(t, core.StatusApproved, f.status(t, id))
	}
}

// racingCatalog misses every lookup, as if another commit inserted the
// key between lookup and insert.
type racingCatalog struct {
	*memory.Canonical
}

func (racingCatalog) FindByKey(context.Context, core.ProductKey) (*core.CanonicalProduct, error) {
	return nil, nil
}

func TestReconcileLateDuplicateFromInsert(t *testing.T) {
	staging := memory.NewStaging()
	catalog := racingCatalog{memory.NewCanonical(existingProduct("Milo", "Nestle", "400G x 1"))}
	svc, err := core.NewService(core.Deps{
		Staging:   staging,
		Canonical: catalog,
		Taxonomy:  memory.NewTaxonomy(nil),
	}, nil)
	require.NoError(t, err)

	staged := svc.Stage(context.Background(), uuid.New(), []core.NormalizedCandidate{
		candidate("Milo", "Nestle", "400G x 1"),
		candidate("Ovaltine", "Nestle", "400G x 1"),
	})
	_, err = svc.Transition(context.Background(), staged.SucceededIDs(), core.StatusApproved, "")
	require.NoError(t, err)

	res, err := svc.ReconcileApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Committed, 1)
	assert.Equal(t, "Ovaltine", res.Committed[0].ProductName)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, "Milo", res.Duplicates[0].ProductName)
	assert.Len(t, catalog.Products(), 2)
}

func TestReconcileAudit(t *testing.T) {
	f := newFixture(t, existingProduct("Milo", "Nestle", "400G x 1"))
	f.approveAll(t,
		candidate("Milo", "Nestle", "400G x 1"),
		candidate("Ovaltine", "Nestle", "400G x 1"),
	)

	_, err := f.svc.ReconcileApproved(context.Background())
	require.NoError(t, err)

	var actions []core.AuditAction
	for _, e := range f.audit.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []core.AuditAction{core.ActionApprove, core.ActionCommit, core.ActionMarkDuplicate}, actions)
}
