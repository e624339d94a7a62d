package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/classify"
)

// TaxonomySource supplies the category taxonomy.
type TaxonomySource interface {
	ListCategories(ctx context.Context) ([]classify.Category, error)
}

// CanonicalStore is the committed product catalog. Implementations enforce
// uniqueness of ProductKey; a second insert of a key fails with
// *DuplicateKeyError for that product.
type CanonicalStore interface {
	// FindByKey returns nil, nil when no product has the key.
	FindByKey(ctx context.Context, key ProductKey) (*CanonicalProduct, error)

	// InsertMany writes products independently and reports per-product
	// failures in the result. The error return is for failures that
	// prevented the batch from running at all.
	InsertMany(ctx context.Context, products []CanonicalProduct) (InsertManyResult, error)
}

// StagingStore persists staging records.
type StagingStore interface {
	InsertStaging(ctx context.Context, rec StagingRecord) error

	// GetStaging returns *NotFoundError when id does not exist.
	GetStaging(ctx context.Context, id uuid.UUID) (StagingRecord, error)

	// CompareAndSetStatus moves id from one status to another and stores
	// reason as the rejection reason. It fails with *InvalidStateError if
	// the current status is not from, and *NotFoundError if id is gone.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (StagingRecord, error)

	// UpdatePending replaces the candidate fields of a record that is
	// still pending.
	UpdatePending(ctx context.Context, rec StagingRecord) (StagingRecord, error)

	// DeleteStaging removes id. When statuses are given the record is only
	// removed if its current status is one of them, otherwise
	// *InvalidStateError is returned.
	DeleteStaging(ctx context.Context, id uuid.UUID, statuses ...Status) error

	// ListStaging returns matching records oldest first.
	ListStaging(ctx context.Context, filter StagingFilter) ([]StagingRecord, error)
}

// AuditSink records review actions.
type AuditSink interface {
	InsertAudit(ctx context.Context, entry AuditEntry) error
}
