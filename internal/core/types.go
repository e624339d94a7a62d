package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawRow is one spreadsheet line as read, before any normalization.
type RawRow struct {
	Line int // 1-indexed source line, for error attribution

	ProductName      string
	ManufacturerName string
	Variant          string
	ProductCategory  string // optional, "Category" or "Category > Subcategory"
	Brand            string // optional, defaults to the manufacturer
	ImageURL         string // optional
}

// Values returns the row's cells in a fixed order for failure reports.
func (r RawRow) Values() []string {
	return []string{r.ProductName, r.ManufacturerName, r.Variant, r.ProductCategory, r.Brand, r.ImageURL}
}

// NormalizedCandidate is the pipeline output and the payload of a staging
// record.
type NormalizedCandidate struct {
	ProductName        string  `json:"productName"`
	ManufacturerName   string  `json:"manufacturerName"`
	Brand              string  `json:"brand"`
	ProductCategory    *string `json:"productCategory"`
	ProductSubcategory *string `json:"productSubcategory"`
	VariantRaw         string  `json:"variantRaw"`
	VariantNormalized  string  `json:"variantNormalized"`
	WeightKg           *int64  `json:"weightKg"`
	ImageURL           string  `json:"imageUrl,omitempty"`
}

// Unparseable reports that no weight could be derived from the variant.
// Reviewers see these flagged rather than defaulted to zero.
func (c NormalizedCandidate) Unparseable() bool {
	return c.WeightKg == nil
}

// Unclassified reports that no category was assigned.
func (c NormalizedCandidate) Unclassified() bool {
	return c.ProductCategory == nil
}

// Key returns the canonical dedup key.
func (c NormalizedCandidate) Key() ProductKey {
	return ProductKey{
		ProductName:       c.ProductName,
		ManufacturerName:  c.ManufacturerName,
		VariantNormalized: c.VariantNormalized,
	}
}

// StagingRecord is a candidate under review.
type StagingRecord struct {
	ID      uuid.UUID `json:"id"`
	BatchID uuid.UUID `json:"batchId"`

	NormalizedCandidate

	Status          Status    `json:"status"`
	RejectionReason *string   `json:"rejectionReason"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ProductKey is the exact-match uniqueness key of the canonical catalog.
// Comparison is case-sensitive.
type ProductKey struct {
	ProductName       string `json:"productName"`
	ManufacturerName  string `json:"manufacturerName"`
	VariantNormalized string `json:"variantNormalized"`
}

func (k ProductKey) String() string {
	return fmt.Sprintf("(%q, %q, %q)", k.ProductName, k.ManufacturerName, k.VariantNormalized)
}

// CanonicalProduct is a committed catalog entry.
type CanonicalProduct struct {
	ID                 uuid.UUID `json:"id"`
	ProductName        string    `json:"productName"`
	ManufacturerName   string    `json:"manufacturerName"`
	Brand              string    `json:"brand"`
	ProductCategory    *string   `json:"productCategory"`
	ProductSubcategory *string   `json:"productSubcategory"`
	VariantNormalized  string    `json:"variantNormalized"`
	WeightKg           *int64    `json:"weightKg"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	SourceStagingID    uuid.UUID `json:"sourceStagingId"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Key returns the product's uniqueness key.
func (p CanonicalProduct) Key() ProductKey {
	return ProductKey{
		ProductName:       p.ProductName,
		ManufacturerName:  p.ManufacturerName,
		VariantNormalized: p.VariantNormalized,
	}
}

// NewCanonicalProduct builds the catalog entry for an approved record.
func NewCanonicalProduct(r StagingRecord, now time.Time) CanonicalProduct {
	return CanonicalProduct{
		ID:                 uuid.New(),
		ProductName:        r.ProductName,
		ManufacturerName:   r.ManufacturerName,
		Brand:              r.Brand,
		ProductCategory:    r.ProductCategory,
		ProductSubcategory: r.ProductSubcategory,
		VariantNormalized:  r.VariantNormalized,
		WeightKg:           r.WeightKg,
		ImageURL:           r.ImageURL,
		SourceStagingID:    r.ID,
		CreatedAt:          now,
	}
}

// CandidatePatch holds the fields a reviewer may change on a pending
// record. Nil fields are left as they are; an empty category clears it.
type CandidatePatch struct {
	ProductName        *string `json:"productName,omitempty"`
	ManufacturerName   *string `json:"manufacturerName,omitempty"`
	Brand              *string `json:"brand,omitempty"`
	Variant            *string `json:"variant,omitempty"`
	ProductCategory    *string `json:"productCategory,omitempty"`
	ProductSubcategory *string `json:"productSubcategory,omitempty"`
	ImageURL           *string `json:"imageUrl,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CandidatePatch) Empty() bool {
	return p.ProductName == nil && p.ManufacturerName == nil && p.Brand == nil &&
		p.Variant == nil && p.ProductCategory == nil && p.ProductSubcategory == nil &&
		p.ImageURL == nil
}

// StagingFilter selects staging records. A nil Status matches all.
type StagingFilter struct {
	Status *Status
	Search string // case-insensitive substring of ProductName
}

// InsertFailure is one product a batch insert could not write.
type InsertFailure struct {
	Product CanonicalProduct
	Err     error
}

// InsertManyResult splits a batch insert into written and failed products.
type InsertManyResult struct {
	Inserted []CanonicalProduct
	Failed   []InsertFailure
}

// FailedRow describes a spreadsheet row that could not be staged.
type FailedRow struct {
	FileName   string   `json:"fileName"`
	LineNumber int      `json:"lineNumber"`
	Reason     string   `json:"reason"`
	Data       []string `json:"data,omitempty"`
}

// IngestResult summarizes one spreadsheet ingest.
type IngestResult struct {
	BatchID      uuid.UUID       `json:"batchId"`
	FileName     string          `json:"fileName"`
	TotalRows    int             `json:"totalRows"`
	Staged       int             `json:"staged"`
	Failed       int             `json:"failed"`
	Unparseable  int             `json:"unparseable"`
	Unclassified int             `json:"unclassified"`
	FailedRows   []FailedRow     `json:"failedRows,omitempty"`
	Records      []StagingRecord `json:"records,omitempty"`
	Duration     time.Duration   `json:"durationNs"`
}
