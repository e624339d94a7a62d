package core

import (
	"strings"

	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/variant"
)

// categorySeparator splits "Category > Subcategory".
const categorySeparator = ">"

// Pipeline turns raw rows into normalized candidates. It holds one
// taxonomy snapshot and is safe for concurrent use.
type Pipeline struct {
	classifier *classify.Classifier
	taxonomy   *classify.Taxonomy
}

// NewPipeline binds a classifier to a taxonomy snapshot. tax may be nil.
func NewPipeline(c *classify.Classifier, tax *classify.Taxonomy) *Pipeline {
	if c == nil {
		c = classify.New(classify.DefaultRules())
	}
	return &Pipeline{classifier: c, taxonomy: tax}
}

// Normalize converts one row. Cells arrive already cleaned by the reader,
// so text is only trimmed here. It never fails: missing required fields
// are left empty for Stage to reject, and an unreadable variant leaves the
// weight nil.
func (p *Pipeline) Normalize(row RawRow) NormalizedCandidate {
	c := NormalizedCandidate{
		ProductName:      strings.TrimSpace(row.ProductName),
		ManufacturerName: strings.TrimSpace(row.ManufacturerName),
		Brand:            strings.TrimSpace(row.Brand),
		ImageURL:         strings.TrimSpace(row.ImageURL),
	}
	if c.Brand == "" {
		c.Brand = c.ManufacturerName
	}

	applyVariant(&c, row.Variant)

	if given := strings.TrimSpace(row.ProductCategory); given != "" {
		c.ProductCategory, c.ProductSubcategory = p.resolveGivenCategory(given)
	} else if cls, ok := p.classifier.Classify(c.ProductName, c.ManufacturerName, p.taxonomy); ok {
		c.ProductCategory = optional(cls.Category)
		c.ProductSubcategory = optional(cls.Subcategory)
	}

	return c
}

// resolveGivenCategory honors a category supplied in the sheet, snapping
// it to the taxonomy spelling when the name is known.
func (p *Pipeline) resolveGivenCategory(given string) (*string, *string) {
	cat, sub, _ := strings.Cut(given, categorySeparator)
	cat, sub = strings.TrimSpace(cat), strings.TrimSpace(sub)

	if known, ok := p.taxonomy.LookupCategory(cat); ok {
		cat = known
	} else if owner, known, ok := p.taxonomy.LookupSubcategory(cat); ok && sub == "" {
		cat, sub = owner, known
	}
	return optional(cat), optional(sub)
}

// applyVariant stores the raw variant and its normalized form.
func applyVariant(c *NormalizedCandidate, raw string) {
	res := variant.Normalize(raw)
	c.VariantRaw = strings.TrimSpace(raw)
	c.VariantNormalized = res.Text
	c.WeightKg = res.WeightKg
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
