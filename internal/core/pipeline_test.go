package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/intake/internal/classify"
)

func testPipeline() *Pipeline {
	return NewPipeline(nil, classify.NewTaxonomy(classify.DefaultCategories()))
}

func TestPipelineNormalize(t *testing.T) {
	c := testPipeline().Normalize(RawRow{
		ProductName:      "Iyan Poundo Mix",
		ManufacturerName: "  The Coca-Cola Company ",
		Variant:          "12 x 1Kg",
	})

	assert.Equal(t, "Iyan Poundo Mix", c.ProductName)
	assert.Equal(t, "The Coca-Cola Company", c.ManufacturerName)
	assert.Equal(t, "The Coca-Cola Company", c.Brand, "brand defaults to manufacturer")
	assert.Equal(t, "1KG x 12", c.VariantNormalized)
	assert.Equal(t, "12 x 1Kg", c.VariantRaw)
	require.NotNil(t, c.WeightKg)
	assert.EqualValues(t, 12, *c.WeightKg)

	require.NotNil(t, c.ProductCategory)
	assert.Equal(t, "Poundo, Wheat & Semolina", *c.ProductCategory)
}

func TestPipelineKeepsInnerQuotes(t *testing.T) {
	p := testPipeline()
	for _, name := range []string{`Lipton Tea 'Yellow Label'`, `Coca-Cola "Classic"`, `'Peak' Milk`} {
		c := p.Normalize(RawRow{ProductName: name, ManufacturerName: "Acme", Variant: "1KG x 1"})
		assert.Equal(t, name, c.ProductName)
	}

	// A name read from a sheet and the same name typed into the API share a key.
	read := p.Normalize(RawRow{ProductName: CleanCell(`Lipton Tea 'Yellow Label'`), ManufacturerName: "Unilever", Variant: "50G x 12"})
	typed := p.Normalize(RawRow{ProductName: "Lipton Tea 'Yellow Label'", ManufacturerName: "Unilever", Variant: "12 x 50G"})
	assert.Equal(t, read.Key(), typed.Key())
}

func TestPipelineOversizedVariant(t *testing.T) {
	c := testPipeline().Normalize(RawRow{
		ProductName:      "Golden Penny Semovita",
		ManufacturerName: "Flour Mills",
		Variant:          "10000000000000000000000G x 1",
	})
	assert.Nil(t, c.WeightKg)
	assert.True(t, c.Unparseable())
	assert.NoError(t, ValidateCandidate(c))
}

func TestPipelineUnparseableVariant(t *testing.T) {
	c := testPipeline().Normalize(RawRow{
		ProductName:      "Peak Milk",
		ManufacturerName: "FrieslandCampina",
		Variant:          "family pack",
	})

	assert.Nil(t, c.WeightKg)
	assert.True(t, c.Unparseable())
	assert.Equal(t, "family pack", c.VariantNormalized)
	assert.NoError(t, ValidateCandidate(c))
}

func TestPipelineGivenCategory(t *testing.T) {
	p := testPipeline()

	tests := []struct {
		name    string
		given   string
		wantCat string
		wantSub *string
	}{
		{"snapped to taxonomy spelling", "dairy > Milk", "Dairy", strPtr("Milk")},
		{"category only", "household", "Household", nil},
		{"subcategory given as category", "margarine", "Oils & Fats", strPtr("Margarine")},
		{"unknown kept as written", "Frozen Foods", "Frozen Foods", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := p.Normalize(RawRow{
				ProductName:      "Some Product",
				ManufacturerName: "Acme",
				Variant:          "1KG x 1",
				ProductCategory:  tt.given,
			})
			require.NotNil(t, c.ProductCategory)
			assert.Equal(t, tt.wantCat, *c.ProductCategory)
			assert.Equal(t, tt.wantSub, c.ProductSubcategory)
		})
	}
}

func TestPipelineUnclassified(t *testing.T) {
	c := testPipeline().Normalize(RawRow{
		ProductName:      "Mystery Item",
		ManufacturerName: "Unknown Ltd",
		Variant:          "1KG x 1",
	})
	assert.True(t, c.Unclassified())
	assert.Nil(t, c.ProductSubcategory)
}

func TestCandidateProblems(t *testing.T) {
	sub := "Milk"
	weight := int64(-1)
	c := NormalizedCandidate{
		ProductName:        "Peak",
		ManufacturerName:   "",
		Brand:              "Peak",
		VariantNormalized:  "400G x 1",
		WeightKg:           &weight,
		ImageURL:           "images/peak.png",
		ProductSubcategory: &sub,
	}

	var fields []string
	for _, p := range CandidateProblems(c) {
		fields = append(fields, p.Field)
	}
	assert.Equal(t, []string{"manufacturerName", "weightKg", "imageUrl", "productSubcategory"}, fields)

	err := ValidateCandidate(c)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "manufacturerName")
}

func TestApplyPatch(t *testing.T) {
	cat, sub := "Dairy", "Milk"
	c := NormalizedCandidate{
		ProductName:        "Peak",
		ProductCategory:    &cat,
		ProductSubcategory: &sub,
		VariantNormalized:  "400G x 1",
	}

	variant := "2x1.5ltr"
	empty := ""
	changed := applyPatch(&c, CandidatePatch{Variant: &variant, ProductCategory: &empty})

	assert.Equal(t, []string{"variant", "productCategory"}, changed)
	assert.Equal(t, "1.5L x 2", c.VariantNormalized)
	require.NotNil(t, c.WeightKg)
	assert.EqualValues(t, 3, *c.WeightKg)
	assert.Nil(t, c.ProductCategory)
	assert.Nil(t, c.ProductSubcategory)
}

func strPtr(s string) *string { return &s }
