package core

// validation.go checks candidates before they are staged or edited.
//
// CandidateProblems returns every problem (for the API's edit response);
// ValidateCandidate returns the first, which is all the bulk paths need.

import (
	"net/url"
	"strings"
)

type requiredField struct {
	name  string
	value func(NormalizedCandidate) string
}

// Category, subcategory, weight and image are optional.
var requiredCandidateFields = []requiredField{
	{"productName", func(c NormalizedCandidate) string { return c.ProductName }},
	{"manufacturerName", func(c NormalizedCandidate) string { return c.ManufacturerName }},
	{"brand", func(c NormalizedCandidate) string { return c.Brand }},
	{"variant", func(c NormalizedCandidate) string { return c.VariantNormalized }},
}

// CandidateProblems lists every validation problem of c.
func CandidateProblems(c NormalizedCandidate) []*ValidationError {
	var problems []*ValidationError

	for _, f := range requiredCandidateFields {
		if strings.TrimSpace(f.value(c)) == "" {
			problems = append(problems, &ValidationError{
				Field:   f.name,
				Message: "required field is empty",
			})
		}
	}

	if c.WeightKg != nil && *c.WeightKg < 0 {
		problems = append(problems, &ValidationError{
			Field:   "weightKg",
			Message: "weight must not be negative",
		})
	}

	if c.ImageURL != "" && !validImageURL(c.ImageURL) {
		problems = append(problems, &ValidationError{
			Field:   "imageUrl",
			Value:   c.ImageURL,
			Message: "invalid url, must be absolute http or https",
		})
	}

	if c.ProductSubcategory != nil && c.ProductCategory == nil {
		problems = append(problems, &ValidationError{
			Field:   "productSubcategory",
			Value:   *c.ProductSubcategory,
			Message: "subcategory requires a category",
		})
	}

	return problems
}

// ValidateCandidate returns the first problem of c, or nil.
func ValidateCandidate(c NormalizedCandidate) error {
	if problems := CandidateProblems(c); len(problems) > 0 {
		return problems[0]
	}
	return nil
}

func validImageURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
