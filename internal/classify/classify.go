// Package classify assigns a product category from its name and manufacturer.
//
// Resolution order, first match wins:
//
//  1. Token rules: ordered (substring -> category) rules checked against every
//     whitespace token of the product name. Rule order decides, token
//     position does not.
//  2. Manufacturer overrides: substring match on the folded manufacturer name.
//  3. Taxonomy fallback: each token looked up as a category name, then as a
//     subcategory name.
//
// When nothing matches the product is left unclassified; there is no
// default category.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/goccy/go-yaml"
	"golang.org/x/text/cases"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// TokenRule maps any of its substrings, found inside a name token, to a category.
type TokenRule struct {
	Contains    []string `yaml:"contains"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory,omitempty"`
}

// ManufacturerRule maps a manufacturer substring to a category.
type ManufacturerRule struct {
	Contains string `yaml:"contains"`
	Category string `yaml:"category"`
}

// Rules is the configurable rule data. Slice order is evaluation order.
type Rules struct {
	TokenRules        []TokenRule        `yaml:"token_rules"`
	ManufacturerRules []ManufacturerRule `yaml:"manufacturer_rules"`
}

// Validate rejects rules that could never match or would assign nothing.
func (r Rules) Validate() error {
	for i, tr := range r.TokenRules {
		if strings.TrimSpace(tr.Category) == "" {
			return fmt.Errorf("token rule %d: category is empty", i)
		}
		if len(tr.Contains) == 0 {
			return fmt.Errorf("token rule %d (%s): no substrings", i, tr.Category)
		}
		for _, c := range tr.Contains {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("token rule %d (%s): empty substring", i, tr.Category)
			}
		}
	}
	for i, mr := range r.ManufacturerRules {
		if strings.TrimSpace(mr.Category) == "" {
			return fmt.Errorf("manufacturer rule %d: category is empty", i)
		}
		if strings.TrimSpace(mr.Contains) == "" {
			return fmt.Errorf("manufacturer rule %d (%s): empty substring", i, mr.Category)
		}
	}
	return nil
}

// ParseRules decodes and validates a YAML rule table.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	return r, nil
}

// LoadRulesFile reads a rule table from disk. An empty path yields the
// built-in defaults.
func LoadRulesFile(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(err)
	}
	return r
}

// Source names the resolution step that produced a classification.
type Source string

const (
	SourceTokenRule    Source = "token_rule"
	SourceManufacturer Source = "manufacturer"
	SourceTaxonomy     Source = "taxonomy"
)

// Classification is a resolved category, optionally with a subcategory.
type Classification struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Source      Source `json:"source"`
	Match       string `json:"match"` // substring or token that triggered the match
}

// String renders "Category" or "Category > Subcategory".
func (c Classification) String() string {
	if c.Subcategory == "" {
		return c.Category
	}
	return c.Category + " > " + c.Subcategory
}

type foldedTokenRule struct {
	contains []string
	rule     TokenRule
}

type foldedManufacturerRule struct {
	contains string
	rule     ManufacturerRule
}

// Classifier evaluates a fixed rule table. Safe for concurrent use.
type Classifier struct {
	tokenRules        []foldedTokenRule
	manufacturerRules []foldedManufacturerRule
}

// New builds a classifier from rules, pre-folding every substring.
func New(rules Rules) *Classifier {
	c := &Classifier{
		tokenRules:        make([]foldedTokenRule, 0, len(rules.TokenRules)),
		manufacturerRules: make([]foldedManufacturerRule, 0, len(rules.ManufacturerRules)),
	}
	for _, r := range rules.TokenRules {
		fr := foldedTokenRule{rule: r}
		for _, s := range r.Contains {
			fr.contains = append(fr.contains, fold(strings.TrimSpace(s)))
		}
		c.tokenRules = append(c.tokenRules, fr)
	}
	for _, r := range rules.ManufacturerRules {
		c.manufacturerRules = append(c.manufacturerRules, foldedManufacturerRule{
			contains: fold(strings.TrimSpace(r.Contains)),
			rule:     r,
		})
	}
	return c
}

// Classify resolves a category for the product. tax may be nil, in which
// case the taxonomy step is skipped.
func (c *Classifier) Classify(productName, manufacturerName string, tax *Taxonomy) (Classification, bool) {
	tokens := strings.Fields(fold(productName))

	for _, r := range c.tokenRules {
		for _, tok := range tokens {
			for _, sub := range r.contains {
				if strings.Contains(tok, sub) {
					return Classification{
						Category:    r.rule.Category,
						Subcategory: r.rule.Subcategory,
						Source:      SourceTokenRule,
						Match:       sub,
					}, true
				}
			}
		}
	}

	manufacturer := fold(strings.TrimSpace(manufacturerName))
	if manufacturer != "" {
		for _, r := range c.manufacturerRules {
			if strings.Contains(manufacturer, r.contains) {
				return Classification{
					Category: r.rule.Category,
					Source:   SourceManufacturer,
					Match:    r.contains,
				}, true
			}
		}
	}

	if tax != nil {
		for _, tok := range tokens {
			tok = trimPunct(tok)
			if tok == "" {
				continue
			}
			if cat, ok := tax.LookupCategory(tok); ok {
				return Classification{Category: cat, Source: SourceTaxonomy, Match: tok}, true
			}
			if cat, sub, ok := tax.LookupSubcategory(tok); ok {
				return Classification{Category: cat, Subcategory: sub, Source: SourceTaxonomy, Match: tok}, true
			}
		}
	}

	return Classification{}, false
}

// fold returns the case-folded form of s. A Caser keeps state, so each
// call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
