package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// Category is one taxonomy entry: a category and its ordered subcategories.
type Category struct {
	Name          string   `yaml:"name" json:"name"`
	Subcategories []string `yaml:"subcategories" json:"subcategories"`
}

type subcategoryRef struct {
	category    string
	subcategory string
}

// Taxonomy is an immutable, case-insensitive view over the category list.
// Build it once per run with NewTaxonomy and share it by pointer.
type Taxonomy struct {
	categories    []Category
	byCategory    map[string]string
	bySubcategory map[string]subcategoryRef
}

// NewTaxonomy copies cats and indexes them. When a subcategory name occurs
// under several categories the first category in list order owns it.
func NewTaxonomy(cats []Category) *Taxonomy {
	t := &Taxonomy{
		categories:    make([]Category, 0, len(cats)),
		byCategory:    make(map[string]string, len(cats)),
		bySubcategory: make(map[string]subcategoryRef),
	}

	for _, c := range cats {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		subs := make([]string, 0, len(c.Subcategories))
		for _, s := range c.Subcategories {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			subs = append(subs, s)
			key := fold(s)
			if _, exists := t.bySubcategory[key]; !exists {
				t.bySubcategory[key] = subcategoryRef{category: name, subcategory: s}
			}
		}
		t.categories = append(t.categories, Category{Name: name, Subcategories: subs})
		key := fold(name)
		if _, exists := t.byCategory[key]; !exists {
			t.byCategory[key] = name
		}
	}

	return t
}

// Categories returns a copy of the category list in its original order.
func (t *Taxonomy) Categories() []Category {
	if t == nil {
		return nil
	}
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Name: c.Name, Subcategories: append([]string(nil), c.Subcategories...)}
	}
	return out
}

// Len returns the number of categories.
func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.categories)
}

// LookupCategory resolves a category name case-insensitively.
func (t *Taxonomy) LookupCategory(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	c, ok := t.byCategory[fold(name)]
	return c, ok
}

// LookupSubcategory resolves a subcategory name to its owning category.
func (t *Taxonomy) LookupSubcategory(name string) (category, subcategory string, ok bool) {
	if t == nil {
		return "", "", false
	}
	ref, ok := t.bySubcategory[fold(name)]
	return ref.category, ref.subcategory, ok
}

// ParseTaxonomy decodes a YAML list of categories.
func ParseTaxonomy(data []byte) ([]Category, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	for i, c := range doc.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("parse taxonomy: category %d has no name", i)
		}
	}
	return doc.Categories, nil
}

// LoadTaxonomyFile reads and parses a taxonomy YAML file.
func LoadTaxonomyFile(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	return ParseTaxonomy(data)
}

// DefaultCategories returns the built-in seed taxonomy.
func DefaultCategories() []Category {
	cats, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(err)
	}
	return cats
}
