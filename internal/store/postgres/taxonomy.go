package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/intake/internal/classify"
)

func (s *Store) ListCategories(ctx context.Context) ([]classify.Category, error) {
	const q = `SELECT c.name, s.name
		FROM categories c
		LEFT JOIN subcategories s ON s.category_id = c.id
		ORDER BY c.position, c.id, s.position, s.id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var cats []classify.Category
	for rows.Next() {
		var (
			cat string
			sub *string
		)
		if err := rows.Scan(&cat, &sub); err != nil {
			return nil, translate(fmt.Errorf("scan category: %w", err), nil)
		}
		if n := len(cats); n == 0 || cats[n-1].Name != cat {
			cats = append(cats, classify.Category{Name: cat})
		}
		if sub != nil {
			last := &cats[len(cats)-1]
			last.Subcategories = append(last.Subcategories, *sub)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, nil)
	}
	return cats, nil
}

// SeedTaxonomy upserts cats, keeping list order as display order. Existing
// entries not in cats are left alone. It returns the number of
// subcategories written.
func (s *Store) SeedTaxonomy(ctx context.Context, cats []classify.Category) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, translate(fmt.Errorf("begin: %w", err), nil)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	written := 0
	for i, c := range cats {
		var id int
		err := tx.QueryRow(ctx, `
			INSERT INTO categories (name, position) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position
			RETURNING id`, c.Name, i).Scan(&id)
		if err != nil {
			return 0, translate(fmt.Errorf("upsert category %q: %w", c.Name, err), nil)
		}

		for j, sub := range c.Subcategories {
			_, err := tx.Exec(ctx, `
				INSERT INTO subcategories (category_id, name, position) VALUES ($1, $2, $3)
				ON CONFLICT (category_id, name) DO UPDATE SET position = EXCLUDED.position`,
				id, sub, j)
			if err != nil {
				return 0, translate(fmt.Errorf("upsert subcategory %q: %w", sub, err), nil)
			}
			written++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, translate(fmt.Errorf("commit: %w", err), nil)
	}
	return written, nil
}
