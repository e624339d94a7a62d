package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/intake/internal/core"
)

const productColumns = `id, product_name, manufacturer_name, brand, product_category,
	product_subcategory, variant_normalized, weight_kg, image_url, source_staging_id, created_at`

func (s *Store) FindByKey(ctx context.Context, key core.ProductKey) (*core.CanonicalProduct, error) {
	const q = `SELECT ` + productColumns + ` FROM products
		WHERE product_name = $1 AND manufacturer_name = $2 AND variant_normalized = $3`

	var (
		p          core.CanonicalProduct
		id, source pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q, key.ProductName, key.ManufacturerName, key.VariantNormalized).Scan(
		&id, &p.ProductName, &p.ManufacturerName, &p.Brand, &p.ProductCategory,
		&p.ProductSubcategory, &p.VariantNormalized, &p.WeightKg, &p.ImageURL, &source, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, nil)
	}
	p.ID = fromPgUUID(id)
	p.SourceStagingID = fromPgUUID(source)
	return &p, nil
}

// InsertMany writes all products in one transaction. Each insert runs
// under its own savepoint so a failing row is rolled back alone and the
// rest still commit.
func (s *Store) InsertMany(ctx context.Context, products []core.CanonicalProduct) (core.InsertManyResult, error) {
	const q = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var res core.InsertManyResult
	if len(products) == 0 {
		return res, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, translate(fmt.Errorf("begin: %w", err), nil)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, p := range products {
		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return core.InsertManyResult{}, translate(fmt.Errorf("create savepoint: %w", err), nil)
		}

		_, err := tx.Exec(ctx, q,
			toPgUUID(p.ID), p.ProductName, p.ManufacturerName, p.Brand, p.ProductCategory,
			p.ProductSubcategory, p.VariantNormalized, p.WeightKg, p.ImageURL, toPgUUID(p.SourceStagingID), p.CreatedAt,
		)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return core.InsertManyResult{}, translate(fmt.Errorf("rollback savepoint: %w", rbErr), nil)
			}
			key := p.Key()
			res.Failed = append(res.Failed, core.InsertFailure{Product: p, Err: translate(err, &key)})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return core.InsertManyResult{}, translate(fmt.Errorf("release savepoint: %w", err), nil)
		}
		res.Inserted = append(res.Inserted, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.InsertManyResult{}, translate(fmt.Errorf("commit: %w", err), nil)
	}
	return res, nil
}
