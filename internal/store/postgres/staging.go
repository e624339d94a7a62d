package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/intake/internal/core"
)

const stagingColumns = `id, batch_id, product_name, manufacturer_name, brand,
	product_category, product_subcategory, variant_raw, variant_normalized,
	weight_kg, image_url, status, rejection_reason, created_at, updated_at`

func scanStaging(row pgx.Row) (core.StagingRecord, error) {
	var (
		rec         core.StagingRecord
		id, batchID pgtype.UUID
		status      string
	)
	err := row.Scan(
		&id, &batchID, &rec.ProductName, &rec.ManufacturerName, &rec.Brand,
		&rec.ProductCategory, &rec.ProductSubcategory, &rec.VariantRaw, &rec.VariantNormalized,
		&rec.WeightKg, &rec.ImageURL, &status, &rec.RejectionReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return core.StagingRecord{}, err
	}
	rec.ID = fromPgUUID(id)
	rec.BatchID = fromPgUUID(batchID)
	rec.Status = core.Status(status)
	return rec, nil
}

func (s *Store) InsertStaging(ctx context.Context, rec core.StagingRecord) error {
	const q = `INSERT INTO staging_products (` + stagingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.pool.Exec(ctx, q,
		toPgUUID(rec.ID), toPgUUID(rec.BatchID), rec.ProductName, rec.ManufacturerName, rec.Brand,
		rec.ProductCategory, rec.ProductSubcategory, rec.VariantRaw, rec.VariantNormalized,
		rec.WeightKg, rec.ImageURL, string(rec.Status), rec.RejectionReason, rec.CreatedAt, rec.UpdatedAt,
	)
	return translate(err, nil)
}

func (s *Store) GetStaging(ctx context.Context, id uuid.UUID) (core.StagingRecord, error) {
	const q = `SELECT ` + stagingColumns + ` FROM staging_products WHERE id = $1`

	rec, err := scanStaging(s.pool.QueryRow(ctx, q, toPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StagingRecord{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.StagingRecord{}, translate(err, nil)
	}
	return rec, nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to core.Status, reason *string) (core.StagingRecord, error) {
	const q = `UPDATE staging_products
		SET status = $3, rejection_reason = $4, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + stagingColumns

	if to != core.StatusRejected {
		reason = nil
	}
	rec, err := scanStaging(s.pool.QueryRow(ctx, q, toPgUUID(id), string(from), string(to), reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StagingRecord{}, s.explainMiss(ctx, id, "move to "+string(to))
	}
	if err != nil {
		return core.StagingRecord{}, translate(err, nil)
	}
	return rec, nil
}

func (s *Store) UpdatePending(ctx context.Context, rec core.StagingRecord) (core.StagingRecord, error) {
	const q = `UPDATE staging_products
		SET product_name = $2, manufacturer_name = $3, brand = $4,
			product_category = $5, product_subcategory = $6,
			variant_raw = $7, variant_normalized = $8, weight_kg = $9,
			image_url = $10, updated_at = $11
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + stagingColumns

	updated, err := scanStaging(s.pool.QueryRow(ctx, q,
		toPgUUID(rec.ID), rec.ProductName, rec.ManufacturerName, rec.Brand,
		rec.ProductCategory, rec.ProductSubcategory,
		rec.VariantRaw, rec.VariantNormalized, rec.WeightKg,
		rec.ImageURL, rec.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StagingRecord{}, s.explainMiss(ctx, rec.ID, "edit")
	}
	if err != nil {
		return core.StagingRecord{}, translate(err, nil)
	}
	return updated, nil
}

func (s *Store) DeleteStaging(ctx context.Context, id uuid.UUID, statuses ...core.Status) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if len(statuses) == 0 {
		tag, err = s.pool.Exec(ctx, `DELETE FROM staging_products WHERE id = $1`, toPgUUID(id))
	} else {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM staging_products WHERE id = $1 AND status = ANY($2)`,
			toPgUUID(id), names)
	}
	if err != nil {
		return translate(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id, "delete")
	}
	return nil
}

func (s *Store) ListStaging(ctx context.Context, filter core.StagingFilter) ([]core.StagingRecord, error) {
	const q = `SELECT ` + stagingColumns + `
		FROM staging_products
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2 = '' OR product_name ILIKE '%' || $2 || '%')
		ORDER BY created_at, id`

	var status *string
	if filter.Status != nil {
		st := string(*filter.Status)
		status = &st
	}

	rows, err := s.pool.Query(ctx, q, status, escapeLike(filter.Search))
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var out []core.StagingRecord
	for rows.Next() {
		rec, err := scanStaging(rows)
		if err != nil {
			return nil, translate(fmt.Errorf("scan staging row: %w", err), nil)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, nil)
	}
	return out, nil
}

// explainMiss tells a missing record apart from one in the wrong status
// after a conditional write matched nothing.
func (s *Store) explainMiss(ctx context.Context, id uuid.UUID, op string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM staging_products WHERE id = $1`, toPgUUID(id)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return &core.NotFoundError{ID: id}
	}
	if err != nil {
		return translate(err, nil)
	}
	return &core.InvalidStateError{ID: id, Status: core.Status(status), Op: op}
}
