package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/intake/internal/core"
)

func (s *Store) InsertAudit(ctx context.Context, e core.AuditEntry) error {
	const q = `INSERT INTO audit_log (
			id, action, severity, ip_address, user_agent, batch_id,
			record_ids, rows_affected, reason, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ids := make([]pgtype.UUID, len(e.RecordIDs))
	for i, id := range e.RecordIDs {
		ids[i] = toPgUUID(id)
	}

	_, err := s.pool.Exec(ctx, q,
		toPgUUID(e.ID), string(e.Action), string(e.Severity), e.IPAddress, e.UserAgent,
		toPgUUID(e.BatchID), ids, e.RowsAffected, e.Reason, e.Detail, e.CreatedAt,
	)
	return translate(err, nil)
}

// ListAudit returns the most recent entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	const q = `SELECT id, action, severity, ip_address, user_agent, batch_id,
			record_ids, rows_affected, reason, detail, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1`

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e                core.AuditEntry
			id, batchID      pgtype.UUID
			ids              []pgtype.UUID
			action, severity string
		)
		if err := rows.Scan(&id, &action, &severity, &e.IPAddress, &e.UserAgent, &batchID,
			&ids, &e.RowsAffected, &e.Reason, &e.Detail, &e.CreatedAt); err != nil {
			return nil, translate(err, nil)
		}
		e.ID = fromPgUUID(id)
		e.BatchID = fromPgUUID(batchID)
		e.Action = core.AuditAction(action)
		e.Severity = core.AuditSeverity(severity)
		for _, rid := range ids {
			e.RecordIDs = append(e.RecordIDs, fromPgUUID(rid))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, nil)
	}
	return out, nil
}
