// Package postgres implements the core storage ports on PostgreSQL.
//
// One Store serves staging records, the canonical catalog, the taxonomy
// and the audit log. Driver errors are translated into core error kinds:
// unique violations become *core.DuplicateKeyError and connection trouble
// becomes *core.UpstreamError.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/core"
)

//go:embed schema.sql
var schemaSQL string

const (
	codeUniqueViolation = "23505"
	dependency          = "postgres"
)

var (
	_ core.StagingStore   = (*Store)(nil)
	_ core.CanonicalStore = (*Store)(nil)
	_ core.TaxonomySource = (*Store)(nil)
	_ core.AuditSink      = (*Store)(nil)
)

// Store is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool sized by cfg and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pcfg.MaxConns = int32(cfg.MaxConns)
	pcfg.MinConns = int32(cfg.MinConns)
	pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.Upstream(dependency, fmt.Errorf("ping: %w", err))
	}
	return pool, nil
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return translate(fmt.Errorf("migrate: %w", err), nil)
	}
	return nil
}

// Ping checks the connection for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return translate(s.pool.Ping(ctx), nil)
}

// translate maps driver errors to core kinds. key labels unique
// violations on the catalog and may be nil.
func translate(err error, key *core.ProductKey) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation && key != nil:
			return &core.DuplicateKeyError{Key: *key}
		case transientClass(pgErr.Code):
			return &core.UpstreamError{Dependency: dependency, Err: err}
		default:
			return fmt.Errorf("%s: %w", dependency, err)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Anything else did not come back from the server: dial, TLS, reset.
	return &core.UpstreamError{Dependency: dependency, Err: err}
}

// transientClass reports SQLSTATE classes worth retrying: connection
// exceptions, insufficient resources, operator intervention and
// serialization failures.
func transientClass(code string) bool {
	for _, prefix := range []string{"08", "53", "57P", "40001", "40P01"} {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func fromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

// escapeLike quotes LIKE wildcards in user search text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
