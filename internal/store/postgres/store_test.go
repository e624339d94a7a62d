package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/intake/internal/core"
)

func TestTranslate(t *testing.T) {
	key := core.ProductKey{ProductName: "Milo", ManufacturerName: "Nestle", VariantNormalized: "400G x 1"}
	unique := &pgconn.PgError{Code: codeUniqueViolation, Message: "duplicate key value violates unique constraint"}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, translate(nil, nil))
	})

	t.Run("unique violation on catalog", func(t *testing.T) {
		err := translate(fmt.Errorf("insert: %w", unique), &key)
		var dup *core.DuplicateKeyError
		assert.ErrorAs(t, err, &dup)
		assert.Equal(t, key, dup.Key)
	})

	t.Run("unique violation without key stays a db error", func(t *testing.T) {
		err := translate(unique, nil)
		assert.NotErrorIs(t, err, core.ErrDuplicateKey)
		assert.ErrorIs(t, err, unique)
	})

	t.Run("connection exception is retryable", func(t *testing.T) {
		err := translate(&pgconn.PgError{Code: "08006"}, nil)
		assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
		assert.True(t, core.IsRetryable(err))
	})

	t.Run("check violation is not upstream", func(t *testing.T) {
		err := translate(&pgconn.PgError{Code: "23514"}, nil)
		assert.NotErrorIs(t, err, core.ErrUpstreamUnavailable)
	})

	t.Run("dial failure is upstream", func(t *testing.T) {
		err := translate(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), nil)
		assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	})

	t.Run("context errors pass through", func(t *testing.T) {
		err := translate(context.DeadlineExceeded, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, core.ErrUpstreamUnavailable)
	})
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% juice`, escapeLike("100% juice"))
	assert.Equal(t, `a\_b\\c`, escapeLike(`a_b\c`))
	assert.Equal(t, "milo", escapeLike("milo"))
}

func TestPgUUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id, fromPgUUID(toPgUUID(id)))
	assert.False(t, toPgUUID(uuid.Nil).Valid)
	assert.Equal(t, uuid.Nil, fromPgUUID(toPgUUID(uuid.Nil)))
}

func TestSchemaDeclaresConstraints(t *testing.T) {
	for _, want := range []string{
		"UNIQUE (product_name, manufacturer_name, variant_normalized)",
		"CHECK ((status = 'rejected') = (rejection_reason IS NOT NULL))",
		"CREATE TABLE IF NOT EXISTS audit_log",
	} {
		assert.True(t, strings.Contains(schemaSQL, want), "schema missing %q", want)
	}
}
