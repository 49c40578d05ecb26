// Package postgres provides a PostgreSQL-backed implementation of
// [notes.Store].
//
// A single [pgxpool.Pool] backs all operations. [Migrate] is idempotent and
// runs automatically on [NewStore], so a fresh database needs no manual setup.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSoapNotes = `
CREATE TABLE IF NOT EXISTS soap_notes (
    id             BIGSERIAL    PRIMARY KEY,
    owner_identity TEXT         NOT NULL,
    subject_name   TEXT         NOT NULL,
    body           TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    is_approved    BOOLEAN      NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_soap_notes_owner
    ON soap_notes (owner_identity);

CREATE INDEX IF NOT EXISTS idx_soap_notes_owner_created
    ON soap_notes (owner_identity, created_at DESC);
`

// Migrate creates or ensures the soap_notes table and its indexes exist.
// It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSoapNotes); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
