package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soapscribe/soapscribe/internal/notes"
)

// Compile-time interface check.
var _ notes.Store = (*Store)(nil)

// Store is the PostgreSQL-backed note store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// verifies connectivity, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("note store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("note store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("note store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("note store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = "id, owner_identity, subject_name, body, created_at, is_approved"

// Create implements [notes.Store].
func (s *Store) Create(ctx context.Context, owner string, subjectName, body string) (notes.Record, error) {
	if owner == "" {
		return notes.Record{}, notes.ErrMissingOwner
	}
	if subjectName == "" {
		return notes.Record{}, notes.ErrMissingSubject
	}

	const q = `
		INSERT INTO soap_notes (owner_identity, subject_name, body)
		VALUES ($1, $2, $3)
		RETURNING ` + recordColumns

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, owner, subjectName, body))
	if err != nil {
		return notes.Record{}, fmt.Errorf("note store: create: %w", err)
	}
	return rec, nil
}

// Get implements [notes.Store].
func (s *Store) Get(ctx context.Context, owner string, id int64) (notes.Record, error) {
	if owner == "" {
		return notes.Record{}, notes.ErrMissingOwner
	}

	const q = `
		SELECT ` + recordColumns + `
		FROM   soap_notes
		WHERE  id = $1 AND owner_identity = $2`

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, id, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return notes.Record{}, notes.ErrNotFound
	}
	if err != nil {
		return notes.Record{}, fmt.Errorf("note store: get: %w", err)
	}
	return rec, nil
}

// ListByOwner implements [notes.Store]. Records are ordered newest first.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]notes.Record, error) {
	if owner == "" {
		return nil, notes.ErrMissingOwner
	}

	const q = `
		SELECT ` + recordColumns + `
		FROM   soap_notes
		WHERE  owner_identity = $1
		ORDER  BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("note store: list: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notes.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("note store: scan rows: %w", err)
	}
	if records == nil {
		records = []notes.Record{}
	}
	return records, nil
}

// Update implements [notes.Store]. The SET clause is built from the non-nil
// update fields only, so untouched columns keep their stored values.
func (s *Store) Update(ctx context.Context, owner string, id int64, upd notes.Update) (notes.Record, error) {
	if owner == "" {
		return notes.Record{}, notes.ErrMissingOwner
	}
	if upd.Empty() {
		return s.Get(ctx, owner, id)
	}

	args := []any{id, owner} // $1, $2 identify the row
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var sets []string
	if upd.SubjectName != nil {
		sets = append(sets, "subject_name = "+next(*upd.SubjectName))
	}
	if upd.Body != nil {
		sets = append(sets, "body = "+next(*upd.Body))
	}
	if upd.Approved != nil {
		sets = append(sets, "is_approved = "+next(*upd.Approved))
	}

	q := "UPDATE soap_notes\n" +
		"SET    " + strings.Join(sets, ", ") + "\n" +
		"WHERE  id = $1 AND owner_identity = $2\n" +
		"RETURNING " + recordColumns

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return notes.Record{}, notes.ErrNotFound
	}
	if err != nil {
		return notes.Record{}, fmt.Errorf("note store: update: %w", err)
	}
	return rec, nil
}

// Delete implements [notes.Store].
func (s *Store) Delete(ctx context.Context, owner string, id int64) error {
	if owner == "" {
		return notes.ErrMissingOwner
	}

	const q = `DELETE FROM soap_notes WHERE id = $1 AND owner_identity = $2`
	tag, err := s.pool.Exec(ctx, q, id, owner)
	if err != nil {
		return fmt.Errorf("note store: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notes.ErrNotFound
	}
	return nil
}

// scanRecord scans a single row in recordColumns order.
func scanRecord(row pgx.Row) (notes.Record, error) {
	var rec notes.Record
	err := row.Scan(
		&rec.ID,
		&rec.OwnerIdentity,
		&rec.SubjectName,
		&rec.Body,
		&rec.CreatedAt,
		&rec.Approved,
	)
	return rec, err
}
