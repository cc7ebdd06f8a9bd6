package mappings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("mapping not found")

type Repository interface {
	List(ctx context.Context, limit int) ([]ExtensionMapping, error)
	Get(ctx context.Context, phone string) (ExtensionMapping, error)
	// Upsert inserts or replaces extension and expiry, refreshing created_at.
	Upsert(ctx context.Context, m ExtensionMapping) (ExtensionMapping, error)
	Update(ctx context.Context, phone string, p Patch) (ExtensionMapping, error)
	Delete(ctx context.Context, phone string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]ExtensionMapping, error) {
	const q = `
SELECT phone_number, extension, created_at, expires_at
FROM extension_mappings
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out := make([]ExtensionMapping, 0)
	for rows.Next() {
		var m ExtensionMapping
		if err := rows.Scan(&m.PhoneNumber, &m.Extension, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, phone string) (ExtensionMapping, error) {
	const q = `
SELECT phone_number, extension, created_at, expires_at
FROM extension_mappings
WHERE phone_number = $1
`
	var m ExtensionMapping
	if err := r.db.QueryRowContext(ctx, q, phone).Scan(&m.PhoneNumber, &m.Extension, &m.CreatedAt, &m.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExtensionMapping{}, ErrNotFound
		}
		return ExtensionMapping{}, err
	}
	return m, nil
}

func (r *PostgresRepo) Upsert(ctx context.Context, m ExtensionMapping) (ExtensionMapping, error) {
	const q = `
INSERT INTO extension_mappings (phone_number, extension, created_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (phone_number)
DO UPDATE SET extension = EXCLUDED.extension,
              expires_at = EXCLUDED.expires_at,
              created_at = EXCLUDED.created_at
RETURNING phone_number, extension, created_at, expires_at
`
	var out ExtensionMapping
	if err := r.db.QueryRowContext(ctx, q, m.PhoneNumber, m.Extension, m.CreatedAt, m.ExpiresAt).Scan(
		&out.PhoneNumber,
		&out.Extension,
		&out.CreatedAt,
		&out.ExpiresAt,
	); err != nil {
		return ExtensionMapping{}, fmt.Errorf("upsert mapping: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) Update(ctx context.Context, phone string, p Patch) (ExtensionMapping, error) {
	var (
		sets []string
		args []any
	)
	if p.Extension != nil {
		args = append(args, *p.Extension)
		sets = append(sets, fmt.Sprintf("extension = $%d", len(args)))
	}
	if p.ExpiresAt != nil {
		args = append(args, *p.ExpiresAt)
		sets = append(sets, fmt.Sprintf("expires_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		return ExtensionMapping{}, errors.New("update mapping: empty patch")
	}
	args = append(args, phone)
	q := fmt.Sprintf(`
UPDATE extension_mappings
SET %s
WHERE phone_number = $%d
RETURNING phone_number, extension, created_at, expires_at
`, strings.Join(sets, ", "), len(args))

	var out ExtensionMapping
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&out.PhoneNumber, &out.Extension, &out.CreatedAt, &out.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExtensionMapping{}, ErrNotFound
		}
		return ExtensionMapping{}, fmt.Errorf("update mapping: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, phone string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM extension_mappings WHERE phone_number = $1`, phone)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// parseTimestamp accepts RFC 3339 plus the zone-less forms browsers send
// from date and datetime-local inputs, which are read as UTC.
func parseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
