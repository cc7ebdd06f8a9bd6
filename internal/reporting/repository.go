package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"call-inbox/internal/claims"
)

// Repository aggregates call claims. Implementations include expired and
// handled rows; the summary is not limited to the inbox view.
type Repository interface {
	CountClaims(ctx context.Context, since time.Time) ([]Bucket, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CountClaims(ctx context.Context, since time.Time) ([]Bucket, error) {
	const q = `
SELECT status, COALESCE(handled_by_ext, ''), COUNT(*)
FROM call_claims
WHERE ($1::timestamptz IS NULL OR updated_at >= $1)
GROUP BY 1, 2
ORDER BY 1, 2
`
	var sinceArg any
	if !since.IsZero() {
		sinceArg = since
	}
	rows, err := r.db.QueryContext(ctx, q, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("count call claims: %w", err)
	}
	defer rows.Close()

	out := make([]Bucket, 0)
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Status, &b.Extension, &b.Count); err != nil {
			return nil, fmt.Errorf("scan claim bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count call claims: %w", err)
	}
	return out, nil
}

// ClaimsRepo counts in Go over any claims.Repository. It backs the
// in-memory setup used by tests and local runs.
type ClaimsRepo struct {
	src claims.Repository
}

func NewClaimsRepo(src claims.Repository) *ClaimsRepo {
	return &ClaimsRepo{src: src}
}

func (r *ClaimsRepo) CountClaims(ctx context.Context, since time.Time) ([]Bucket, error) {
	rows, err := r.src.List(ctx, claims.Query{UpdatedSince: since})
	if err != nil {
		return nil, err
	}
	type key struct {
		status claims.Status
		ext    string
	}
	counts := make(map[key]int)
	var order []key
	for _, c := range rows {
		k := key{status: c.Status}
		if c.HandledByExt != nil {
			k.ext = *c.HandledByExt
		}
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}
	out := make([]Bucket, 0, len(order))
	for _, k := range order {
		out = append(out, Bucket{Status: k.status, Extension: k.ext, Count: counts[k]})
	}
	return out, nil
}
