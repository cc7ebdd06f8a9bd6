package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the storage contract for call claims.
type Repository interface {
	List(ctx context.Context, q Query) ([]CallClaim, error)
	Get(ctx context.Context, phoneNorm string) (CallClaim, error)
	// Transition applies status and extension in one atomic step and returns
	// the updated row plus the status it held before. It returns
	// ErrNotFound when the row is missing and ErrBackwardTransition when the
	// current status is not in TransitionSources(status).
	Transition(ctx context.Context, phoneNorm string, status Status, ext string, now time.Time) (CallClaim, Status, error)
}

var (
	ErrNotFound           = errors.New("call claim not found")
	ErrBackwardTransition = errors.New("call claim status cannot move backward")
)

// PostgresRepo stores claims in the call_claims table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const claimColumns = `phone_norm, last_pbx_call_id, status, handled_by_ext, updated_at, expires_at`

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]CallClaim, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if !q.ActiveAt.IsZero() {
		where = append(where, "expires_at > "+arg(q.ActiveAt))
	}
	if q.Digits != "" {
		where = append(where, "phone_norm LIKE '%' || "+arg(q.Digits)+" || '%'")
	}
	if q.Extension != "" {
		where = append(where, "handled_by_ext = "+arg(q.Extension))
	}
	if !q.UpdatedSince.IsZero() {
		where = append(where, "updated_at >= "+arg(q.UpdatedSince))
	}

	var b strings.Builder
	b.WriteString("SELECT " + claimColumns + "\nFROM call_claims\n")
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, "\n  AND ") + "\n")
	}
	b.WriteString("ORDER BY updated_at DESC\nLIMIT " + arg(q.Limit))

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list call claims: %w", err)
	}
	defer rows.Close()

	out := make([]CallClaim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list call claims: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, phoneNorm string) (CallClaim, error) {
	const q = `SELECT ` + claimColumns + `
FROM call_claims
WHERE phone_norm = $1
`
	c, err := scanClaim(r.db.QueryRowContext(ctx, q, phoneNorm))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallClaim{}, ErrNotFound
		}
		return CallClaim{}, err
	}
	return c, nil
}

func (r *PostgresRepo) Transition(ctx context.Context, phoneNorm string, status Status, ext string, now time.Time) (CallClaim, Status, error) {
	// updated_at is bumped past the stored value so it strictly increases
	// even when two writers land within the same clock tick.
	const q = `
WITH prev AS (
  SELECT phone_norm, status
  FROM call_claims
  WHERE phone_norm = $1
  FOR UPDATE
)
UPDATE call_claims c
SET status = $2,
    handled_by_ext = $3,
    updated_at = GREATEST($4::timestamptz, c.updated_at + INTERVAL '1 microsecond')
FROM prev
WHERE c.phone_norm = prev.phone_norm
  AND prev.status = ANY($5)
RETURNING c.phone_norm, c.last_pbx_call_id, c.status, c.handled_by_ext, c.updated_at, c.expires_at, prev.status
`
	sources := TransitionSources(status)
	allowed := make([]string, 0, len(sources))
	for _, s := range sources {
		allowed = append(allowed, string(s))
	}

	var (
		c    CallClaim
		prev Status
	)
	err := r.db.QueryRowContext(ctx, q, phoneNorm, string(status), ext, now, allowed).Scan(
		&c.PhoneNorm,
		&c.LastPBXCallID,
		&c.Status,
		&c.HandledByExt,
		&c.UpdatedAt,
		&c.ExpiresAt,
		&prev,
	)
	if err == nil {
		return c, prev, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return CallClaim{}, "", fmt.Errorf("transition call claim: %w", err)
	}

	// Nothing updated: either the row is missing or its status blocked the move.
	if _, err := r.Get(ctx, phoneNorm); err != nil {
		return CallClaim{}, "", err
	}
	return CallClaim{}, "", ErrBackwardTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(s rowScanner) (CallClaim, error) {
	var c CallClaim
	if err := s.Scan(
		&c.PhoneNorm,
		&c.LastPBXCallID,
		&c.Status,
		&c.HandledByExt,
		&c.UpdatedAt,
		&c.ExpiresAt,
	); err != nil {
		return CallClaim{}, err
	}
	return c, nil
}
