package claims

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"call-inbox/internal/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedClaim(t *testing.T, db *sql.DB, phone string, status Status, ext string, updated, expires time.Time) {
	t.Helper()
	var handledBy any
	if ext != "" {
		handledBy = ext
	}
	_, err := db.ExecContext(context.Background(), `
INSERT INTO call_claims (phone_norm, status, handled_by_ext, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5)`, phone, string(status), handledBy, updated, expires)
	require.NoError(t, err)
}

func TestPostgresRepo_Transition(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewPostgresRepo(db)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	seedClaim(t, db, "38651395476", StatusMissed, "", now, now.Add(time.Hour))

	// A clock behind the stored updated_at still moves it forward.
	c, prev, err := repo.Transition(ctx, "38651395476", StatusClaimed, "101", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, prev)
	assert.Equal(t, StatusClaimed, c.Status)
	require.NotNil(t, c.HandledByExt)
	assert.Equal(t, "101", *c.HandledByExt)
	assert.True(t, c.UpdatedAt.After(now), "updated_at must strictly increase, got %s", c.UpdatedAt)

	c2, prev, err := repo.Transition(ctx, "38651395476", StatusHandled, "102", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusClaimed, prev)
	assert.Equal(t, StatusHandled, c2.Status)
	assert.True(t, c2.UpdatedAt.Equal(now.Add(time.Minute)))

	_, _, err = repo.Transition(ctx, "38651395476", StatusClaimed, "103", now.Add(2*time.Minute))
	assert.True(t, errors.Is(err, ErrBackwardTransition))

	got, err := repo.Get(ctx, "38651395476")
	require.NoError(t, err)
	assert.Equal(t, StatusHandled, got.Status, "rejected move must not mutate the row")
	assert.Equal(t, "102", *got.HandledByExt)

	_, _, err = repo.Transition(ctx, "38600000000", StatusClaimed, "101", now)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresRepo_List(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewPostgresRepo(db)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	seedClaim(t, db, "38651000001", StatusMissed, "", now.Add(-3*time.Minute), now.Add(time.Hour))
	seedClaim(t, db, "38651000002", StatusClaimed, "101", now.Add(-time.Minute), now.Add(time.Hour))
	seedClaim(t, db, "38651000003", StatusHandled, "101", now, now.Add(time.Hour))
	seedClaim(t, db, "38651000004", StatusMissed, "", now, now.Add(-time.Second))

	rows, err := repo.List(ctx, Query{Statuses: ActiveStatuses, ActiveAt: now, Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "38651000002", rows[0].PhoneNorm, "newest first")
	assert.Equal(t, "38651000001", rows[1].PhoneNorm)

	rows, err = repo.List(ctx, Query{Digits: "0003", Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusHandled, rows[0].Status)

	rows, err = repo.List(ctx, Query{Extension: "101", UpdatedSince: now.Add(-2 * time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "38651000003", rows[0].PhoneNorm)

	rows, err = repo.List(ctx, Query{Digits: "999", Limit: 100})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
