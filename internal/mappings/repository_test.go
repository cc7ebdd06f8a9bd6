package mappings

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-inbox/internal/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo_UpsertReplacesRow(t *testing.T) {
	repo := NewPostgresRepo(dbtest.Open(t))
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	_, err := repo.Upsert(ctx, ExtensionMapping{PhoneNumber: "38651395476", Extension: "101", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	out, err := repo.Upsert(ctx, ExtensionMapping{PhoneNumber: "38651395476", Extension: "102", CreatedAt: now.Add(time.Minute), ExpiresAt: now.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "102", out.Extension)
	assert.True(t, out.CreatedAt.Equal(now.Add(time.Minute)), "upsert refreshes created_at")

	rows, err := repo.List(ctx, 500)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "102", rows[0].Extension)
	assert.True(t, rows[0].ExpiresAt.Equal(now.Add(2*time.Hour)))
}

func TestPostgresRepo_UpdateAndDelete(t *testing.T) {
	repo := NewPostgresRepo(dbtest.Open(t))
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	_, err := repo.Upsert(ctx, ExtensionMapping{PhoneNumber: "38640111222", Extension: "204", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	ext := "205"
	out, err := repo.Update(ctx, "38640111222", Patch{Extension: &ext})
	require.NoError(t, err)
	assert.Equal(t, "205", out.Extension)
	assert.True(t, out.ExpiresAt.Equal(now.Add(time.Hour)), "untouched field keeps its value")

	exp := now.Add(48 * time.Hour)
	out, err = repo.Update(ctx, "38640111222", Patch{ExpiresAt: &exp})
	require.NoError(t, err)
	assert.True(t, out.ExpiresAt.Equal(exp))

	_, err = repo.Update(ctx, "38600000000", Patch{Extension: &ext})
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, repo.Delete(ctx, "38640111222"))
	assert.True(t, errors.Is(repo.Delete(ctx, "38640111222"), ErrNotFound))
	_, err = repo.Get(ctx, "38640111222")
	assert.True(t, errors.Is(err, ErrNotFound))
}
