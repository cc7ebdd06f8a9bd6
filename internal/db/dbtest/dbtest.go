// Package dbtest opens a migrated, throwaway Postgres schema for repository
// tests. Tests skip when TEST_POSTGRES_URL is unset.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"call-inbox/internal/db"
	"call-inbox/pkg/utils"

	"github.com/google/uuid"
)

const EnvURL = "TEST_POSTGRES_URL"

// Open returns a pool bound to a fresh schema holding every migration.
// The schema is dropped when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(EnvURL))
	if dsn == "" {
		t.Skipf("%s not set", EnvURL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	pool, err := utils.OpenPostgres(ctx, withSearchPath(dsn, schema), utils.PostgresPoolConfig{MaxOpenConns: 4})
	if err != nil {
		_ = admin.Close()
		t.Fatalf("open schema pool: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close()
	})

	if _, err := db.Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// withSearchPath adds a search_path runtime parameter to a URL or
// keyword/value connection string.
func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%ssearch_path=%s", dsn, sep, schema)
	}
	return fmt.Sprintf("%s search_path=%s", dsn, schema)
}
