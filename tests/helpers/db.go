package helpers

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ledgerflow-xyz/evmindexer/internal/db"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/require"
)

// TestDatabaseURLEnv names the environment variable integration tests
// read to find a live Postgres instance. Tests that need a real
// connection call NewTestDB, which skips when it is unset.
const TestDatabaseURLEnv = "TEST_DATABASE_URL"

// NewTestDB connects to the Postgres instance named by
// TEST_DATABASE_URL, drops and recreates dbName's tables, and returns
// the open connection. It skips the calling test when
// TEST_DATABASE_URL is unset, since no database is available to
// connect to.
func NewTestDB(t *testing.T, dbName string) *sql.DB {
	t.Helper()

	dsn := os.Getenv(TestDatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping test requiring a live database", TestDatabaseURLEnv)
	}

	database, err := db.NewPostgresDB(dsn)
	require.NoError(t, err)

	require.NoError(t, db.RunMigrationsDBExtended(logger.NewNopLogger(), database, db.Schema(), migrate.Down, db.NoLimitMigrations))
	require.NoError(t, db.RunMigrationsDB(logger.NewNopLogger(), database, db.Schema()))

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
