package db

import (
	"os"
	"testing"

	"github.com/ledgerflow-xyz/evmindexer/pkg/config"
	"github.com/stretchr/testify/require"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping test requiring a live database")
	}
	return dsn
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "indexer",
		Password: "secret",
		Name:     "chain",
		SSLMode:  "require",
	}

	require.Equal(t,
		"host=db.internal port=5433 user=indexer password=secret dbname=chain sslmode=require",
		cfg.DSN(),
	)
}

func TestNewPostgresDB(t *testing.T) {
	t.Parallel()
	dsn := testDSN(t)

	sqlDB, err := NewPostgresDB(dsn)
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, sqlDB.Ping())
}

func TestNewPostgresDBFromConfig_RejectsBadHost(t *testing.T) {
	t.Parallel()

	cfg := config.DatabaseConfig{Host: "127.0.0.1", Port: 1, Name: "nope"}
	cfg.ApplyDefaults()

	_, err := NewPostgresDBFromConfig(cfg)
	require.Error(t, err)
}

func TestNewPostgresDB_AcceptsDefaultMaxOpenConnections(t *testing.T) {
	t.Parallel()
	dsn := testDSN(t)

	cfg := config.DatabaseConfig{}
	cfg.ApplyDefaults()

	sqlDB, err := NewPostgresDB(dsn)
	require.NoError(t, err)
	defer sqlDB.Close()

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	require.Equal(t, cfg.MaxOpenConnections, sqlDB.Stats().MaxOpenConnections)
}
