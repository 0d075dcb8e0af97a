package db

import (
	"database/sql"
	"fmt"

	"github.com/ledgerflow-xyz/evmindexer/pkg/config"
	_ "github.com/lib/pq"
)

// NewPostgresDB opens a connection pool to the given DSN.
func NewPostgresDB(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// NewPostgresDBFromConfig opens a connection pool configured per cfg,
// applying its pool-size and connection-lifetime settings.
func NewPostgresDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return sqlDB, nil
}
