package config

import (
	"testing"
	"time"

	"github.com/ledgerflow-xyz/evmindexer/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromYAML("../../config.example.yaml")
	if err != nil {
		t.Fatalf("failed to load YAML config: %v", err)
	}

	validateConfig(t, cfg, "YAML")
}

func TestLoadFromJSON(t *testing.T) {
	cfg, err := LoadFromJSON("../../config.example.json")
	if err != nil {
		t.Fatalf("failed to load JSON config: %v", err)
	}

	validateConfig(t, cfg, "JSON")
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFromTOML("../../config.example.toml")
	if err != nil {
		t.Fatalf("failed to load TOML config: %v", err)
	}

	validateConfig(t, cfg, "TOML")
}

func TestLoadFromFile_YAML(t *testing.T) {
	cfg, err := LoadFromFile("../../config.example.yaml")
	if err != nil {
		t.Fatalf("failed to auto-load YAML config: %v", err)
	}

	validateConfig(t, cfg, "auto-detected YAML")
}

func TestLoadFromFile_JSON(t *testing.T) {
	cfg, err := LoadFromFile("../../config.example.json")
	if err != nil {
		t.Fatalf("failed to auto-load JSON config: %v", err)
	}

	validateConfig(t, cfg, "auto-detected JSON")
}

func TestLoadFromFile_TOML(t *testing.T) {
	cfg, err := LoadFromFile("../../config.example.toml")
	if err != nil {
		t.Fatalf("failed to auto-load TOML config: %v", err)
	}

	validateConfig(t, cfg, "auto-detected TOML")
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.Contains(t, err.Error(), "unsupported config file format")
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.NotEmpty(t, cfg.JSONRPC.URL, "[%s] json_rpc_named_arguments.url should not be empty", format)
	require.NotZero(t, cfg.Blocks.BatchSize, "[%s] blocks.batch_size should not be zero", format)
	require.NotZero(t, cfg.Receipts.BatchSize, "[%s] receipts.batch_size should not be zero", format)
	require.NotEmpty(t, cfg.DB.Host, "[%s] db.host should not be empty", format)
	require.NotEmpty(t, cfg.DB.Name, "[%s] db.name should not be empty", format)

	for _, name := range []string{"balance", "internal_transaction", "token_balance"} {
		task, ok := cfg.BufferedTasks[name]
		require.True(t, ok, "[%s] buffered_tasks.%s should be configured", format, name)
		require.NotZero(t, task.MaxBatchSize, "[%s] buffered_tasks.%s.max_batch_size should not be zero", format, name)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &config.Config{
		JSONRPC: config.JSONRPCConfig{URL: "https://test.com"},
		DB:      config.DatabaseConfig{Name: "test"},
	}

	cfg.ApplyDefaults()

	require.Equal(t, 10, cfg.Blocks.BatchSize)
	require.Equal(t, 10, cfg.Blocks.Concurrency)
	require.Equal(t, 250, cfg.Receipts.BatchSize)
	require.Equal(t, "localhost", cfg.DB.Host)
	require.Equal(t, 5432, cfg.DB.Port)
	require.Equal(t, "disable", cfg.DB.SSLMode)
	require.Equal(t, 25, cfg.DB.MaxOpenConnections)
	require.Equal(t, uint64(1<<30), cfg.MemoryLimitBytes)
	require.Equal(t, 5*time.Second, cfg.BlockInterval.Duration)

	for _, name := range []string{"balance", "internal_transaction", "token_balance"} {
		task := cfg.BufferedTasks[name]
		require.Equal(t, 500, task.MaxBatchSize)
		require.Equal(t, 3*time.Second, task.FlushInterval.Duration)
	}
}

func TestConfigValidation(t *testing.T) {
	validCfg := func() *config.Config {
		return &config.Config{
			JSONRPC: config.JSONRPCConfig{URL: "https://test.com"},
			DB:      config.DatabaseConfig{Name: "test"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *config.Config) { c.JSONRPC.URL = "" },
			wantErr: true,
		},
		{
			name:    "missing db name",
			mutate:  func(c *config.Config) { c.DB.Name = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCfg()
			tt.mutate(cfg)
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
