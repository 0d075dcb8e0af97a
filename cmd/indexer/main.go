package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerflow-xyz/evmindexer/internal/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/config"
	"github.com/ledgerflow-xyz/evmindexer/internal/db"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/internal/metrics"
	"github.com/ledgerflow-xyz/evmindexer/internal/rpc"
	"github.com/ledgerflow-xyz/evmindexer/internal/supervisor"
	"github.com/ledgerflow-xyz/evmindexer/pkg/api"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         evmindexer v%s                  ║
║   EVM Chain Indexing Pipeline              ║
╚═══════════════════════════════════════════╝
`
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "evmindexer - EVM chain indexing pipeline",
	Long: `evmindexer fetches blocks, receipts, traces and balances from an
EVM JSON-RPC node and imports them into a relational store under a single
transactional commit per block range, with automatic reorg repair.`,
	Version: version,
	RunE:    runIndexer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentSupervisor, cfg.Logging)

	log.Info("Connecting to Ethereum node...")
	ethClient, err := rpc.NewClient(ctx, rpc.Config{
		DefaultURL:   cfg.JSONRPC.URL,
		MethodURLs:   cfg.JSONRPC.MethodURLs,
		WSURL:        cfg.Subscribe.WSURL,
		TraceMethod:  cfg.JSONRPC.TraceMethod,
		CallTimeout:  cfg.JSONRPC.Timeout.Duration,
	}, logger.NewComponentLoggerFromConfig(common.ComponentRPCClient, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()
	log.Infof("Connected to Ethereum node: %s", cfg.JSONRPC.URL)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	log.Info("Running database migrations...")
	if err := db.RunMigrations(cfg.DB, db.Schema()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewPostgresDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	dbMaintenance := db.NewMaintenanceCoordinator(
		database,
		cfg.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging),
	)
	if err := dbMaintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance coordinator: %w", err)
	}
	defer dbMaintenance.Stop()

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, database, ethClient, logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server stopped with error: %v", err)
			}
		}()
		log.Infof("API server started on %s", cfg.API.ListenAddress)
	}

	sup := supervisor.New(cfg, database, ethClient, log)

	log.Info("evmindexer is ready to index")
	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor stopped with error: %w", err)
	}

	log.Info("evmindexer stopped successfully")
	return nil
}
