// Package supervisor wires the RPC client, database, event bus,
// importer, block fetcher and async fetchers into one lifecycle. The
// block fetcher is relaunched whenever it returns an error; the async
// fetchers are started once and are not relaunched.
package supervisor

import (
	"context"
	"database/sql"
	"time"

	"github.com/ledgerflow-xyz/evmindexer/internal/blockfetcher"
	"github.com/ledgerflow-xyz/evmindexer/internal/bufferedtask"
	"github.com/ledgerflow-xyz/evmindexer/internal/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/eventbus"
	"github.com/ledgerflow-xyz/evmindexer/internal/fetchers"
	"github.com/ledgerflow-xyz/evmindexer/internal/importer"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/internal/metrics"
	pkgconfig "github.com/ledgerflow-xyz/evmindexer/pkg/config"
	"github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
)

// restartDelay is how long a crashed component's goroutine waits
// before it is relaunched.
const restartDelay = 5 * time.Second

// Supervisor owns every long-running component of the indexer core.
type Supervisor struct {
	cfg    *pkgconfig.Config
	db     *sql.DB
	client rpc.EthClient
	log    *logger.Logger

	bus        *eventbus.Bus
	imp        *importer.Importer
	balanceFT  *bufferedtask.BufferedTask[fetchers.BalanceEntry]
	internalFT *bufferedtask.BufferedTask[fetchers.InternalTxEntry]
	tokenFT    *bufferedtask.BufferedTask[fetchers.TokenBalanceEntry]
	blockFT    *blockfetcher.BlockFetcher
}

// New assembles every component from cfg but starts nothing yet.
func New(cfg *pkgconfig.Config, database *sql.DB, client rpc.EthClient, log *logger.Logger) *Supervisor {
	bus := eventbus.New(log.WithComponent(common.ComponentEventBus))
	imp := importer.New(database, bus, log.WithComponent(common.ComponentImporter))

	balanceCfg := bufferedTaskConfig(cfg.BufferedTasks["balance"])
	internalCfg := bufferedTaskConfig(cfg.BufferedTasks["internal_transaction"])
	tokenCfg := bufferedTaskConfig(cfg.BufferedTasks["token_balance"])

	balanceFT := fetchers.NewBalanceFetcher(database, client, imp, balanceCfg, log.WithComponent(common.ComponentBalanceFetcher))
	tokenFT := fetchers.NewTokenBalanceFetcher(database, client, imp, tokenCfg, log.WithComponent(common.ComponentTokenBalanceFetcher))

	var internalFT *bufferedtask.BufferedTask[fetchers.InternalTxEntry]
	internalFT = fetchers.NewInternalTxFetcher(database, client, imp, internalCfg, func(discovered []fetchers.BalanceEntry) {
		balanceFT.Buffer(discovered)
	}, log.WithComponent(common.ComponentInternalTxFetcher))

	blockFT := blockfetcher.New(database, client, imp, balanceFT, internalFT, blockfetcherConfig(cfg), log.WithComponent(common.ComponentBlockFetcher))

	return &Supervisor{
		cfg: cfg, db: database, client: client, log: log,
		bus: bus, imp: imp, balanceFT: balanceFT, internalFT: internalFT, tokenFT: tokenFT, blockFT: blockFT,
	}
}

func bufferedTaskConfig(c pkgconfig.BufferedTaskConfig) bufferedtask.Config {
	return bufferedtask.Config{
		FlushInterval:  c.FlushInterval.Duration,
		MaxBatchSize:   c.MaxBatchSize,
		MaxConcurrency: c.MaxConcurrency,
		InitChunkSize:  c.InitChunkSize,
	}
}

func blockfetcherConfig(cfg *pkgconfig.Config) blockfetcher.Config {
	return blockfetcher.Config{
		BlocksBatchSize:      int64(cfg.Blocks.BatchSize),
		BlocksConcurrency:    cfg.Blocks.Concurrency,
		ReceiptsBatchSize:    cfg.Receipts.BatchSize,
		ReceiptsConcurrency:  cfg.Receipts.Concurrency,
		NominalBlockInterval: cfg.BlockInterval.Duration,
	}
}

// Run starts every component and blocks until ctx is cancelled. Only
// the block fetcher runs under a restart-on-crash loop; the three async
// fetchers are started once (a panic inside one of their batch runs is
// recovered by BufferedTask and retried) and are not relaunched.
func (s *Supervisor) Run(ctx context.Context) error {
	s.balanceFT.Start(ctx)
	s.internalFT.Start(ctx)
	s.tokenFT.Start(ctx)
	defer s.balanceFT.Stop()
	defer s.internalFT.Stop()
	defer s.tokenFT.Stop()

	go s.superviseBlockFetcher(ctx)

	<-ctx.Done()
	return nil
}

// superviseBlockFetcher restarts the block fetcher's Run loop after a
// pause whenever it returns a non-nil error, until ctx is cancelled.
func (s *Supervisor) superviseBlockFetcher(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		metrics.ComponentHealthSet(common.ComponentBlockFetcher, true)
		err := s.blockFT.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.WithComponent(common.ComponentBlockFetcher).Warnf("block fetcher crashed, restarting: %v", err)
			metrics.RecordError(common.ComponentBlockFetcher, "fatal")
			metrics.ComponentHealthSet(common.ComponentBlockFetcher, false)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}
