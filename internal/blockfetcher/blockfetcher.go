// Package blockfetcher drives block ingestion: a CATCHUP_IDLE/
// CATCHUP_RUNNING loop backfills history behind an adaptive interval,
// while an independent realtime timer streams the chain tip forward.
// Both feed the same import_range pipeline.
package blockfetcher

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ledgerflow-xyz/evmindexer/internal/addressextraction"
	"github.com/ledgerflow-xyz/evmindexer/internal/bufferedtask"
	"github.com/ledgerflow-xyz/evmindexer/internal/fetchers"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/internal/metrics"
	rpcdecode "github.com/ledgerflow-xyz/evmindexer/internal/rpc"
	"github.com/ledgerflow-xyz/evmindexer/internal/scheduler"
	"github.com/ledgerflow-xyz/evmindexer/internal/sequence"
	"github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
	"golang.org/x/sync/errgroup"
)

// Config carries the interval and concurrency knobs for the fetcher.
type Config struct {
	BlocksBatchSize     int64
	BlocksConcurrency   int
	ReceiptsBatchSize   int
	ReceiptsConcurrency int

	// NominalBlockInterval is the chain's expected block time; the
	// realtime timer fires at half of it.
	NominalBlockInterval time.Duration

	// CatchupMinInterval/CatchupMaxInterval bound the adaptive backoff
	// between catch-up runs (internal/scheduler).
	CatchupMinInterval time.Duration
	CatchupMaxInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BlocksBatchSize == 0 {
		c.BlocksBatchSize = 10
	}
	if c.BlocksConcurrency == 0 {
		c.BlocksConcurrency = 4
	}
	if c.ReceiptsBatchSize == 0 {
		c.ReceiptsBatchSize = 50
	}
	if c.ReceiptsConcurrency == 0 {
		c.ReceiptsConcurrency = 4
	}
	if c.NominalBlockInterval == 0 {
		c.NominalBlockInterval = 12 * time.Second
	}
	if c.CatchupMinInterval == 0 {
		c.CatchupMinInterval = 1 * time.Second
	}
	if c.CatchupMaxInterval == 0 {
		c.CatchupMaxInterval = 2 * time.Minute
	}
	return c
}

// BlockFetcher owns the catch-up and realtime pipelines and hands
// discovered addresses/transactions off to the async fetchers.
type BlockFetcher struct {
	db     *sql.DB
	client rpc.EthClient
	imp    store.Importer

	balanceFetcher    *bufferedtask.BufferedTask[fetchers.BalanceEntry]
	internalTxFetcher *bufferedtask.BufferedTask[fetchers.InternalTxEntry]

	cfg   Config
	sched *scheduler.Scheduler
	log   *logger.Logger
}

// New builds a BlockFetcher. The async fetchers are injected rather
// than constructed here so the supervisor controls their lifecycle
// independently.
func New(
	db *sql.DB,
	client rpc.EthClient,
	imp store.Importer,
	balanceFetcher *bufferedtask.BufferedTask[fetchers.BalanceEntry],
	internalTxFetcher *bufferedtask.BufferedTask[fetchers.InternalTxEntry],
	cfg Config,
	log *logger.Logger,
) *BlockFetcher {
	cfg = cfg.withDefaults()
	return &BlockFetcher{
		db: db, client: client, imp: imp,
		balanceFetcher: balanceFetcher, internalTxFetcher: internalTxFetcher,
		cfg: cfg, sched: scheduler.New(cfg.CatchupMinInterval, cfg.CatchupMaxInterval), log: log,
	}
}

// Run drives both pipelines concurrently until ctx is cancelled.
func (bf *BlockFetcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bf.runCatchup(ctx) })
	g.Go(func() error { return bf.runRealtime(ctx) })
	return g.Wait()
}

// runCatchup implements CATCHUP_IDLE -> CATCHUP_RUNNING -> CATCHUP_IDLE,
// backing off via the scheduler when a run finds nothing missing and
// resetting to the floor interval when it finds work.
func (bf *BlockFetcher) runCatchup(ctx context.Context) error {
	timer := time.NewTimer(bf.sched.Current())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			missing, err := bf.runCatchupOnce(ctx)
			if err != nil {
				bf.log.Warnf("catch-up run failed: %v", err)
			}

			var next time.Duration
			if missing == 0 {
				next = bf.sched.Increase()
			} else {
				next = bf.sched.Decrease()
			}
			timer.Reset(next)
		}
	}
}

// runCatchupOnce computes the chain tip, finds missing ranges behind
// it, and imports them concurrently at BlocksConcurrency. It returns
// the number of ranges it attempted.
func (bf *BlockFetcher) runCatchupOnce(ctx context.Context) (int, error) {
	latest, err := bf.client.FetchBlockByTag(ctx, "latest")
	if err != nil {
		return 0, fmt.Errorf("fetching latest block: %w", err)
	}
	if latest == 0 {
		return 0, nil
	}

	gaps, err := missingBlockNumberRanges(ctx, bf.db, latest-1, 0)
	if err != nil {
		return 0, fmt.Errorf("finding missing block ranges: %w", err)
	}
	if len(gaps) == 0 {
		return 0, nil
	}

	seq := sequence.New(gaps, -bf.cfg.BlocksBatchSize)

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, bf.cfg.BlocksConcurrency)
	count := 0

	for {
		r, ok := seq.Pop()
		if !ok {
			break
		}
		count++
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			if err := bf.importRange(ctx, "catchup", uint64(r.First), uint64(r.Last)); err != nil {
				bf.log.Warnf("import_range(%d, %d) failed: %v", r.First, r.Last, err)
				metrics.RecordError("blockfetcher", "warning")
				seq.Queue(r)
			}
			return nil
		})
	}

	return count, g.Wait()
}

// runRealtime streams [latest, latest+1] forward on a timer running
// at half the nominal block interval. Multiple fetches may overlap;
// the block upsert's conditional update makes that idempotent.
func (bf *BlockFetcher) runRealtime(ctx context.Context) error {
	ticker := time.NewTicker(bf.cfg.NominalBlockInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			latest, err := bf.client.FetchBlockByTag(ctx, "latest")
			if err != nil {
				bf.log.Warnf("realtime: fetching latest block: %v", err)
				continue
			}
			go func(latest uint64) {
				if err := bf.importRange(ctx, "realtime", latest, latest+1); err != nil {
					bf.log.Warnf("realtime import_range(%d, %d) failed: %v", latest, latest+1, err)
					metrics.RecordError("blockfetcher", "warning")
				}
			}(latest)
		}
	}
}

// importRange is the per-range pipeline: fetch, join receipts,
// extract addresses, import, and hand discovered work off to the
// async fetchers. pipeline labels the metrics emitted for this range
// ("catchup" or "realtime").
func (bf *BlockFetcher) importRange(ctx context.Context, pipeline string, first, last uint64) error {
	start := time.Now()
	defer func() {
		metrics.BlockProcessingTimeLog(pipeline, time.Since(start))
	}()

	result, err := bf.client.FetchBlocksByRange(ctx, first, last)
	if err != nil {
		return fmt.Errorf("fetch_blocks_by_range: %w", err)
	}
	metrics.BlocksProcessedInc(pipeline, uint64(len(result.Blocks)))

	receipts, err := bf.fetchReceiptsConcurrently(ctx, result.TransactionsWithoutReceipts, result.TransactionBlockNumbers)
	if err != nil {
		return fmt.Errorf("fetch_transaction_receipts: %w", err)
	}
	metrics.ReceiptsProcessedInc(pipeline, uint64(len(receipts)))

	transactions, err := rpcdecode.JoinTransactions(result.TransactionsWithoutReceipts, receipts)
	if err != nil {
		return fmt.Errorf("joining receipts: %w", err)
	}
	logs := rpcdecode.DecodeLogs(receipts)
	blocks := rpcdecode.DecodeBlocks(result.Blocks, true)

	bag := addressextraction.Bag{Blocks: toPtrSlice(blocks), Transactions: toPtrSlice(transactions), Logs: toPtrSlice(logs)}
	extracted := addressextraction.Extract(bag)

	addressParams := make([]store.AddressParams, 0, len(extracted))
	balanceEntries := make([]fetchers.BalanceEntry, 0, len(extracted))
	for hash, res := range extracted {
		blockNumber := res.FetchedBalanceBlockNumber
		addressParams = append(addressParams, store.AddressParams{
			Hash: hash, FetchedBalanceBlockNumber: &blockNumber, ContractCode: res.ContractCode,
		})
		balanceEntries = append(balanceEntries, fetchers.BalanceEntry{Address: hash, BlockNumber: blockNumber})
	}

	if _, err := bf.imp.All(ctx, store.ImportParams{
		Addresses: addressParams, Blocks: blocks, Transactions: transactions, Logs: logs, Broadcast: true,
	}); err != nil {
		return fmt.Errorf("importer: %w", err)
	}
	metrics.LogsIndexedInc(pipeline, len(logs))
	if len(blocks) > 0 {
		metrics.LastIndexedBlockInc(pipeline, blocks[len(blocks)-1].Number)
	}
	if elapsed := time.Since(start); elapsed > 0 {
		metrics.IndexingRateLog(pipeline, float64(len(blocks))/elapsed.Seconds())
	}

	if bf.balanceFetcher != nil {
		bf.balanceFetcher.Buffer(balanceEntries)
	}
	if bf.internalTxFetcher != nil {
		internalTxEntries := make([]fetchers.InternalTxEntry, 0, len(transactions))
		for _, tx := range transactions {
			if tx.BlockNumber == nil {
				continue
			}
			internalTxEntries = append(internalTxEntries, fetchers.InternalTxEntry{Hash: tx.Hash, BlockNumber: *tx.BlockNumber})
		}
		bf.internalTxFetcher.Buffer(internalTxEntries)
	}

	return nil
}

// fetchReceiptsConcurrently batches receipt requests at
// ReceiptsBatchSize and issues up to ReceiptsConcurrency batches at
// once.
func (bf *BlockFetcher) fetchReceiptsConcurrently(ctx context.Context, txs []*types.Transaction, txBlockNumbers map[string]uint64) ([]*types.Receipt, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	reqs := make([]rpc.ReceiptRequest, len(txs))
	for i, tx := range txs {
		reqs[i] = rpc.ReceiptRequest{Hash: tx.Hash(), BlockNumber: txBlockNumbers[tx.Hash().Hex()]}
	}

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, bf.cfg.ReceiptsConcurrency)

	var mu sync.Mutex
	var out []*types.Receipt

	for i := 0; i < len(reqs); i += bf.cfg.ReceiptsBatchSize {
		end := i + bf.cfg.ReceiptsBatchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		chunk := reqs[i:end]
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			res, err := bf.client.FetchTransactionReceipts(ctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, res.Receipts...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func toPtrSlice[T any](s []T) []*T {
	out := make([]*T, len(s))
	for i := range s {
		out[i] = &s[i]
	}
	return out
}

// missingBlockNumberRanges finds gaps in [low, high] where no
// consensus block is stored, walking descending as the catch-up loop
// requires.
func missingBlockNumberRanges(ctx context.Context, db *sql.DB, high, low uint64) ([]sequence.Range, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT number FROM blocks WHERE consensus AND number <= $1 AND number >= $2 ORDER BY number DESC
	`, high, low)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[uint64]struct{})
	for rows.Next() {
		var n uint64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		present[n] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var ranges []sequence.Range
	var runStart *uint64

	closeRun := func(n uint64) {
		if runStart != nil {
			ranges = append(ranges, sequence.Range{First: int64(*runStart), Last: int64(n)})
			runStart = nil
		}
	}

	n := high
	for {
		if _, ok := present[n]; ok {
			closeRun(n + 1)
		} else if runStart == nil {
			start := n
			runStart = &start
		}
		if n == low {
			break
		}
		n--
	}
	closeRun(low)

	return ranges, nil
}
