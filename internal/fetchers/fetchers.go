// Package fetchers instantiates the three async BufferedTasks: Balance,
// InternalTransaction, and TokenBalance. Each streams
// unfetched rows at boot, deduplicates its buffer on every run, and
// re-enqueues derived work discovered along the way (e.g. a new
// address seen inside an internal transaction needs its own balance
// fetch).
package fetchers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/ledgerflow-xyz/evmindexer/internal/bufferedtask"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/internal/metrics"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
	"github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
)

// BalanceEntry is one address/block pair awaiting a native-coin
// balance fetch.
type BalanceEntry struct {
	Address     common.Address
	BlockNumber uint64
}

// InternalTxEntry is one transaction awaiting trace collection.
type InternalTxEntry struct {
	Hash        common.Hash
	BlockNumber uint64
}

// TokenBalanceEntry is one (address, token contract, block) triple
// awaiting an eth_call balanceOf fetch.
type TokenBalanceEntry struct {
	Address       common.Address
	TokenContract common.Address
	BlockNumber   uint64
}

// dedupeBalances collapses duplicate addresses to the entry with the
// max block number.
func dedupeBalances(entries []BalanceEntry) []BalanceEntry {
	byAddr := make(map[common.Address]BalanceEntry, len(entries))
	for _, e := range entries {
		if existing, ok := byAddr[e.Address]; !ok || e.BlockNumber > existing.BlockNumber {
			byAddr[e.Address] = e
		}
	}
	out := make([]BalanceEntry, 0, len(byAddr))
	for _, e := range byAddr {
		out = append(out, e)
	}
	return out
}

// dedupeInternalTxs collapses duplicate transaction hashes to a
// single entry, warning and dropping the rest.
func dedupeInternalTxs(entries []InternalTxEntry, log *logger.Logger) []InternalTxEntry {
	byHash := make(map[common.Hash]InternalTxEntry, len(entries))
	for _, e := range entries {
		if _, dup := byHash[e.Hash]; dup {
			log.Warnf("internal transaction fetcher: duplicate transaction hash %s collapsed", e.Hash.Hex())
			continue
		}
		byHash[e.Hash] = e
	}
	out := make([]InternalTxEntry, 0, len(byHash))
	for _, e := range byHash {
		out = append(out, e)
	}
	return out
}

func dedupeTokenBalances(entries []TokenBalanceEntry) []TokenBalanceEntry {
	type key struct {
		addr  common.Address
		token common.Address
	}
	byKey := make(map[key]TokenBalanceEntry, len(entries))
	for _, e := range entries {
		k := key{e.Address, e.TokenContract}
		if existing, ok := byKey[k]; !ok || e.BlockNumber > existing.BlockNumber {
			byKey[k] = e
		}
	}
	out := make([]TokenBalanceEntry, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	return out
}

// NewBalanceFetcher builds the native-coin balance BufferedTask.
func NewBalanceFetcher(db *sql.DB, client rpc.EthClient, imp store.Importer, cfg bufferedtask.Config, log *logger.Logger) *bufferedtask.BufferedTask[BalanceEntry] {
	run := func(ctx context.Context, batch []BalanceEntry, retries int) bufferedtask.Result {
		batch = dedupeBalances(batch)
		metrics.AsyncFetchItemsAdd("balance", len(batch))

		reqs := make([]rpc.BalanceRequest, len(batch))
		for i, e := range batch {
			reqs[i] = rpc.BalanceRequest{Address: e.Address, BlockNumber: e.BlockNumber}
		}

		results, err := client.FetchBalances(ctx, reqs)
		if err != nil {
			metrics.AsyncFetchBatchInc("balance", "retry")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeRetry, Reason: err}
		}

		balances := make([]models.CoinBalance, 0, len(results))
		for _, r := range results {
			if r.Value == nil {
				continue
			}
			value, err := uint256.FromDecimal(*r.Value)
			if err != nil {
				log.Warnf("balance fetcher: unparsable value %q for %x", *r.Value, r.Address)
				continue
			}
			now := time.Now().UTC()
			balances = append(balances, models.CoinBalance{
				AddressHash: r.Address, BlockNumber: r.BlockNumber, Value: value, ValueFetchedAt: &now,
			})
		}

		if len(balances) == 0 {
			metrics.AsyncFetchBatchInc("balance", "ok")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeOK}
		}

		if _, err := imp.All(ctx, store.ImportParams{CoinBalances: balances, Broadcast: true}); err != nil {
			metrics.AsyncFetchBatchInc("balance", "retry")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeRetry, Reason: fmt.Errorf("importing coin balances: %w", err)}
		}

		metrics.AsyncFetchBatchInc("balance", "ok")
		return bufferedtask.Result{Outcome: bufferedtask.OutcomeOK}
	}

	init := func(ctx context.Context, chunkSize int) ([]BalanceEntry, error) {
		return streamBalanceBacklog(ctx, db, chunkSize)
	}

	return bufferedtask.New(cfg, run, init, log)
}

func streamBalanceBacklog(ctx context.Context, db *sql.DB, chunkSize int) ([]BalanceEntry, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT hash, fetched_coin_balance_block_number FROM addresses
		WHERE fetched_coin_balance IS NULL AND fetched_coin_balance_block_number IS NOT NULL
		LIMIT $1
	`, chunkSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BalanceEntry
	for rows.Next() {
		var addrHex string
		var blockNumber uint64
		if err := rows.Scan(&addrHex, &blockNumber); err != nil {
			return nil, err
		}
		entries = append(entries, BalanceEntry{Address: common.HexToAddress(addrHex), BlockNumber: blockNumber})
	}
	return entries, rows.Err()
}

// NewInternalTxFetcher builds the trace-collection BufferedTask.
// onNewAddresses, if non-nil, is called with every address discovered
// inside a fetched trace so the caller can re-enqueue a balance fetch
// for it.
func NewInternalTxFetcher(db *sql.DB, client rpc.EthClient, imp store.Importer, cfg bufferedtask.Config, onNewAddresses func([]BalanceEntry), log *logger.Logger) *bufferedtask.BufferedTask[InternalTxEntry] {
	run := func(ctx context.Context, batch []InternalTxEntry, retries int) bufferedtask.Result {
		batch = dedupeInternalTxs(batch, log)
		metrics.AsyncFetchItemsAdd("internal_transaction", len(batch))

		reqs := make([]rpc.InternalTxRequest, len(batch))
		for i, e := range batch {
			reqs[i] = rpc.InternalTxRequest{Hash: e.Hash, BlockNumber: e.BlockNumber}
		}

		traces, err := client.FetchInternalTransactions(ctx, reqs)
		if err != nil {
			metrics.AsyncFetchBatchInc("internal_transaction", "retry")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeRetry, Reason: err}
		}

		internalTxs := make([]models.InternalTransaction, 0, len(traces))
		discovered := make([]BalanceEntry, 0)
		for _, tr := range traces {
			internalTxs = append(internalTxs, traceToModel(tr))
			discovered = append(discovered, BalanceEntry{Address: tr.From, BlockNumber: tr.BlockNumber})
			if tr.To != nil {
				discovered = append(discovered, BalanceEntry{Address: *tr.To, BlockNumber: tr.BlockNumber})
			}
		}

		if len(internalTxs) > 0 {
			if _, err := imp.All(ctx, store.ImportParams{InternalTransactions: internalTxs, Broadcast: true}); err != nil {
				metrics.AsyncFetchBatchInc("internal_transaction", "retry")
				return bufferedtask.Result{Outcome: bufferedtask.OutcomeRetry, Reason: fmt.Errorf("importing internal transactions: %w", err)}
			}
		}

		if onNewAddresses != nil && len(discovered) > 0 {
			onNewAddresses(discovered)
		}

		metrics.AsyncFetchBatchInc("internal_transaction", "ok")
		return bufferedtask.Result{Outcome: bufferedtask.OutcomeOK}
	}

	init := func(ctx context.Context, chunkSize int) ([]InternalTxEntry, error) {
		return streamInternalTxBacklog(ctx, db, chunkSize)
	}

	return bufferedtask.New(cfg, run, init, log)
}

func traceToModel(tr rpc.TraceResult) models.InternalTransaction {
	var value *uint256.Int
	if tr.Value != nil {
		value, _ = uint256.FromDecimal(*tr.Value)
	}

	var callType *string
	if tr.CallType != "" {
		callType = &tr.CallType
	}
	var errStr *string
	if tr.Error != "" {
		errStr = &tr.Error
	}

	var to *common.Address
	if tr.To != nil {
		addr := common.Address(*tr.To)
		to = &addr
	}

	return models.InternalTransaction{
		TransactionHash: tr.TransactionHash, Index: tr.Index, Type: models.InternalTxType(tr.Type),
		CallType: callType, From: tr.From, To: to, Value: value, Gas: &tr.Gas, GasUsed: &tr.GasUsed,
		Input: tr.Input, Output: tr.Output, TraceAddress: tr.TraceAddress, Error: errStr,
		BlockNumber: tr.BlockNumber,
	}
}

func streamInternalTxBacklog(ctx context.Context, db *sql.DB, chunkSize int) ([]InternalTxEntry, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT t.hash, b.number FROM transactions t
		JOIN blocks b ON b.hash = t.block_hash
		WHERE b.internal_transactions_indexed_at IS NULL AND t.block_hash IS NOT NULL
		LIMIT $1
	`, chunkSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []InternalTxEntry
	for rows.Next() {
		var hashHex string
		var blockNumber uint64
		if err := rows.Scan(&hashHex, &blockNumber); err != nil {
			return nil, err
		}
		entries = append(entries, InternalTxEntry{Hash: common.HexToHash(hashHex), BlockNumber: blockNumber})
	}
	return entries, rows.Err()
}

// NewTokenBalanceFetcher builds the ERC-20 balanceOf BufferedTask.
func NewTokenBalanceFetcher(db *sql.DB, client rpc.EthClient, imp store.Importer, cfg bufferedtask.Config, log *logger.Logger) *bufferedtask.BufferedTask[TokenBalanceEntry] {
	run := func(ctx context.Context, batch []TokenBalanceEntry, retries int) bufferedtask.Result {
		batch = dedupeTokenBalances(batch)
		metrics.AsyncFetchItemsAdd("token_balance", len(batch))

		reqs := make([]rpc.TokenBalanceRequest, len(batch))
		for i, e := range batch {
			reqs[i] = rpc.TokenBalanceRequest{Address: e.Address, TokenContract: e.TokenContract, BlockNumber: e.BlockNumber}
		}

		results, err := client.FetchTokenBalances(ctx, reqs)
		if err != nil {
			metrics.AsyncFetchBatchInc("token_balance", "retry")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeRetry, Reason: err}
		}

		balances := make([]models.TokenBalance, 0, len(results))
		for _, r := range results {
			if r.Value == nil {
				continue
			}
			value, err := uint256.FromDecimal(*r.Value)
			if err != nil {
				log.Warnf("token balance fetcher: unparsable value %q", *r.Value)
				continue
			}
			now := time.Now().UTC()
			balances = append(balances, models.TokenBalance{
				AddressHash: r.Address, TokenContractHash: r.TokenContract, BlockNumber: r.BlockNumber,
				Value: value, ValueFetchedAt: &now,
			})
		}

		if len(balances) == 0 {
			metrics.AsyncFetchBatchInc("token_balance", "ok")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeOK}
		}

		if _, err := imp.All(ctx, store.ImportParams{TokenBalances: balances, Broadcast: true}); err != nil {
			metrics.AsyncFetchBatchInc("token_balance", "retry")
			return bufferedtask.Result{Outcome: bufferedtask.OutcomeRetry, Reason: fmt.Errorf("importing token balances: %w", err)}
		}

		metrics.AsyncFetchBatchInc("token_balance", "ok")
		return bufferedtask.Result{Outcome: bufferedtask.OutcomeOK}
	}

	init := func(ctx context.Context, chunkSize int) ([]TokenBalanceEntry, error) {
		return streamTokenBalanceBacklog(ctx, db, chunkSize)
	}

	return bufferedtask.New(cfg, run, init, log)
}

func streamTokenBalanceBacklog(ctx context.Context, db *sql.DB, chunkSize int) ([]TokenBalanceEntry, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT address_hash, token_contract_address_hash, block_number FROM address_token_balances
		WHERE value_fetched_at IS NULL
		LIMIT $1
	`, chunkSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TokenBalanceEntry
	for rows.Next() {
		var addrHex, tokenHex string
		var blockNumber uint64
		if err := rows.Scan(&addrHex, &tokenHex, &blockNumber); err != nil {
			return nil, err
		}
		entries = append(entries, TokenBalanceEntry{
			Address: common.HexToAddress(addrHex), TokenContract: common.HexToAddress(tokenHex), BlockNumber: blockNumber,
		})
	}
	return entries, rows.Err()
}
