// Package importer writes a fetched block batch into Postgres inside
// one transaction, running each present runner in a fixed,
// FK-safe order and repairing consensus on reorg.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/internal/metrics"
	"github.com/ledgerflow-xyz/evmindexer/pkg/eventbus"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
)

// DefaultTransactionTimeout bounds the encompassing DB transaction; a
// timed-out operation rolls back and the caller re-queues the range.
const DefaultTransactionTimeout = 120 * time.Second

// Importer is the Postgres-backed implementation of store.Importer.
type Importer struct {
	db      *sql.DB
	bus     eventbus.Bus
	log     *logger.Logger
	timeout time.Duration
}

// New builds an Importer. bus may be nil; broadcasts are then skipped
// regardless of params.Broadcast.
func New(db *sql.DB, bus eventbus.Bus, log *logger.Logger) *Importer {
	return &Importer{db: db, bus: bus, log: log, timeout: DefaultTransactionTimeout}
}

var _ store.Importer = (*Importer)(nil)

// All validates params, then runs every present runner inside one
// transaction in the order: Addresses, CoinBalances, Blocks,
// BlockSecondDegreeRelations, Transactions, TransactionForks,
// InternalTransactions, Logs, Tokens/TokenTransfers/TokenBalances. On
// commit, if params.Broadcast, non-empty result groups are published
// fire-and-forget.
func (imp *Importer) All(ctx context.Context, params store.ImportParams) (store.ImportResult, error) {
	params, err := validate(params)
	if err != nil {
		return store.ImportResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, imp.timeout)
	defer cancel()

	start := time.Now()

	tx, err := imp.db.BeginTx(ctx, nil)
	if err != nil {
		return store.ImportResult{}, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := imp.runAll(tx, params)
	if err != nil {
		metrics.DBErrorsInc("postgres", "import")
		return store.ImportResult{}, err
	}

	if err := tx.Commit(); err != nil {
		metrics.DBErrorsInc("postgres", "import_commit")
		return store.ImportResult{}, fmt.Errorf("committing import transaction: %w", err)
	}
	metrics.DBQueryInc("postgres", "import")
	metrics.DBQueryDuration("postgres", "import", time.Since(start))

	if params.Broadcast && imp.bus != nil {
		imp.broadcast(ctx, result)
	}

	return result, nil
}

func (imp *Importer) runAll(tx *sql.Tx, params store.ImportParams) (store.ImportResult, error) {
	var result store.ImportResult

	if len(params.Addresses) > 0 {
		addrs, err := addressesRunner(tx, params.Addresses)
		if err != nil {
			metrics.RunnerErrorInc("addresses")
			return store.ImportResult{}, &store.StepError{Step: "addresses", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("addresses", len(addrs))
		result.Addresses = addrs
	}

	if len(params.CoinBalances) > 0 {
		balances, err := coinBalancesRunner(tx, params.CoinBalances)
		if err != nil {
			metrics.RunnerErrorInc("address_coin_balances")
			return store.ImportResult{}, &store.StepError{Step: "address_coin_balances", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("address_coin_balances", len(balances))
		result.AddressCoinBalances = balances
	}

	if len(params.Blocks) > 0 {
		blockResult, err := runBlocks(tx, params.Blocks)
		if err != nil {
			metrics.RunnerErrorInc("blocks")
			return store.ImportResult{}, &store.StepError{Step: "blocks", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("blocks", len(blockResult.Blocks))
		result.Blocks = blockResult.Blocks
	}

	if len(params.BlockSecondDegreeRelations) > 0 {
		if err := blockSecondDegreeRelationsRunner(tx, params.BlockSecondDegreeRelations); err != nil {
			metrics.RunnerErrorInc("block_second_degree_relations")
			return store.ImportResult{}, &store.StepError{Step: "block_second_degree_relations", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("block_second_degree_relations", len(params.BlockSecondDegreeRelations))
	}

	if len(params.Transactions) > 0 {
		txs, err := transactionsRunner(tx, params.Transactions)
		if err != nil {
			metrics.RunnerErrorInc("transactions")
			return store.ImportResult{}, &store.StepError{Step: "transactions", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("transactions", len(txs))
		result.Transactions = txs
	}

	if len(params.TransactionForks) > 0 {
		if err := transactionForksRunner(tx, params.TransactionForks); err != nil {
			metrics.RunnerErrorInc("transaction_forks")
			return store.ImportResult{}, &store.StepError{Step: "transaction_forks", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("transaction_forks", len(params.TransactionForks))
	}

	if len(params.InternalTransactions) > 0 {
		internalTxs, err := internalTransactionsRunner(tx, params.InternalTransactions)
		if err != nil {
			metrics.RunnerErrorInc("internal_transactions")
			return store.ImportResult{}, &store.StepError{Step: "internal_transactions", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("internal_transactions", len(internalTxs))
		result.InternalTransactions = internalTxs
	}

	if len(params.Logs) > 0 {
		logs, err := logsRunner(tx, params.Logs)
		if err != nil {
			metrics.RunnerErrorInc("logs")
			return store.ImportResult{}, &store.StepError{Step: "logs", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("logs", len(logs))
		result.Logs = logs
	}

	if len(params.Tokens) > 0 {
		if err := tokensRunner(tx, params.Tokens, params.TokenOnConflict); err != nil {
			metrics.RunnerErrorInc("tokens")
			return store.ImportResult{}, &store.StepError{Step: "tokens", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("tokens", len(params.Tokens))
	}

	if len(params.TokenTransfers) > 0 {
		transfers, err := tokenTransfersRunner(tx, params.TokenTransfers)
		if err != nil {
			metrics.RunnerErrorInc("token_transfers")
			return store.ImportResult{}, &store.StepError{Step: "token_transfers", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("token_transfers", len(transfers))
		result.TokenTransfers = transfers
	}

	if len(params.TokenBalances) > 0 {
		if err := tokenBalancesRunner(tx, params.TokenBalances); err != nil {
			metrics.RunnerErrorInc("token_balances")
			return store.ImportResult{}, &store.StepError{Step: "token_balances", Reason: err}
		}
		metrics.RunnerRowsWrittenAdd("token_balances", len(params.TokenBalances))
	}

	return result, nil
}

func (imp *Importer) broadcast(ctx context.Context, result store.ImportResult) {
	groups := []struct {
		group eventbus.Group
		bt    string
		empty bool
		data  any
	}{
		{eventbus.GroupAddresses, "addresses", len(result.Addresses) == 0, result.Addresses},
		{eventbus.GroupAddressCoinBalances, "address_coin_balances", len(result.AddressCoinBalances) == 0, result.AddressCoinBalances},
		{eventbus.GroupBlocks, "blocks", len(result.Blocks) == 0, result.Blocks},
		{eventbus.GroupInternalTxs, "internal_transactions", len(result.InternalTransactions) == 0, result.InternalTransactions},
		{eventbus.GroupLogs, "logs", len(result.Logs) == 0, result.Logs},
		{eventbus.GroupTokenTransfers, "token_transfers", len(result.TokenTransfers) == 0, result.TokenTransfers},
		{eventbus.GroupTransactions, "transactions", len(result.Transactions) == 0, result.Transactions},
	}

	for _, g := range groups {
		if g.empty {
			continue
		}
		imp.bus.Publish(ctx, eventbus.Event{Group: g.group, BroadcastType: g.bt, Payload: g.data})
	}
}
