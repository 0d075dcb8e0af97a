// Package rpc defines the narrow JSON-RPC contract the rest of the
// indexer depends on. internal/rpc.Client is the concrete,
// go-ethereum-backed implementation.
package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

// NextPage reports whether a range fetch reached the chain tip.
type NextPage string

const (
	NextMore        NextPage = "more"
	NextEndOfChain  NextPage = "end_of_chain"
)

// BlockRangeResult is the RPC Client's answer to fetch_blocks_by_range.
type BlockRangeResult struct {
	Blocks                  []*types.Header
	TransactionsWithoutReceipts []*types.Transaction
	// TransactionBlockNumbers maps a transaction hash to the block
	// number it was found in, since go-ethereum's *types.Transaction
	// does not itself carry that denormalized field.
	TransactionBlockNumbers map[string]uint64
	Next                    NextPage
}

// ReceiptRequest is one element of a fetch_transaction_receipts batch.
type ReceiptRequest struct {
	Hash        [32]byte
	BlockNumber uint64
}

// ReceiptsResult is the batched response to fetch_transaction_receipts.
type ReceiptsResult struct {
	Receipts []*types.Receipt
	Logs     []*types.Log
}

// BalanceRequest is one element of a fetch_balances batch.
type BalanceRequest struct {
	Address     [20]byte
	BlockNumber uint64
}

// BalanceResult is a single fetched native-coin balance.
type BalanceResult struct {
	Address     [20]byte
	BlockNumber uint64
	Value       *string // decimal string; nil on node error for this entry
}

// InternalTxRequest is one element of a fetch_internal_transactions batch.
type InternalTxRequest struct {
	Hash        [32]byte
	BlockNumber uint64
}

// TokenBalanceRequest is one element of a fetch_token_balances batch.
type TokenBalanceRequest struct {
	Address        [20]byte
	TokenContract   [20]byte
	BlockNumber     uint64
}

// TokenBalanceResult is a single fetched token balance.
type TokenBalanceResult struct {
	Address       [20]byte
	TokenContract [20]byte
	BlockNumber   uint64
	Value         *string
}

// EthClient is the full JSON-RPC surface the indexer's components
// depend on. internal/rpc.Client implements it against a real node;
// tests implement it against fixtures.
type EthClient interface {
	// FetchBlocksByRange returns headers and not-yet-receipted
	// transactions for [first, last] (direction given by the caller).
	FetchBlocksByRange(ctx context.Context, first, last uint64) (*BlockRangeResult, error)

	// FetchBlockByTag resolves "earliest"/"latest"/"pending" to a
	// concrete block number.
	FetchBlockByTag(ctx context.Context, tag string) (uint64, error)

	// FetchTransactionReceipts batches eth_getTransactionReceipt.
	FetchTransactionReceipts(ctx context.Context, reqs []ReceiptRequest) (*ReceiptsResult, error)

	// FetchBalances batches eth_getBalance.
	FetchBalances(ctx context.Context, reqs []BalanceRequest) ([]BalanceResult, error)

	// FetchInternalTransactions batches the chain's trace method.
	FetchInternalTransactions(ctx context.Context, reqs []InternalTxRequest) ([]TraceResult, error)

	// FetchTokenBalances batches eth_call against balanceOf.
	FetchTokenBalances(ctx context.Context, reqs []TokenBalanceRequest) ([]TokenBalanceResult, error)

	// Subscribe opens a best-effort WebSocket subscription for the
	// named event ("newHeads" or "logs"). Correctness never depends
	// on delivery; callers treat ch closing as "fall back to polling".
	Subscribe(ctx context.Context, event string) (ch <-chan Notification, unsubscribe func(), err error)

	Close()
}

// TraceResult is one internal transaction decoded from a trace response.
type TraceResult struct {
	TransactionHash [32]byte
	BlockNumber     uint64
	Index           uint64
	Type            string
	CallType        string
	From            [20]byte
	To              *[20]byte
	Value           *string
	Gas             uint64
	GasUsed         uint64
	Input           []byte
	Output          []byte
	Error           string
	TraceAddress    string
}

// Notification is a pushed WebSocket payload (new head or log).
type Notification struct {
	Kind   string // "newHeads" or "logs"
	Header *types.Header
	Log    *types.Log
}
