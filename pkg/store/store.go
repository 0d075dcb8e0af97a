// Package store defines the narrow persistence contract the Importer
// depends on. internal/importer implements it against Postgres, and
// its tests run against a live Postgres database.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
)

// AddressParams is the Address Extraction output shape the Importer's
// Addresses runner consumes: the fetched_coin_balance_block_number is
// not a stored column on Address itself.
type AddressParams struct {
	Hash                      common.Address
	FetchedBalanceBlockNumber *uint64
	ContractCode              []byte
}

// TokenOnConflict selects the Tokens runner's conflict policy.
type TokenOnConflict string

const (
	TokenOnConflictNothing     TokenOnConflict = "nothing"
	TokenOnConflictReplaceAll  TokenOnConflict = "replace_all"
)

// ImportParams is the full set of optional runner inputs to All.
// Absent (nil) fields skip their runner; empty-but-non-nil slices are
// dropped silently.
type ImportParams struct {
	Addresses                 []AddressParams
	CoinBalances              []models.CoinBalance
	Blocks                    []models.Block
	BlockSecondDegreeRelations []models.BlockSecondDegreeRelation
	Transactions              []models.Transaction
	TransactionForks          []models.TransactionFork
	InternalTransactions      []models.InternalTransaction
	Logs                      []models.Log
	Tokens                    []models.Token
	TokenTransfers            []models.TokenTransfer
	TokenBalances             []models.TokenBalance
	TokenOnConflict           TokenOnConflict

	// Broadcast requests event-bus delivery of non-empty result groups
	// after a successful commit.
	Broadcast bool
}

// ImportResult mirrors the result groups a successful commit can broadcast.
type ImportResult struct {
	Addresses            []models.Address
	AddressCoinBalances  []models.CoinBalance
	Blocks               []models.Block
	InternalTransactions []models.InternalTransaction
	Logs                 []models.Log
	TokenTransfers       []models.TokenTransfer
	Transactions         []models.Transaction
}

// StepError reports which runner failed and why.
type StepError struct {
	Step    string
	Reason  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Reason.Error() }
func (e *StepError) Unwrap() error { return e.Reason }

// ValidationError collects every changeset validation failure found
// before the transaction opened.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msg := "changeset validation failed"
	for _, err := range e.Errors {
		msg += "; " + err.Error()
	}
	return msg
}

// Importer atomically ingests a complete block batch: every present
// runner in ImportParams runs inside one DB transaction, in a fixed,
// FK-safe order.
type Importer interface {
	All(ctx context.Context, params ImportParams) (ImportResult, error)
}
