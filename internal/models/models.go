// Package models holds the meddler-tagged entity structs the Importer
// reads and writes. Hashes and addresses are go-ethereum's fixed-size
// types (meddler-converted to/from hex text by internal/db's
// HashMeddler/AddressMeddler), 256-bit values use *uint256.Int
// (converted by internal/db's Uint256Meddler).
package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Block is a candidate or canonical block header.
type Block struct {
	Hash            common.Hash  `meddler:"hash,hash"`
	Number          uint64       `meddler:"number"`
	ParentHash      common.Hash  `meddler:"parent_hash,hash"`
	Miner           common.Address `meddler:"miner,address"`
	Timestamp       time.Time    `meddler:"timestamp,utctime"`
	Difficulty      *uint256.Int `meddler:"difficulty,uint256"`
	TotalDifficulty *uint256.Int `meddler:"total_difficulty,uint256"`
	GasUsed         uint64       `meddler:"gas_used"`
	GasLimit        uint64       `meddler:"gas_limit"`
	Size            uint64       `meddler:"size"`
	Nonce           uint64       `meddler:"nonce"`
	Consensus       bool         `meddler:"consensus"`

	// InternalTxsIndexedAt is set once traces for every transaction in
	// this block have been fetched; participates in the conflict
	// predicate of the blocks runner.
	InternalTxsIndexedAt *time.Time `meddler:"internal_transactions_indexed_at,utctimez"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
	UpdatedAt  time.Time `meddler:"updated_at,utctime"`
}

// Transaction is both the pending and collated shape; collated fields
// are pointers so they can be null while pending.
type Transaction struct {
	Hash  common.Hash     `meddler:"hash,hash"`
	Nonce uint64          `meddler:"nonce"`
	From  common.Address  `meddler:"from_address,address"`
	To    *common.Address `meddler:"to_address,address"`
	Value *uint256.Int    `meddler:"value,uint256"`
	Gas   uint64          `meddler:"gas"`
	GasPrice *uint256.Int `meddler:"gas_price,uint256"`
	Input    []byte       `meddler:"input"`
	V        uint64       `meddler:"v"`
	R        *uint256.Int `meddler:"r,uint256"`
	S        *uint256.Int `meddler:"s,uint256"`

	BlockHash         *common.Hash `meddler:"block_hash,hash"`
	BlockNumber       *uint64      `meddler:"block_number"`
	Index             *uint64      `meddler:"index"`
	CumulativeGasUsed *uint64      `meddler:"cumulative_gas_used"`
	GasUsed           *uint64      `meddler:"gas_used"`
	Status            Status       `meddler:"status"`
	Error             *string      `meddler:"error"`
	CreatedContractAddress *common.Address `meddler:"created_contract_address_hash,address"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
	UpdatedAt  time.Time `meddler:"updated_at,utctime"`
}

// Status is a sealed {ok, error, pending, fatal} sum, expressed as a thin
// string enum so it round-trips through a TEXT column.
type Status = TxStatus

// Log is an event emitted by a transaction.
type Log struct {
	TransactionHash common.Hash    `meddler:"transaction_hash,hash"`
	Index           uint64         `meddler:"index"`
	Address         common.Address `meddler:"address_hash,address"`
	Data            []byte         `meddler:"data"`
	Topic0          *common.Hash   `meddler:"first_topic,hash"`
	Topic1          *common.Hash   `meddler:"second_topic,hash"`
	Topic2          *common.Hash   `meddler:"third_topic,hash"`
	Topic3          *common.Hash   `meddler:"fourth_topic,hash"`
	BlockNumber     uint64         `meddler:"block_number"`
	BlockHash       common.Hash    `meddler:"block_hash,hash"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
	UpdatedAt  time.Time `meddler:"updated_at,utctime"`
}

// InternalTransaction is a trace of a call/create inside a top-level
// transaction.
type InternalTransaction struct {
	TransactionHash common.Hash    `meddler:"transaction_hash,hash"`
	Index           uint64         `meddler:"index"`
	Type            InternalTxType `meddler:"type"`
	CallType        *string        `meddler:"call_type"`
	From            common.Address `meddler:"from_address_hash,address"`
	To              *common.Address `meddler:"to_address_hash,address"`
	Value           *uint256.Int   `meddler:"value,uint256"`
	Gas             *uint64        `meddler:"gas"`
	GasUsed         *uint64        `meddler:"gas_used"`
	Input           []byte         `meddler:"input"`
	Output          []byte         `meddler:"output"`
	CreatedContractAddress *common.Address `meddler:"created_contract_address_hash,address"`
	CreatedContractCode    []byte          `meddler:"created_contract_code"`
	TraceAddress    string         `meddler:"trace_address"`
	Error           *string        `meddler:"error"`
	BlockNumber     uint64         `meddler:"block_number"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
	UpdatedAt  time.Time `meddler:"updated_at,utctime"`
}

// Address is the hash-keyed aggregate produced by Address Extraction
// and enriched asynchronously by BalanceFetcher.
type Address struct {
	Hash                      common.Address `meddler:"hash,address,pk"`
	FetchedBalance            *uint256.Int   `meddler:"fetched_coin_balance,uint256"`
	FetchedBalanceBlockNumber *uint64        `meddler:"fetched_coin_balance_block_number"`
	ContractCode              []byte         `meddler:"contract_code"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
	UpdatedAt  time.Time `meddler:"updated_at,utctime"`
}

// CoinBalance is a (address, block_number) snapshot of native-coin
// balance, written by the balance fetcher once the value is fetched.
type CoinBalance struct {
	AddressHash    common.Address `meddler:"address_hash,address"`
	BlockNumber    uint64         `meddler:"block_number"`
	Value          *uint256.Int   `meddler:"value,uint256"`
	ValueFetchedAt *time.Time     `meddler:"value_fetched_at,utctimez"`
}

// TokenBalance is a (address, token_contract, block_number) snapshot.
type TokenBalance struct {
	AddressHash       common.Address `meddler:"address_hash,address"`
	TokenContractHash common.Address `meddler:"token_contract_address_hash,address"`
	BlockNumber       uint64         `meddler:"block_number"`
	Value             *uint256.Int   `meddler:"value,uint256"`
	ValueFetchedAt    *time.Time     `meddler:"value_fetched_at,utctimez"`
}

// CurrentTokenBalance is the (address, token) projection of the
// TokenBalance row with the maximum block_number.
type CurrentTokenBalance struct {
	AddressHash       common.Address `meddler:"address_hash,address"`
	TokenContractHash common.Address `meddler:"token_contract_address_hash,address"`
	BlockNumber       uint64         `meddler:"block_number"`
	Value             *uint256.Int   `meddler:"value,uint256"`
}

// Token is contract metadata. The Importer's tokens runner inserts the
// key together with name, symbol and decimals; on conflict it keeps
// the stored row or replaces those fields, per TokenOnConflict.
type Token struct {
	ContractAddressHash common.Address `meddler:"contract_address_hash,address,pk"`
	Name                *string        `meddler:"name"`
	Symbol              *string        `meddler:"symbol"`
	Decimals            *uint8         `meddler:"decimals"`
	HolderCount         int64          `meddler:"holder_count"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
	UpdatedAt  time.Time `meddler:"updated_at,utctime"`
}

// TokenTransfer is a decoded ERC-20/721/1155 transfer event, unique on
// (transaction_hash, log_index).
type TokenTransfer struct {
	TransactionHash    common.Hash    `meddler:"transaction_hash,hash"`
	LogIndex           uint64         `meddler:"log_index"`
	FromAddressHash    common.Address `meddler:"from_address_hash,address"`
	ToAddressHash      common.Address `meddler:"to_address_hash,address"`
	TokenContractHash  common.Address `meddler:"token_contract_address_hash,address"`
	Amount             *uint256.Int   `meddler:"amount,uint256"`
	TokenID            *uint256.Int   `meddler:"token_id,uint256"`
	BlockNumber        uint64         `meddler:"block_number"`
	BlockHash          common.Hash    `meddler:"block_hash,hash"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
}

// BlockSecondDegreeRelation records an uncle reference.
type BlockSecondDegreeRelation struct {
	NephewHash common.Hash `meddler:"nephew_hash,hash"`
	UncleHash  common.Hash `meddler:"uncle_hash,hash"`
	UncleFetchedAt *time.Time `meddler:"uncle_fetched_at,utctimez"`
}

// TransactionFork snapshots a transaction that lost consensus.
type TransactionFork struct {
	UncleHash       common.Hash `meddler:"uncle_hash,hash"`
	Index           uint64      `meddler:"index"`
	TransactionHash common.Hash `meddler:"hash,hash"`

	InsertedAt time.Time `meddler:"inserted_at,utctime"`
}

// BlockReward is keyed by (address_hash, address_type, block_hash) and
// is deleted whenever its block loses consensus; the Importer does not
// write new rows.
type BlockReward struct {
	AddressHash common.Address `meddler:"address_hash,address"`
	AddressType string         `meddler:"address_type"`
	BlockHash   common.Hash    `meddler:"block_hash,hash"`
	BlockNumber uint64         `meddler:"block_number"`
	Reward      *uint256.Int   `meddler:"reward,uint256"`
}
