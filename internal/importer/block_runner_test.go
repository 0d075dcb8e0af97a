package importer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/ledgerflow-xyz/evmindexer/internal/eventbus"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
	"github.com/ledgerflow-xyz/evmindexer/tests/helpers"
	"github.com/stretchr/testify/require"
)

func testBlock(hash, parent common.Hash, number uint64, consensus bool) models.Block {
	return models.Block{
		Hash: hash, Number: number, ParentHash: parent,
		Miner: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Timestamp: time.Unix(1_700_000_000+int64(number), 0).UTC(),
		Difficulty: uint256.NewInt(1), TotalDifficulty: uint256.NewInt(1),
		GasUsed: 21000, GasLimit: 30_000_000, Size: 1000, Nonce: 0, Consensus: consensus,
	}
}

// Invariant 1: a consensus block upsert never loses consensus on a
// second identical upsert (idempotent conditional update).
func TestBlockRunner_IdempotentReupsertKeepsConsensus(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_blocks_idempotent")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	genesis := common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000a")
	block1 := testBlock(common.HexToHash("0xbbbb000000000000000000000000000000000000000000000000000000000b"), genesis, 1, true)

	for i := 0; i < 2; i++ {
		result, err := imp.All(context.Background(), store.ImportParams{Blocks: []models.Block{block1}})
		require.NoError(t, err)
		require.Len(t, result.Blocks, 1)
		require.True(t, result.Blocks[0].Consensus)
	}
}

// Scenario: a reorg replaces block 1's hash; the old block loses
// consensus and its collated transaction is forked back to pending.
func TestBlockRunner_ReorgForksCollatedTransaction(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_blocks_reorg")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	genesis := common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000a")
	oldHash := common.HexToHash("0xbbbb000000000000000000000000000000000000000000000000000000000b")
	newHash := common.HexToHash("0xcccc000000000000000000000000000000000000000000000000000000000c")

	oldBlock := testBlock(oldHash, genesis, 1, true)
	_, err := imp.All(context.Background(), store.ImportParams{Blocks: []models.Block{oldBlock}})
	require.NoError(t, err)

	blockNum := uint64(1)
	txIndex := uint64(0)
	txHash := common.HexToHash("0xdddd000000000000000000000000000000000000000000000000000000000d")
	collatedTx := models.Transaction{
		Hash: txHash, From: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Value: uint256.NewInt(0), Gas: 21000, GasPrice: uint256.NewInt(1),
		BlockHash: &oldHash, BlockNumber: &blockNum, Index: &txIndex, Status: models.TxStatusOk,
	}
	_, err = imp.All(context.Background(), store.ImportParams{Transactions: []models.Transaction{collatedTx}})
	require.NoError(t, err)

	newBlock := testBlock(newHash, genesis, 1, true)
	result, err := imp.All(context.Background(), store.ImportParams{Blocks: []models.Block{newBlock}})
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	require.Equal(t, newHash, result.Blocks[0].Hash)

	var status string
	var forkedBlockHash *string
	require.NoError(t, database.QueryRow(
		`SELECT status, block_hash FROM transactions WHERE hash = $1`, txHash.Hex(),
	).Scan(&status, &forkedBlockHash))
	require.Equal(t, string(models.TxStatusPending), status)
	require.Nil(t, forkedBlockHash)

	var oldConsensus bool
	require.NoError(t, database.QueryRow(
		`SELECT consensus FROM blocks WHERE hash = $1`, oldHash.Hex(),
	).Scan(&oldConsensus))
	require.False(t, oldConsensus)
}

func TestBlockRunner_SkippedWhenEmpty(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_blocks_empty")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	result, err := imp.All(context.Background(), store.ImportParams{})
	require.NoError(t, err)
	require.Empty(t, result.Blocks)
}
