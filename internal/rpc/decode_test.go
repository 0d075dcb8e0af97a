package rpc

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlocks_HexRoundTrip(t *testing.T) {
	header := &types.Header{
		ParentHash: common.HexToHash("0xaa"), Coinbase: common.HexToAddress("0xbb"),
		Number: big.NewInt(42), GasLimit: 30_000_000, GasUsed: 21000, Time: 1_700_000_000,
		Difficulty: big.NewInt(1),
	}

	blocks := DecodeBlocks([]*types.Header{header}, true)
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(42), blocks[0].Number)
	require.Equal(t, header.Hash(), blocks[0].Hash)
	require.True(t, blocks[0].Consensus)
}

func TestJoinTransactions_ErrorsOnMissingReceipt(t *testing.T) {
	tx := types.NewTransaction(0, common.HexToAddress("0xcc"), big.NewInt(0), 21000, big.NewInt(1), nil)
	_, err := JoinTransactions([]*types.Transaction{tx}, nil)
	require.Error(t, err)
}

func TestJoinTransactions_ReceiptStatusBoundary(t *testing.T) {
	tx := types.NewTransaction(0, common.HexToAddress("0xcc"), big.NewInt(0), 21000, big.NewInt(1), nil)
	receipt := &types.Receipt{
		TxHash: tx.Hash(), Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1),
		BlockHash: common.HexToHash("0xdd"),
	}

	txs, err := JoinTransactions([]*types.Transaction{tx}, []*types.Receipt{receipt})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "error", string(txs[0].Status))

	receipt.Status = types.ReceiptStatusSuccessful
	txs, err = JoinTransactions([]*types.Transaction{tx}, []*types.Receipt{receipt})
	require.NoError(t, err)
	require.Equal(t, "ok", string(txs[0].Status))
}

func TestJoinTransactions_PreByzantiumDerivesFromGasBudget(t *testing.T) {
	tx := types.NewTransaction(0, common.HexToAddress("0xcc"), big.NewInt(0), 21000, big.NewInt(1), nil)
	receipt := &types.Receipt{
		TxHash: tx.Hash(), PostState: []byte{0x01, 0x02, 0x03}, GasUsed: 21000,
		BlockNumber: big.NewInt(1), BlockHash: common.HexToHash("0xdd"),
	}

	txs, err := JoinTransactions([]*types.Transaction{tx}, []*types.Receipt{receipt})
	require.NoError(t, err)
	require.Equal(t, "error", string(txs[0].Status))

	receipt.GasUsed = 20000
	txs, err = JoinTransactions([]*types.Transaction{tx}, []*types.Receipt{receipt})
	require.NoError(t, err)
	require.Equal(t, "ok", string(txs[0].Status))
}

func TestJoinTransactions_AbsentStatusAndPostStateIsFatal(t *testing.T) {
	tx := types.NewTransaction(0, common.HexToAddress("0xcc"), big.NewInt(0), 21000, big.NewInt(1), nil)
	receipt := &types.Receipt{
		TxHash: tx.Hash(), Status: 2, BlockNumber: big.NewInt(1),
		BlockHash: common.HexToHash("0xdd"),
	}

	txs, err := JoinTransactions([]*types.Transaction{tx}, []*types.Receipt{receipt})
	require.NoError(t, err)
	require.Equal(t, "fatal", string(txs[0].Status))
}

func TestDecodeLogs_TopicsPositional(t *testing.T) {
	log := &types.Log{
		Address: common.HexToAddress("0xee"),
		Topics:  []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2")},
	}
	receipt := &types.Receipt{Logs: []*types.Log{log}}

	logs := DecodeLogs([]*types.Receipt{receipt})
	require.Len(t, logs, 1)
	require.Equal(t, common.HexToHash("0x1"), *logs[0].Topic0)
	require.Equal(t, common.HexToHash("0x2"), *logs[0].Topic1)
	require.Nil(t, logs[0].Topic2)
}
