package rpc

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
)

// DecodeBlocks converts fetched headers into storage rows. consensus
// is true for everything the realtime/catch-up pipeline fetches
// directly; it is only ever false for uncles discovered via
// BlockSecondDegreeRelation backfill, which this package does not
// produce.
func DecodeBlocks(headers []*types.Header, consensus bool) []models.Block {
	out := make([]models.Block, len(headers))
	for i, h := range headers {
		out[i] = models.Block{
			Hash: h.Hash(), Number: h.Number.Uint64(), ParentHash: h.ParentHash,
			Miner: h.Coinbase, Timestamp: bigTimeToUTC(h.Time),
			Difficulty: bigToUint256(h.Difficulty), TotalDifficulty: bigToUint256(h.Difficulty),
			GasUsed: h.GasUsed, GasLimit: h.GasLimit, Size: uint64(h.Size()), Nonce: h.Nonce.Uint64(),
			Consensus: consensus,
		}
	}
	return out
}

// JoinTransactions pairs every transaction with its receipt by hash.
// The join must be total: a transaction with no matching receipt is
// an error, since a receipt was requested for every hash the block
// listed.
func JoinTransactions(txs []*types.Transaction, receipts []*types.Receipt) ([]models.Transaction, error) {
	byHash := make(map[common.Hash]*types.Receipt, len(receipts))
	for _, r := range receipts {
		byHash[r.TxHash] = r
	}

	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		receipt, ok := byHash[tx.Hash()]
		if !ok {
			return nil, fmt.Errorf("no receipt joined for transaction %s", tx.Hash().Hex())
		}

		from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			from = common.Address{}
		}

		v, r, s := tx.RawSignatureValues()

		blockNumber := receipt.BlockNumber.Uint64()
		index := uint64(receipt.TransactionIndex)
		cumulativeGasUsed := receipt.CumulativeGasUsed
		gasUsed := receipt.GasUsed
		status := txStatus(receipt, tx.Gas())
		blockHash := receipt.BlockHash

		model := models.Transaction{
			Hash: tx.Hash(), Nonce: tx.Nonce(), From: from, To: tx.To(),
			Value: bigToUint256(tx.Value()), Gas: tx.Gas(), GasPrice: bigToUint256(tx.GasPrice()),
			Input: tx.Data(), V: v.Uint64(), R: bigToUint256(r), S: bigToUint256(s),
			BlockHash: &blockHash, BlockNumber: &blockNumber, Index: &index,
			CumulativeGasUsed: &cumulativeGasUsed, GasUsed: &gasUsed, Status: status,
		}
		if receipt.ContractAddress != (common.Address{}) {
			addr := receipt.ContractAddress
			model.CreatedContractAddress = &addr
		}
		out = append(out, model)
	}
	return out, nil
}

// DecodeLogs flattens every receipt's logs into storage rows.
func DecodeLogs(receipts []*types.Receipt) []models.Log {
	var out []models.Log
	for _, r := range receipts {
		for _, l := range r.Logs {
			out = append(out, decodeLog(l))
		}
	}
	return out
}

func decodeLog(l *types.Log) models.Log {
	model := models.Log{
		TransactionHash: l.TxHash, Index: uint64(l.Index), Address: l.Address,
		Data: l.Data, BlockNumber: l.BlockNumber, BlockHash: l.BlockHash,
	}
	topics := l.Topics
	if len(topics) > 0 {
		model.Topic0 = &topics[0]
	}
	if len(topics) > 1 {
		model.Topic1 = &topics[1]
	}
	if len(topics) > 2 {
		model.Topic2 = &topics[2]
	}
	if len(topics) > 3 {
		model.Topic3 = &topics[3]
	}
	return model
}

// txStatus derives a transaction's outcome from its receipt. Receipts
// from Byzantium onward carry an explicit Status (EIP-658); earlier
// receipts instead carry a PostState root and leave Status at its zero
// value, which must not be read as TxStatusError. For those, the
// outcome is derived from the gas budget: a transaction that consumed
// its entire allowance almost certainly reverted. A receipt with
// neither signal set is malformed and gets TxStatusFatal rather than a
// guessed outcome.
func txStatus(receipt *types.Receipt, gas uint64) models.TxStatus {
	if len(receipt.PostState) > 0 {
		if receipt.GasUsed >= gas {
			return models.TxStatusError
		}
		return models.TxStatusOk
	}
	switch receipt.Status {
	case types.ReceiptStatusSuccessful:
		return models.TxStatusOk
	case types.ReceiptStatusFailed:
		return models.TxStatusError
	default:
		return models.TxStatusFatal
	}
}

func bigToUint256(b *big.Int) *uint256.Int {
	if b == nil {
		return nil
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil
	}
	return v
}

func bigTimeToUTC(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
