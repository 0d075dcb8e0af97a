// Package addressextraction derives the set of addresses touched by a
// block batch, along with the highest block number each was seen at
// and any contract code discovered for it.
package addressextraction

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
)

// Bag is the composite input to Extract: everything the block fetcher
// gathered for one processed range.
type Bag struct {
	Blocks               []*models.Block
	Transactions         []*models.Transaction
	InternalTransactions []*models.InternalTransaction
	Logs                 []*models.Log
	TokenTransfers       []*models.TokenTransfer
}

// Result is one address's aggregated view across all sources in a Bag.
type Result struct {
	Hash                      common.Address
	FetchedBalanceBlockNumber uint64
	ContractCode              []byte
}

// Extract dedups addresses across every source in bag, keeping the
// max block number seen and any contract code discovered by a
// successful `create` internal transaction.
func Extract(bag Bag) map[common.Address]Result {
	out := make(map[common.Address]Result)

	see := func(addr common.Address, blockNumber uint64) {
		r, ok := out[addr]
		if !ok {
			out[addr] = Result{Hash: addr, FetchedBalanceBlockNumber: blockNumber}
			return
		}
		if blockNumber > r.FetchedBalanceBlockNumber {
			r.FetchedBalanceBlockNumber = blockNumber
		}
		out[addr] = r
	}

	seeCode := func(addr common.Address, code []byte) {
		r := out[addr]
		if r.ContractCode == nil {
			r.ContractCode = code
		}
		out[addr] = r
	}

	for _, b := range bag.Blocks {
		see(b.Miner, b.Number)
	}

	for _, tx := range bag.Transactions {
		blockNumber := uint64(0)
		if tx.BlockNumber != nil {
			blockNumber = *tx.BlockNumber
		}
		see(tx.From, blockNumber)
		if tx.To != nil {
			see(*tx.To, blockNumber)
		}
		if tx.CreatedContractAddress != nil {
			see(*tx.CreatedContractAddress, blockNumber)
		}
	}

	for _, itx := range bag.InternalTransactions {
		see(itx.From, itx.BlockNumber)
		if itx.To != nil {
			see(*itx.To, itx.BlockNumber)
		}
		if itx.Type == models.InternalTxCreate && itx.Error == nil && itx.CreatedContractAddress != nil {
			see(*itx.CreatedContractAddress, itx.BlockNumber)
			seeCode(*itx.CreatedContractAddress, itx.CreatedContractCode)
		}
	}

	for _, l := range bag.Logs {
		see(l.Address, l.BlockNumber)
	}

	for _, tt := range bag.TokenTransfers {
		see(tt.FromAddressHash, tt.BlockNumber)
		see(tt.ToAddressHash, tt.BlockNumber)
		see(tt.TokenContractHash, tt.BlockNumber)
	}

	return out
}
