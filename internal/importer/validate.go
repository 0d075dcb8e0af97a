package importer

import (
	"errors"
	"fmt"

	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
)

// validate normalizes params before the transaction opens: empty lists
// are dropped silently, and every error found across every entity is
// collected into one ValidationError rather than failing fast on the
// first.
func validate(params store.ImportParams) (store.ImportParams, error) {
	var errs []error

	if len(params.Blocks) > 0 {
		seen := make(map[string]struct{}, len(params.Blocks))
		for _, b := range params.Blocks {
			key := b.Hash.Hex()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if b.ParentHash == b.Hash {
				errs = append(errs, fmt.Errorf("block %s: parent_hash equals hash", key))
			}
		}
	}

	for _, tx := range params.Transactions {
		if tx.BlockHash != nil && tx.BlockNumber == nil {
			errs = append(errs, fmt.Errorf("transaction %s: block_hash set without block_number", tx.Hash.Hex()))
		}
	}

	for _, addr := range params.Addresses {
		var zero [20]byte
		if addr.Hash == zero {
			errs = append(errs, errors.New("address params: zero hash"))
		}
	}

	if len(errs) > 0 {
		return store.ImportParams{}, &store.ValidationError{Errors: errs}
	}

	return dropEmpty(params), nil
}

// dropEmpty nils out any zero-length slice so runners can treat "nil"
// and "empty" identically as "skip this runner".
func dropEmpty(p store.ImportParams) store.ImportParams {
	if len(p.Addresses) == 0 {
		p.Addresses = nil
	}
	if len(p.CoinBalances) == 0 {
		p.CoinBalances = nil
	}
	if len(p.Blocks) == 0 {
		p.Blocks = nil
	}
	if len(p.BlockSecondDegreeRelations) == 0 {
		p.BlockSecondDegreeRelations = nil
	}
	if len(p.Transactions) == 0 {
		p.Transactions = nil
	}
	if len(p.TransactionForks) == 0 {
		p.TransactionForks = nil
	}
	if len(p.InternalTransactions) == 0 {
		p.InternalTransactions = nil
	}
	if len(p.Logs) == 0 {
		p.Logs = nil
	}
	if len(p.Tokens) == 0 {
		p.Tokens = nil
	}
	if len(p.TokenTransfers) == 0 {
		p.TokenTransfers = nil
	}
	if len(p.TokenBalances) == 0 {
		p.TokenBalances = nil
	}
	return p
}
