package importer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// These helpers translate the go-ethereum/uint256 types models.go uses
// into driver.Value-safe arguments for the hand-written upsert SQL
// below, mirroring what internal/db's meddler scanners do for reads.

func hashArg(h common.Hash) string { return h.Hex() }

func hashPtrArg(h *common.Hash) any {
	if h == nil {
		return nil
	}
	return h.Hex()
}

func addressArg(a common.Address) string { return a.Hex() }

func addressPtrArg(a *common.Address) any {
	if a == nil {
		return nil
	}
	return a.Hex()
}

func uint256Arg(v *uint256.Int) any {
	if v == nil {
		return nil
	}
	return v.Dec()
}

func uint64PtrArg(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}
