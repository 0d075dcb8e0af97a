package db

import (
	"database/sql"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("uint256", Uint256Meddler{})
}

// Uint256Meddler persists *uint256.Int fields as base-10 NUMERIC text,
// the natural column type for values that can exceed int64/float64
// precision (transaction value, gas price, block difficulty).
type Uint256Meddler struct{}

func (u Uint256Meddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (u Uint256Meddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(**uint256.Int)
	if !ok {
		return fmt.Errorf("expected **uint256.Int, got %T", fieldAddr)
	}

	if !ns.Valid {
		*ptr = nil
		return nil
	}

	val, err := uint256.FromDecimal(ns.String)
	if err != nil {
		return fmt.Errorf("parsing uint256 column %q: %w", ns.String, err)
	}
	*ptr = val
	return nil
}

func (u Uint256Meddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	ptr, ok := field.(*uint256.Int)
	if !ok {
		return nil, fmt.Errorf("expected *uint256.Int, got %T", field)
	}
	if ptr == nil {
		return nil, nil
	}
	return ptr.Dec(), nil
}
