package importer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/eventbus"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
	"github.com/ledgerflow-xyz/evmindexer/tests/helpers"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("error", true)
	require.NoError(t, err)
	return log
}

// Invariant 3: address upserts retain contract_code once set and
// never regress fetched_coin_balance_block_number backwards.
func TestAddressesRunner_RetainsContractCodeAndMonotonicBlockNumber(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_addresses")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	block10 := uint64(10)
	block20 := uint64(20)

	_, err := imp.All(context.Background(), store.ImportParams{
		Addresses: []store.AddressParams{{Hash: addr, FetchedBalanceBlockNumber: &block10, ContractCode: []byte{0xde, 0xad}}},
	})
	require.NoError(t, err)

	result, err := imp.All(context.Background(), store.ImportParams{
		Addresses: []store.AddressParams{{Hash: addr, FetchedBalanceBlockNumber: &block20}},
	})
	require.NoError(t, err)
	require.Len(t, result.Addresses, 1)
	require.Equal(t, []byte{0xde, 0xad}, result.Addresses[0].ContractCode)
	require.Equal(t, block20, *result.Addresses[0].FetchedBalanceBlockNumber)
}

func TestAddressesRunner_SkippedWhenEmpty(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_addresses_empty")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	result, err := imp.All(context.Background(), store.ImportParams{})
	require.NoError(t, err)
	require.Empty(t, result.Addresses)
}
