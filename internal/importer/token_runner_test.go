package importer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/ledgerflow-xyz/evmindexer/internal/eventbus"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
	"github.com/ledgerflow-xyz/evmindexer/tests/helpers"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// Invariant 5: Tokens runner's on_conflict=nothing policy never
// overwrites metadata already enriched out of band; replace_all does.
func TestTokensRunner_OnConflictPolicy(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_tokens")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	contract := common.HexToAddress("0x4444444444444444444444444444444444444444")

	_, err := imp.All(context.Background(), store.ImportParams{
		Tokens: []models.Token{{ContractAddressHash: contract, Name: strPtr("Token"), Symbol: strPtr("TOK")}},
	})
	require.NoError(t, err)

	_, err = imp.All(context.Background(), store.ImportParams{
		Tokens:          []models.Token{{ContractAddressHash: contract, Name: strPtr("Overwritten")}},
		TokenOnConflict: store.TokenOnConflictNothing,
	})
	require.NoError(t, err)

	var name string
	require.NoError(t, database.QueryRow(`SELECT name FROM tokens WHERE contract_address_hash = $1`, contract.Hex()).Scan(&name))
	require.Equal(t, "Token", name)

	_, err = imp.All(context.Background(), store.ImportParams{
		Tokens:          []models.Token{{ContractAddressHash: contract, Name: strPtr("Overwritten")}},
		TokenOnConflict: store.TokenOnConflictReplaceAll,
	})
	require.NoError(t, err)

	require.NoError(t, database.QueryRow(`SELECT name FROM tokens WHERE contract_address_hash = $1`, contract.Hex()).Scan(&name))
	require.Equal(t, "Overwritten", name)
}

func TestTokenTransfersRunner_UpsertByTransactionAndLogIndex(t *testing.T) {
	database := helpers.NewTestDB(t, "importer_token_transfers")
	imp := New(database, eventbus.New(testLogger(t)), testLogger(t))

	contract := common.HexToAddress("0x5555555555555555555555555555555555555555")
	_, err := imp.All(context.Background(), store.ImportParams{
		Tokens: []models.Token{{ContractAddressHash: contract}},
	})
	require.NoError(t, err)

	blockHash := common.HexToHash("0xeeee000000000000000000000000000000000000000000000000000000000e")
	txHash := common.HexToHash("0xffff000000000000000000000000000000000000000000000000000000000f")
	transfer := models.TokenTransfer{
		TransactionHash: txHash, LogIndex: 0,
		FromAddressHash: common.HexToAddress("0x6666666666666666666666666666666666666666"),
		ToAddressHash:   common.HexToAddress("0x7777777777777777777777777777777777777777"),
		TokenContractHash: contract, Amount: uint256.NewInt(100), BlockNumber: 5, BlockHash: blockHash,
	}

	result, err := imp.All(context.Background(), store.ImportParams{TokenTransfers: []models.TokenTransfer{transfer}})
	require.NoError(t, err)
	require.Len(t, result.TokenTransfers, 1)

	transfer.Amount = uint256.NewInt(200)
	result, err = imp.All(context.Background(), store.ImportParams{TokenTransfers: []models.TokenTransfer{transfer}})
	require.NoError(t, err)
	require.Equal(t, "200", result.TokenTransfers[0].Amount.Dec())
}
