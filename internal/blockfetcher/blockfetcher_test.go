package blockfetcher

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/sequence"
	"github.com/ledgerflow-xyz/evmindexer/tests/helpers"
	"github.com/stretchr/testify/require"
)

func insertConsensusBlock(t *testing.T, database *sql.DB, number uint64) {
	t.Helper()
	hash := common.BigToHash(new(big.Int).SetUint64(number))
	_, err := database.Exec(`
		INSERT INTO blocks (hash, number, consensus, parent_hash, miner, gas_used, gas_limit, size, nonce, timestamp)
		VALUES ($1, $2, true, $1, $1, 0, 0, 0, 0, now())
	`, hash.Hex(), number)
	require.NoError(t, err)
}

// Invariant: missing_block_number_ranges reports exactly the gaps
// behind the tip, in descending order, never the tip itself when it
// is present.
func TestMissingBlockNumberRanges_FindsGapsDescending(t *testing.T) {
	database := helpers.NewTestDB(t, "blockfetcher_gaps")

	insertConsensusBlock(t, database, 10)
	insertConsensusBlock(t, database, 7)
	insertConsensusBlock(t, database, 6)
	insertConsensusBlock(t, database, 2)

	ranges, err := missingBlockNumberRanges(context.Background(), database, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []sequence.Range{
		{First: 9, Last: 8},
		{First: 5, Last: 3},
		{First: 1, Last: 0},
	}, ranges)
}

func TestMissingBlockNumberRanges_EmptyWhenFullyIndexed(t *testing.T) {
	database := helpers.NewTestDB(t, "blockfetcher_no_gaps")

	for n := uint64(0); n <= 5; n++ {
		insertConsensusBlock(t, database, n)
	}

	ranges, err := missingBlockNumberRanges(context.Background(), database, 5, 0)
	require.NoError(t, err)
	require.Empty(t, ranges)
}
