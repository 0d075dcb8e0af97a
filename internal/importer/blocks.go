package importer

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/ledgerflow-xyz/evmindexer/internal/models"
	"github.com/russross/meddler"
)

// blockRunnerResult carries the outputs the Addresses/Transactions
// runners don't already expose, so All can fold them into the
// broadcast result set.
type blockRunnerResult struct {
	Blocks []models.Block
}

// runBlocks implements the consensus and reorg repair algorithm: every
// persisted row the incoming batch disagrees with is forked back to
// pending before the incoming blocks are written, so a reorg never
// leaves a transaction or log attached to two block numbers at once.
func runBlocks(tx *sql.Tx, incoming []models.Block) (blockRunnerResult, error) {
	if len(incoming) == 0 {
		return blockRunnerResult{}, nil
	}

	consensusNumbers := orderedConsensusNumbers(incoming)

	forkedTxs, err := selectForkedTransactions(tx, incoming, consensusNumbers)
	if err != nil {
		return blockRunnerResult{}, fmt.Errorf("deriving forked transactions: %w", err)
	}

	invalidNeighbourNumbers, err := selectInvalidNeighbourNumbers(tx, incoming)
	if err != nil {
		return blockRunnerResult{}, fmt.Errorf("deriving invalid neighbour numbers: %w", err)
	}

	// 1. derive_transaction_forks
	if err := deriveTransactionForks(tx, forkedTxs); err != nil {
		return blockRunnerResult{}, fmt.Errorf("derive_transaction_forks: %w", err)
	}

	// 2. lose_consensus
	if err := loseConsensus(tx, consensusNumbers); err != nil {
		return blockRunnerResult{}, fmt.Errorf("lose_consensus: %w", err)
	}

	// 3. lose_invalid_neighbour_consensus
	if err := loseConsensus(tx, invalidNeighbourNumbers); err != nil {
		return blockRunnerResult{}, fmt.Errorf("lose_invalid_neighbour_consensus: %w", err)
	}

	affectedNumbers := unionSorted(consensusNumbers, invalidNeighbourNumbers)

	// 4. remove_nonconsensus_data
	if err := removeNonconsensusData(tx, affectedNumbers); err != nil {
		return blockRunnerResult{}, fmt.Errorf("remove_nonconsensus_data: %w", err)
	}

	// 5. fork_transactions
	if err := forkTransactions(tx, forkedTxs); err != nil {
		return blockRunnerResult{}, fmt.Errorf("fork_transactions: %w", err)
	}

	affectedPairs, err := tokenBalancePairsForBlocks(tx, affectedNumbers)
	if err != nil {
		return blockRunnerResult{}, fmt.Errorf("collecting affected token balance pairs: %w", err)
	}

	// 6. delete_address_token_balances, delete_address_current_token_balances
	if err := deleteAddressTokenBalances(tx, affectedNumbers); err != nil {
		return blockRunnerResult{}, fmt.Errorf("delete_address_token_balances: %w", err)
	}
	if err := deleteAddressCurrentTokenBalances(tx, affectedPairs); err != nil {
		return blockRunnerResult{}, fmt.Errorf("delete_address_current_token_balances: %w", err)
	}

	// 7. derive_address_current_token_balances
	before, err := currentTokenBalanceHolders(tx, affectedPairs)
	if err != nil {
		return blockRunnerResult{}, fmt.Errorf("reading pre-derive holders: %w", err)
	}
	if err := deriveCurrentTokenBalances(tx, affectedPairs); err != nil {
		return blockRunnerResult{}, fmt.Errorf("derive_address_current_token_balances: %w", err)
	}
	after, err := currentTokenBalanceHolders(tx, affectedPairs)
	if err != nil {
		return blockRunnerResult{}, fmt.Errorf("reading post-derive holders: %w", err)
	}

	// 8. blocks_update_token_holder_counts
	if err := updateTokenHolderCounts(tx, before, after); err != nil {
		return blockRunnerResult{}, fmt.Errorf("blocks_update_token_holder_counts: %w", err)
	}

	// 9. delete_rewards
	if err := deleteRewards(tx, incoming, affectedNumbers); err != nil {
		return blockRunnerResult{}, fmt.Errorf("delete_rewards: %w", err)
	}

	// 10. blocks upsert
	written, err := upsertBlocks(tx, incoming)
	if err != nil {
		return blockRunnerResult{}, fmt.Errorf("blocks: %w", err)
	}

	// 11. uncle_fetched_block_second_degree_relations
	if err := markUncleFetchedRelations(tx, incoming); err != nil {
		return blockRunnerResult{}, fmt.Errorf("uncle_fetched_block_second_degree_relations: %w", err)
	}

	// 12. internal_transaction_transaction_block_number
	if err := refreshInternalTransactionBlockNumbers(tx, forkedTxs); err != nil {
		return blockRunnerResult{}, fmt.Errorf("internal_transaction_transaction_block_number: %w", err)
	}

	return blockRunnerResult{Blocks: written}, nil
}

func orderedConsensusNumbers(incoming []models.Block) []uint64 {
	set := make(map[uint64]struct{})
	for _, b := range incoming {
		if b.Consensus {
			set[b.Number] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unionSorted(a, b []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(a)+len(b))
	for _, n := range a {
		set[n] = struct{}{}
	}
	for _, n := range b {
		set[n] = struct{}{}
	}
	return sortedKeys(set)
}

// selectForkedTransactions finds persisted transactions whose
// (block_hash, block_number) disagrees with an incoming consensus
// block at the same number, or which were collated to an incoming
// consensus = false block.
func selectForkedTransactions(tx *sql.Tx, incoming []models.Block, consensusNumbers []uint64) ([]models.Transaction, error) {
	hashByNumber := make(map[uint64]string, len(incoming))
	nonConsensusHashes := make([]string, 0)
	for _, b := range incoming {
		if b.Consensus {
			hashByNumber[b.Number] = hashArg(b.Hash)
		} else {
			nonConsensusHashes = append(nonConsensusHashes, hashArg(b.Hash))
		}
	}
	if len(consensusNumbers) == 0 && len(nonConsensusHashes) == 0 {
		return nil, nil
	}

	var forked []*models.Transaction
	if err := meddler.QueryAll(tx, &forked, `
		SELECT * FROM transactions
		WHERE block_number = ANY($1) OR block_hash = ANY($2)
		ORDER BY hash
		FOR UPDATE
	`, consensusNumbers, nonConsensusHashes); err != nil {
		return nil, err
	}

	var result []models.Transaction
	for _, t := range forked {
		if t.BlockHash == nil {
			continue
		}
		wantHash, ok := hashByNumber[*t.BlockNumber]
		if ok && hashArg(*t.BlockHash) != wantHash {
			result = append(result, *t)
			continue
		}
		for _, nc := range nonConsensusHashes {
			if hashArg(*t.BlockHash) == nc {
				result = append(result, *t)
				break
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Hash.Hex() < result[j].Hash.Hex() })
	return result, nil
}

// selectInvalidNeighbourNumbers finds persisted block numbers adjacent
// to an incoming consensus block whose parent/child linkage disagrees.
func selectInvalidNeighbourNumbers(tx *sql.Tx, incoming []models.Block) ([]uint64, error) {
	set := make(map[uint64]struct{})

	for _, b := range incoming {
		if !b.Consensus {
			continue
		}

		var parentHash sql.NullString
		if err := tx.QueryRow(`SELECT hash FROM blocks WHERE number = $1 AND consensus`, b.Number-1).Scan(&parentHash); err == nil {
			if parentHash.Valid && parentHash.String != hashArg(b.ParentHash) {
				set[b.Number-1] = struct{}{}
			}
		}

		var childParentHash sql.NullString
		if err := tx.QueryRow(`SELECT parent_hash FROM blocks WHERE number = $1 AND consensus`, b.Number+1).Scan(&childParentHash); err == nil {
			if childParentHash.Valid && childParentHash.String != hashArg(b.Hash) {
				set[b.Number+1] = struct{}{}
			}
		}
	}

	return sortedKeys(set), nil
}

func deriveTransactionForks(tx *sql.Tx, forked []models.Transaction) error {
	for _, t := range forked {
		if t.BlockHash == nil || t.Index == nil {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO transaction_forks (uncle_hash, index, hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (uncle_hash, index) DO UPDATE SET hash = EXCLUDED.hash
		`, hashArg(*t.BlockHash), *t.Index, hashArg(t.Hash)); err != nil {
			return err
		}
	}
	return nil
}

func loseConsensus(tx *sql.Tx, numbers []uint64) error {
	if len(numbers) == 0 {
		return nil
	}
	_, err := tx.Exec(`
		UPDATE blocks SET consensus = false, updated_at = now()
		WHERE hash IN (SELECT hash FROM blocks WHERE number = ANY($1) ORDER BY hash FOR UPDATE)
	`, numbers)
	return err
}

func removeNonconsensusData(tx *sql.Tx, numbers []uint64) error {
	if len(numbers) == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM token_transfers WHERE block_number = ANY($1)`, numbers); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM logs WHERE block_number = ANY($1)`, numbers); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM internal_transactions WHERE block_number = ANY($1)`, numbers); err != nil {
		return err
	}
	return nil
}

func forkTransactions(tx *sql.Tx, forked []models.Transaction) error {
	for _, t := range forked {
		if _, err := tx.Exec(`
			UPDATE transactions SET
				block_hash = NULL, block_number = NULL, gas_used = NULL,
				cumulative_gas_used = NULL, index = NULL, status = $2, error = NULL,
				updated_at = now()
			WHERE hash = $1
		`, hashArg(t.Hash), string(models.TxStatusPending)); err != nil {
			return err
		}
	}
	return nil
}

func tokenBalancePairsForBlocks(tx *sql.Tx, numbers []uint64) ([][2]string, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	rows, err := tx.Query(`
		SELECT DISTINCT address_hash, token_contract_address_hash
		FROM address_token_balances
		WHERE block_number = ANY($1)
		ORDER BY address_hash, token_contract_address_hash
	`, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var addr, token string
		if err := rows.Scan(&addr, &token); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]string{addr, token})
	}
	return pairs, rows.Err()
}

func deleteAddressTokenBalances(tx *sql.Tx, numbers []uint64) error {
	if len(numbers) == 0 {
		return nil
	}
	_, err := tx.Exec(`
		DELETE FROM address_token_balances
		WHERE (address_hash, token_contract_address_hash, block_number) IN (
			SELECT address_hash, token_contract_address_hash, block_number
			FROM address_token_balances
			WHERE block_number = ANY($1)
			ORDER BY address_hash, token_contract_address_hash, block_number
			FOR UPDATE
		)
	`, numbers)
	return err
}

func deleteAddressCurrentTokenBalances(tx *sql.Tx, pairs [][2]string) error {
	for _, pair := range pairs {
		if _, err := tx.Exec(`
			DELETE FROM address_current_token_balances
			WHERE address_hash = $1 AND token_contract_address_hash = $2
		`, pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func currentTokenBalanceHolders(tx *sql.Tx, pairs [][2]string) (map[string]bool, error) {
	holders := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		var value string
		err := tx.QueryRow(`
			SELECT value FROM address_current_token_balances
			WHERE address_hash = $1 AND token_contract_address_hash = $2
		`, pair[0], pair[1]).Scan(&value)
		key := pair[0] + "/" + pair[1]
		switch {
		case err == sql.ErrNoRows:
			holders[key] = false
		case err != nil:
			return nil, err
		default:
			holders[key] = value != "0"
		}
	}
	return holders, nil
}

func updateTokenHolderCounts(tx *sql.Tx, before, after map[string]bool) error {
	deltaByToken := make(map[string]int64)
	for key, wasHolder := range before {
		isHolder := after[key]
		token := key[len(key)-42:]
		if wasHolder && !isHolder {
			deltaByToken[token]--
		} else if !wasHolder && isHolder {
			deltaByToken[token]++
		}
	}

	for token, delta := range deltaByToken {
		if delta == 0 {
			continue
		}
		if _, err := tx.Exec(`
			UPDATE tokens SET holder_count = holder_count + $2, updated_at = now()
			WHERE contract_address_hash = $1
		`, token, delta); err != nil {
			return err
		}
	}
	return nil
}

func deleteRewards(tx *sql.Tx, incoming []models.Block, affectedNumbers []uint64) error {
	for _, b := range incoming {
		if !b.Consensus {
			if _, err := tx.Exec(`DELETE FROM block_rewards WHERE block_hash = $1`, hashArg(b.Hash)); err != nil {
				return err
			}
		}
	}
	if len(affectedNumbers) > 0 {
		if _, err := tx.Exec(`DELETE FROM block_rewards WHERE block_number = ANY($1)`, affectedNumbers); err != nil {
			return err
		}
	}
	return nil
}

func upsertBlocks(tx *sql.Tx, incoming []models.Block) ([]models.Block, error) {
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].Hash.Hex() < incoming[j].Hash.Hex() })

	for _, b := range incoming {
		if _, err := tx.Exec(`
			INSERT INTO blocks (
				hash, number, parent_hash, miner, timestamp, difficulty, total_difficulty,
				gas_used, gas_limit, size, nonce, consensus, internal_transactions_indexed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (hash) DO UPDATE SET
				number = EXCLUDED.number, parent_hash = EXCLUDED.parent_hash, miner = EXCLUDED.miner,
				timestamp = EXCLUDED.timestamp, difficulty = EXCLUDED.difficulty,
				total_difficulty = EXCLUDED.total_difficulty, gas_used = EXCLUDED.gas_used,
				gas_limit = EXCLUDED.gas_limit, size = EXCLUDED.size, nonce = EXCLUDED.nonce,
				consensus = EXCLUDED.consensus,
				internal_transactions_indexed_at = EXCLUDED.internal_transactions_indexed_at,
				updated_at = now()
			WHERE
				blocks.consensus IS DISTINCT FROM EXCLUDED.consensus OR
				blocks.difficulty IS DISTINCT FROM EXCLUDED.difficulty OR
				blocks.gas_used IS DISTINCT FROM EXCLUDED.gas_used OR
				blocks.gas_limit IS DISTINCT FROM EXCLUDED.gas_limit OR
				blocks.miner IS DISTINCT FROM EXCLUDED.miner OR
				blocks.nonce IS DISTINCT FROM EXCLUDED.nonce OR
				blocks.number IS DISTINCT FROM EXCLUDED.number OR
				blocks.parent_hash IS DISTINCT FROM EXCLUDED.parent_hash OR
				blocks.size IS DISTINCT FROM EXCLUDED.size OR
				blocks.timestamp IS DISTINCT FROM EXCLUDED.timestamp OR
				blocks.total_difficulty IS DISTINCT FROM EXCLUDED.total_difficulty OR
				blocks.internal_transactions_indexed_at IS DISTINCT FROM EXCLUDED.internal_transactions_indexed_at
		`,
			hashArg(b.Hash), b.Number, hashArg(b.ParentHash), addressArg(b.Miner), b.Timestamp,
			uint256Arg(b.Difficulty), uint256Arg(b.TotalDifficulty), b.GasUsed, b.GasLimit, b.Size,
			b.Nonce, b.Consensus, b.InternalTxsIndexedAt,
		); err != nil {
			return nil, fmt.Errorf("upserting block %s: %w", b.Hash.Hex(), err)
		}
	}

	hashes := make([]string, len(incoming))
	for i, b := range incoming {
		hashes[i] = hashArg(b.Hash)
	}

	var out []*models.Block
	if err := meddler.QueryAll(tx, &out, `SELECT * FROM blocks WHERE hash = ANY($1)`, hashes); err != nil {
		return nil, fmt.Errorf("selecting blocks: %w", err)
	}
	result := make([]models.Block, len(out))
	for i, b := range out {
		result[i] = *b
	}
	return result, nil
}

func markUncleFetchedRelations(tx *sql.Tx, incoming []models.Block) error {
	for _, b := range incoming {
		if _, err := tx.Exec(`
			UPDATE block_second_degree_relations SET uncle_fetched_at = now()
			WHERE uncle_hash = $1 AND uncle_fetched_at IS NULL
		`, hashArg(b.Hash)); err != nil {
			return err
		}
	}
	return nil
}

func refreshInternalTransactionBlockNumbers(tx *sql.Tx, forked []models.Transaction) error {
	for _, t := range forked {
		if _, err := tx.Exec(`
			UPDATE internal_transactions SET block_number = t.block_number, updated_at = now()
			FROM transactions t
			WHERE internal_transactions.transaction_hash = t.hash AND t.hash = $1
		`, hashArg(t.Hash)); err != nil {
			return err
		}
	}
	return nil
}
