package importer

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/ledgerflow-xyz/evmindexer/internal/models"
	"github.com/ledgerflow-xyz/evmindexer/pkg/store"
	"github.com/russross/meddler"
)

// addressesRunner upserts by hash: retains the earliest inserted_at
// and max updated_at, and only fills contract_code when previously
// null.
func addressesRunner(tx *sql.Tx, params []store.AddressParams) ([]models.Address, error) {
	if len(params) == 0 {
		return nil, nil
	}

	sort.Slice(params, func(i, j int) bool { return params[i].Hash.Hex() < params[j].Hash.Hex() })

	for _, p := range params {
		if _, err := tx.Exec(`
			INSERT INTO addresses (hash, fetched_coin_balance_block_number, contract_code)
			VALUES ($1, $2, $3)
			ON CONFLICT (hash) DO UPDATE SET
				fetched_coin_balance_block_number = GREATEST(
					COALESCE(addresses.fetched_coin_balance_block_number, 0),
					COALESCE(EXCLUDED.fetched_coin_balance_block_number, 0)),
				contract_code = COALESCE(addresses.contract_code, EXCLUDED.contract_code),
				updated_at = now()
		`, addressArg(p.Hash), uint64PtrArg(p.FetchedBalanceBlockNumber), p.ContractCode); err != nil {
			return nil, fmt.Errorf("upserting address %s: %w", p.Hash.Hex(), err)
		}
	}

	hashes := make([]string, len(params))
	for i, p := range params {
		hashes[i] = addressArg(p.Hash)
	}
	return selectAddresses(tx, hashes)
}

func selectAddresses(tx *sql.Tx, hashes []string) ([]models.Address, error) {
	var out []*models.Address
	if err := meddler.QueryAll(tx, &out,
		`SELECT * FROM addresses WHERE hash = ANY($1)`, hashes); err != nil {
		return nil, fmt.Errorf("selecting addresses: %w", err)
	}
	result := make([]models.Address, len(out))
	for i, a := range out {
		result[i] = *a
	}
	return result, nil
}

// coinBalancesRunner upserts by (address_hash, block_number).
func coinBalancesRunner(tx *sql.Tx, rows []models.CoinBalance) ([]models.CoinBalance, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO address_coin_balances (address_hash, block_number, value, value_fetched_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (address_hash, block_number) DO UPDATE SET
				value = EXCLUDED.value,
				value_fetched_at = EXCLUDED.value_fetched_at
		`, addressArg(r.AddressHash), r.BlockNumber, uint256Arg(r.Value), r.ValueFetchedAt); err != nil {
			return nil, fmt.Errorf("upserting coin balance %s/%d: %w", r.AddressHash.Hex(), r.BlockNumber, err)
		}
	}

	return rows, nil
}

// blockSecondDegreeRelationsRunner upserts uncles by (nephew, uncle).
func blockSecondDegreeRelationsRunner(tx *sql.Tx, rows []models.BlockSecondDegreeRelation) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO block_second_degree_relations (nephew_hash, uncle_hash, uncle_fetched_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (nephew_hash, uncle_hash) DO UPDATE SET
				uncle_fetched_at = COALESCE(block_second_degree_relations.uncle_fetched_at, EXCLUDED.uncle_fetched_at)
		`, hashArg(r.NephewHash), hashArg(r.UncleHash), r.UncleFetchedAt); err != nil {
			return fmt.Errorf("upserting block second degree relation: %w", err)
		}
	}

	return nil
}

// transactionsRunner upserts by hash. A pure-pending insert (no
// block_hash) never overwrites an already-collated row; a collated
// incoming row (block_hash set) always replaces.
func transactionsRunner(tx *sql.Tx, rows []models.Transaction) ([]models.Transaction, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	for _, r := range rows {
		if r.BlockHash != nil {
			if _, err := tx.Exec(`
				INSERT INTO transactions (
					hash, nonce, from_address, to_address, value, gas, gas_price, input, v, r, s,
					block_hash, block_number, index, cumulative_gas_used, gas_used, status, error,
					created_contract_address_hash
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
				ON CONFLICT (hash) DO UPDATE SET
					nonce = EXCLUDED.nonce, to_address = EXCLUDED.to_address, value = EXCLUDED.value,
					gas = EXCLUDED.gas, gas_price = EXCLUDED.gas_price, input = EXCLUDED.input,
					v = EXCLUDED.v, r = EXCLUDED.r, s = EXCLUDED.s,
					block_hash = EXCLUDED.block_hash, block_number = EXCLUDED.block_number,
					index = EXCLUDED.index, cumulative_gas_used = EXCLUDED.cumulative_gas_used,
					gas_used = EXCLUDED.gas_used, status = EXCLUDED.status, error = EXCLUDED.error,
					created_contract_address_hash = EXCLUDED.created_contract_address_hash,
					updated_at = now()
			`,
				hashArg(r.Hash), r.Nonce, addressArg(r.From), addressPtrArg(r.To), uint256Arg(r.Value),
				r.Gas, uint256Arg(r.GasPrice), r.Input, r.V, uint256Arg(r.R), uint256Arg(r.S),
				hashPtrArg(r.BlockHash), uint64PtrArg(r.BlockNumber), uint64PtrArg(r.Index),
				uint64PtrArg(r.CumulativeGasUsed), uint64PtrArg(r.GasUsed), string(r.Status), r.Error,
				addressPtrArg(r.CreatedContractAddress),
			); err != nil {
				return nil, fmt.Errorf("upserting transaction %s: %w", r.Hash.Hex(), err)
			}
			continue
		}

		if _, err := tx.Exec(`
			INSERT INTO transactions (hash, nonce, from_address, to_address, value, gas, gas_price, input, v, r, s, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (hash) DO NOTHING
		`,
			hashArg(r.Hash), r.Nonce, addressArg(r.From), addressPtrArg(r.To), uint256Arg(r.Value),
			r.Gas, uint256Arg(r.GasPrice), r.Input, r.V, uint256Arg(r.R), uint256Arg(r.S), string(models.TxStatusPending),
		); err != nil {
			return nil, fmt.Errorf("inserting pending transaction %s: %w", r.Hash.Hex(), err)
		}
	}

	hashes := make([]string, len(rows))
	for i, r := range rows {
		hashes[i] = hashArg(r.Hash)
	}

	var out []*models.Transaction
	if err := meddler.QueryAll(tx, &out, `SELECT * FROM transactions WHERE hash = ANY($1)`, hashes); err != nil {
		return nil, fmt.Errorf("selecting transactions: %w", err)
	}
	result := make([]models.Transaction, len(out))
	for i, t := range out {
		result[i] = *t
	}
	return result, nil
}

// transactionForksRunner upserts by (uncle_hash, index); hash is
// replaced on conflict.
func transactionForksRunner(tx *sql.Tx, rows []models.TransactionFork) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO transaction_forks (uncle_hash, index, hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (uncle_hash, index) DO UPDATE SET hash = EXCLUDED.hash
		`, hashArg(r.UncleHash), r.Index, hashArg(r.TransactionHash)); err != nil {
			return fmt.Errorf("upserting transaction fork: %w", err)
		}
	}

	return nil
}

// internalTransactionsRunner upserts by (transaction_hash, index).
func internalTransactionsRunner(tx *sql.Tx, rows []models.InternalTransaction) ([]models.InternalTransaction, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO internal_transactions (
				transaction_hash, index, type, call_type, from_address_hash, to_address_hash,
				value, gas, gas_used, input, output, created_contract_address_hash,
				created_contract_code, trace_address, error, block_number
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (transaction_hash, index) DO UPDATE SET
				type = EXCLUDED.type, call_type = EXCLUDED.call_type,
				from_address_hash = EXCLUDED.from_address_hash, to_address_hash = EXCLUDED.to_address_hash,
				value = EXCLUDED.value, gas = EXCLUDED.gas, gas_used = EXCLUDED.gas_used,
				input = EXCLUDED.input, output = EXCLUDED.output,
				created_contract_address_hash = EXCLUDED.created_contract_address_hash,
				created_contract_code = EXCLUDED.created_contract_code,
				trace_address = EXCLUDED.trace_address, error = EXCLUDED.error,
				block_number = EXCLUDED.block_number, updated_at = now()
		`,
			hashArg(r.TransactionHash), r.Index, string(r.Type), r.CallType, addressArg(r.From),
			addressPtrArg(r.To), uint256Arg(r.Value), r.Gas, r.GasUsed, r.Input, r.Output,
			addressPtrArg(r.CreatedContractAddress), r.CreatedContractCode, r.TraceAddress, r.Error,
			r.BlockNumber,
		); err != nil {
			return nil, fmt.Errorf("upserting internal transaction %s/%d: %w", r.TransactionHash.Hex(), r.Index, err)
		}
	}

	return rows, nil
}

// logsRunner upserts by (transaction_hash, index).
func logsRunner(tx *sql.Tx, rows []models.Log) ([]models.Log, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO logs (
				transaction_hash, index, address_hash, data, first_topic, second_topic,
				third_topic, fourth_topic, block_number, block_hash
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (transaction_hash, index) DO UPDATE SET
				address_hash = EXCLUDED.address_hash, data = EXCLUDED.data,
				first_topic = EXCLUDED.first_topic, second_topic = EXCLUDED.second_topic,
				third_topic = EXCLUDED.third_topic, fourth_topic = EXCLUDED.fourth_topic,
				block_number = EXCLUDED.block_number, block_hash = EXCLUDED.block_hash,
				updated_at = now()
		`,
			hashArg(r.TransactionHash), r.Index, addressArg(r.Address), r.Data,
			hashPtrArg(r.Topic0), hashPtrArg(r.Topic1), hashPtrArg(r.Topic2), hashPtrArg(r.Topic3),
			r.BlockNumber, hashArg(r.BlockHash),
		); err != nil {
			return nil, fmt.Errorf("upserting log %s/%d: %w", r.TransactionHash.Hex(), r.Index, err)
		}
	}

	return rows, nil
}

// tokensRunner upserts by contract_address_hash with a configurable
// on-conflict policy.
func tokensRunner(tx *sql.Tx, rows []models.Token, onConflict store.TokenOnConflict) error {
	if len(rows) == 0 {
		return nil
	}
	if onConflict == "" {
		onConflict = store.TokenOnConflictNothing
	}

	conflictClause := "DO NOTHING"
	if onConflict == store.TokenOnConflictReplaceAll {
		conflictClause = `DO UPDATE SET name = EXCLUDED.name, symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals, updated_at = now()`
	}

	for _, r := range rows {
		if _, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO tokens (contract_address_hash, name, symbol, decimals)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (contract_address_hash) %s
		`, conflictClause), addressArg(r.ContractAddressHash), r.Name, r.Symbol, r.Decimals); err != nil {
			return fmt.Errorf("upserting token %s: %w", r.ContractAddressHash.Hex(), err)
		}
	}

	return nil
}

// tokenTransfersRunner upserts by (transaction_hash, log_index).
func tokenTransfersRunner(tx *sql.Tx, rows []models.TokenTransfer) ([]models.TokenTransfer, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO token_transfers (
				transaction_hash, log_index, from_address_hash, to_address_hash,
				token_contract_address_hash, amount, token_id, block_number, block_hash
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (transaction_hash, log_index) DO UPDATE SET
				from_address_hash = EXCLUDED.from_address_hash, to_address_hash = EXCLUDED.to_address_hash,
				token_contract_address_hash = EXCLUDED.token_contract_address_hash,
				amount = EXCLUDED.amount, token_id = EXCLUDED.token_id,
				block_number = EXCLUDED.block_number, block_hash = EXCLUDED.block_hash
		`,
			hashArg(r.TransactionHash), r.LogIndex, addressArg(r.FromAddressHash), addressArg(r.ToAddressHash),
			addressArg(r.TokenContractHash), uint256Arg(r.Amount), uint256Arg(r.TokenID), r.BlockNumber,
			hashArg(r.BlockHash),
		); err != nil {
			return nil, fmt.Errorf("upserting token transfer %s/%d: %w", r.TransactionHash.Hex(), r.LogIndex, err)
		}
	}

	return rows, nil
}

// tokenBalancesRunner upserts by (address, token_contract,
// block_number), keeping the row with the greater value_fetched_at on
// conflict.
func tokenBalancesRunner(tx *sql.Tx, rows []models.TokenBalance) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO address_token_balances (address_hash, token_contract_address_hash, block_number, value, value_fetched_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (address_hash, token_contract_address_hash, block_number) DO UPDATE SET
				value = CASE WHEN address_token_balances.value_fetched_at IS NULL
						OR EXCLUDED.value_fetched_at > address_token_balances.value_fetched_at
					THEN EXCLUDED.value ELSE address_token_balances.value END,
				value_fetched_at = GREATEST(address_token_balances.value_fetched_at, EXCLUDED.value_fetched_at)
		`, addressArg(r.AddressHash), addressArg(r.TokenContractHash), r.BlockNumber,
			uint256Arg(r.Value), r.ValueFetchedAt); err != nil {
			return fmt.Errorf("upserting token balance: %w", err)
		}
	}

	return nil
}

// deriveCurrentTokenBalances rebuilds address_current_token_balances
// for the given (address, token) pairs by picking the max
// block_number row from address_token_balances.
func deriveCurrentTokenBalances(tx *sql.Tx, pairs [][2]string) error {
	for _, pair := range pairs {
		if _, err := tx.Exec(`
			DELETE FROM address_current_token_balances WHERE address_hash = $1 AND token_contract_address_hash = $2
		`, pair[0], pair[1]); err != nil {
			return fmt.Errorf("deleting current token balance: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO address_current_token_balances (address_hash, token_contract_address_hash, block_number, value)
			SELECT address_hash, token_contract_address_hash, block_number, value
			FROM address_token_balances
			WHERE address_hash = $1 AND token_contract_address_hash = $2
			ORDER BY block_number DESC
			LIMIT 1
		`, pair[0], pair[1]); err != nil {
			return fmt.Errorf("deriving current token balance: %w", err)
		}
	}

	return nil
}
