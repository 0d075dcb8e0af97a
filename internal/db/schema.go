package db

// Schema returns the full migration set backing the entity set of
// internal/models: blocks, transactions, logs, internal transactions,
// addresses, coin/token balances (historical and current), tokens,
// token transfers, uncle relations, and transaction forks. Column
// names mirror the meddler tags in internal/models so the Importer's
// runners can read and write these tables directly.
func Schema() []Migration {
	return []Migration{
		{ID: "0001", Prefix: "", SQL: schema0001},
	}
}

const schema0001 = `
-- +migrate Down

DROP TABLE IF EXISTS block_rewards;
DROP TABLE IF EXISTS transaction_forks;
DROP TABLE IF EXISTS block_second_degree_relations;
DROP TABLE IF EXISTS token_transfers;
DROP TABLE IF EXISTS address_current_token_balances;
DROP TABLE IF EXISTS address_token_balances;
DROP TABLE IF EXISTS tokens;
DROP TABLE IF EXISTS address_coin_balances;
DROP TABLE IF EXISTS internal_transactions;
DROP TABLE IF EXISTS logs;
DROP TABLE IF EXISTS transactions;
DROP TABLE IF EXISTS addresses;
DROP TABLE IF EXISTS blocks;

-- +migrate Up

CREATE TABLE blocks (
	hash                              TEXT PRIMARY KEY,
	number                            BIGINT NOT NULL,
	parent_hash                       TEXT NOT NULL,
	miner                             TEXT NOT NULL,
	timestamp                         TIMESTAMPTZ NOT NULL,
	difficulty                        NUMERIC,
	total_difficulty                  NUMERIC,
	gas_used                          BIGINT NOT NULL,
	gas_limit                         BIGINT NOT NULL,
	size                              BIGINT NOT NULL,
	nonce                             BIGINT NOT NULL,
	consensus                         BOOLEAN NOT NULL DEFAULT FALSE,
	internal_transactions_indexed_at  TIMESTAMPTZ,
	inserted_at                       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX idx_blocks_number ON blocks (number);
CREATE UNIQUE INDEX idx_blocks_number_consensus ON blocks (number) WHERE consensus;

CREATE TABLE addresses (
	hash                          TEXT PRIMARY KEY,
	fetched_coin_balance          NUMERIC,
	fetched_coin_balance_block_number BIGINT,
	contract_code                 BYTEA,
	inserted_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE transactions (
	hash                          TEXT PRIMARY KEY,
	nonce                         BIGINT NOT NULL,
	from_address                  TEXT NOT NULL,
	to_address                    TEXT,
	value                         NUMERIC,
	gas                           BIGINT NOT NULL,
	gas_price                     NUMERIC,
	input                         BYTEA,
	v                             BIGINT NOT NULL DEFAULT 0,
	r                             NUMERIC,
	s                             NUMERIC,
	block_hash                    TEXT REFERENCES blocks (hash),
	block_number                  BIGINT,
	index                         BIGINT,
	cumulative_gas_used           BIGINT,
	gas_used                      BIGINT,
	status                        TEXT NOT NULL DEFAULT 'pending',
	error                         TEXT,
	created_contract_address_hash TEXT,
	inserted_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (block_hash, index)
);

CREATE INDEX idx_transactions_block_number ON transactions (block_number);
CREATE INDEX idx_transactions_from_address ON transactions (from_address);
CREATE INDEX idx_transactions_to_address ON transactions (to_address);

CREATE TABLE logs (
	transaction_hash TEXT NOT NULL REFERENCES transactions (hash),
	index            BIGINT NOT NULL,
	address_hash     TEXT NOT NULL,
	data             BYTEA,
	first_topic      TEXT,
	second_topic     TEXT,
	third_topic      TEXT,
	fourth_topic     TEXT,
	block_number     BIGINT NOT NULL,
	block_hash       TEXT NOT NULL REFERENCES blocks (hash),
	inserted_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (transaction_hash, index)
);

CREATE INDEX idx_logs_address_hash ON logs (address_hash);
CREATE INDEX idx_logs_first_topic ON logs (first_topic);
CREATE INDEX idx_logs_block_number ON logs (block_number);

CREATE TABLE internal_transactions (
	transaction_hash               TEXT NOT NULL REFERENCES transactions (hash),
	index                          BIGINT NOT NULL,
	type                           TEXT NOT NULL,
	call_type                      TEXT,
	from_address_hash              TEXT NOT NULL,
	to_address_hash                TEXT,
	value                          NUMERIC,
	gas                            BIGINT,
	gas_used                       BIGINT,
	input                          BYTEA,
	output                         BYTEA,
	created_contract_address_hash  TEXT,
	created_contract_code          BYTEA,
	trace_address                  TEXT NOT NULL DEFAULT '',
	error                          TEXT,
	block_number                   BIGINT NOT NULL,
	inserted_at                    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (transaction_hash, index)
);

CREATE INDEX idx_internal_transactions_block_number ON internal_transactions (block_number);
CREATE INDEX idx_internal_transactions_from_address ON internal_transactions (from_address_hash);
CREATE INDEX idx_internal_transactions_to_address ON internal_transactions (to_address_hash);

CREATE TABLE address_coin_balances (
	address_hash     TEXT NOT NULL REFERENCES addresses (hash),
	block_number     BIGINT NOT NULL,
	value            NUMERIC,
	value_fetched_at TIMESTAMPTZ,
	PRIMARY KEY (address_hash, block_number)
);

CREATE TABLE tokens (
	contract_address_hash TEXT PRIMARY KEY,
	name                  TEXT,
	symbol                TEXT,
	decimals              SMALLINT,
	holder_count          BIGINT NOT NULL DEFAULT 0,
	inserted_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE address_token_balances (
	address_hash          TEXT NOT NULL REFERENCES addresses (hash),
	token_contract_address_hash TEXT NOT NULL REFERENCES tokens (contract_address_hash),
	block_number          BIGINT NOT NULL,
	value                 NUMERIC,
	value_fetched_at      TIMESTAMPTZ,
	PRIMARY KEY (address_hash, token_contract_address_hash, block_number)
);

CREATE TABLE address_current_token_balances (
	address_hash                 TEXT NOT NULL REFERENCES addresses (hash),
	token_contract_address_hash  TEXT NOT NULL REFERENCES tokens (contract_address_hash),
	block_number                 BIGINT NOT NULL,
	value                        NUMERIC,
	PRIMARY KEY (address_hash, token_contract_address_hash)
);

CREATE TABLE token_transfers (
	transaction_hash      TEXT NOT NULL REFERENCES transactions (hash),
	log_index             BIGINT NOT NULL,
	from_address_hash     TEXT NOT NULL,
	to_address_hash       TEXT NOT NULL,
	token_contract_address_hash TEXT NOT NULL REFERENCES tokens (contract_address_hash),
	amount                NUMERIC,
	token_id              NUMERIC,
	block_number          BIGINT NOT NULL,
	block_hash            TEXT NOT NULL REFERENCES blocks (hash),
	inserted_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (transaction_hash, log_index)
);

CREATE INDEX idx_token_transfers_from ON token_transfers (from_address_hash);
CREATE INDEX idx_token_transfers_to ON token_transfers (to_address_hash);
CREATE INDEX idx_token_transfers_token ON token_transfers (token_contract_address_hash);

CREATE TABLE block_second_degree_relations (
	nephew_hash       TEXT NOT NULL REFERENCES blocks (hash),
	uncle_hash        TEXT NOT NULL,
	uncle_fetched_at  TIMESTAMPTZ,
	PRIMARY KEY (nephew_hash, uncle_hash)
);

CREATE TABLE transaction_forks (
	uncle_hash       TEXT NOT NULL,
	index            BIGINT NOT NULL,
	hash             TEXT NOT NULL,
	inserted_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (uncle_hash, index)
);

CREATE TABLE block_rewards (
	address_hash  TEXT NOT NULL,
	address_type  TEXT NOT NULL,
	block_hash    TEXT NOT NULL REFERENCES blocks (hash),
	block_number  BIGINT NOT NULL,
	reward        NUMERIC,
	PRIMARY KEY (address_hash, address_type, block_hash)
);
`
