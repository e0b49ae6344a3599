package postgres

// schemaSQL creates every projection table. Amounts are NUMERIC(78,0) to hold
// any uint256.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS system_state (
	id text PRIMARY KEY,
	total_supply numeric(78,0) NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS swaps (
	id text PRIMARY KEY,
	user_address text NOT NULL,
	stable text NOT NULL,
	amount_in numeric(78,0) NOT NULL,
	amount_out numeric(78,0) NOT NULL,
	fee_amount numeric(78,0) NOT NULL,
	block_number bigint NOT NULL,
	log_index bigint NOT NULL,
	block_ts bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS psm_routes (
	stable text PRIMARY KEY,
	max_depth numeric(78,0) NOT NULL,
	spread_bps integer NOT NULL CHECK (spread_bps BETWEEN 0 AND 10000),
	buffer numeric(78,0),
	decimals smallint,
	halted boolean NOT NULL DEFAULT false,
	updated_block bigint NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS allocators (
	address text PRIMARY KEY,
	ceiling numeric(78,0) NOT NULL,
	daily_cap numeric(78,0) NOT NULL,
	debt numeric(78,0) NOT NULL CHECK (debt >= 0),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS allocator_actions (
	id text PRIMARY KEY,
	action_type text NOT NULL,
	allocator text NOT NULL,
	counterparty text NOT NULL,
	amount numeric(78,0) NOT NULL,
	block_number bigint NOT NULL,
	log_index bigint NOT NULL,
	block_ts bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS allocator_actions_allocator_idx ON allocator_actions (allocator);

CREATE TABLE IF NOT EXISTS users (
	address text PRIMARY KEY,
	s0xusd_balance numeric(78,0) NOT NULL CHECK (s0xusd_balance >= 0),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS savings_actions (
	id text PRIMARY KEY,
	action_type text NOT NULL,
	user_address text NOT NULL,
	owner text NOT NULL,
	receiver text NOT NULL,
	assets numeric(78,0) NOT NULL,
	shares numeric(78,0) NOT NULL,
	block_number bigint NOT NULL,
	log_index bigint NOT NULL,
	block_ts bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS savings_actions_user_idx ON savings_actions (user_address);

CREATE TABLE IF NOT EXISTS supply_changes (
	id text PRIMARY KEY,
	direction text NOT NULL,
	account text NOT NULL,
	value numeric(78,0) NOT NULL,
	block_number bigint NOT NULL,
	log_index bigint NOT NULL,
	block_ts bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS protocol_params (
	key text PRIMARY KEY,
	kind text NOT NULL,
	value text NOT NULL,
	updated_block bigint NOT NULL,
	updated_ts bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS applied_events (
	key text PRIMARY KEY,
	stream text NOT NULL,
	kind text NOT NULL,
	block_number bigint NOT NULL,
	log_index bigint NOT NULL,
	applied_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stream_cursors (
	stream text PRIMARY KEY,
	block_number bigint NOT NULL,
	log_index bigint NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`
