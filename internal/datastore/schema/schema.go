// Package schema holds the embedded SQL schema for the treasury store: one
// CREATE TABLE per §3 entity plus the supporting cache and configuration
// tables. Schema migration is otherwise external, per §6.
package schema

// SQL is applied idempotently (IF NOT EXISTS) on every datastore.New call.
// Monetary columns are TEXT, storing decimal strings written by
// internal/money's driver.Valuer implementations — never REAL, to avoid
// float rounding on money.
const SQL = `
CREATE TABLE IF NOT EXISTS wallets (
	address TEXT PRIMARY KEY,
	label   TEXT NOT NULL DEFAULT '',
	active  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS subnets (
	netuid              INTEGER PRIMARY KEY,
	pool_tao_reserve    TEXT NOT NULL DEFAULT '0',
	pool_alpha_reserve  TEXT NOT NULL DEFAULT '0',
	alpha_price_tao     TEXT NOT NULL DEFAULT '0',
	emission_share      TEXT NOT NULL DEFAULT '0',
	owner_take          TEXT NOT NULL DEFAULT '0',
	fee_rate            TEXT NOT NULL DEFAULT '0',
	incentive_burn      TEXT NOT NULL DEFAULT '0',
	holder_count        INTEGER NOT NULL DEFAULT 0,
	flow_1d             REAL NOT NULL DEFAULT 0,
	flow_3d             REAL NOT NULL DEFAULT 0,
	flow_7d             REAL NOT NULL DEFAULT 0,
	flow_14d            REAL NOT NULL DEFAULT 0,
	flow_regime         TEXT NOT NULL DEFAULT 'neutral',
	regime_candidate    TEXT NOT NULL DEFAULT '',
	regime_candidate_days INTEGER NOT NULL DEFAULT 0,
	flow_regime_since   TEXT NOT NULL DEFAULT '',
	viability_score     REAL NOT NULL DEFAULT 0,
	viability_tier      TEXT NOT NULL DEFAULT 'unviable',
	registered_at       TEXT NOT NULL DEFAULT '',
	rank                INTEGER NOT NULL DEFAULT 0,
	market_cap_tao      TEXT NOT NULL DEFAULT '0',
	max_drawdown_30d    REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS subnet_snapshots (
	netuid             INTEGER NOT NULL,
	timestamp          TEXT NOT NULL,
	pool_tao_reserve   TEXT NOT NULL,
	pool_alpha_reserve TEXT NOT NULL,
	alpha_price_tao    TEXT NOT NULL,
	emission_share     TEXT NOT NULL,
	holder_count       INTEGER NOT NULL,
	flow_regime        TEXT NOT NULL,
	PRIMARY KEY (netuid, timestamp)
);

CREATE TABLE IF NOT EXISTS positions (
	wallet                TEXT NOT NULL,
	netuid                INTEGER NOT NULL,
	alpha_balance         REAL NOT NULL DEFAULT 0,
	alpha_purchased       REAL NOT NULL DEFAULT 0,
	cost_basis_complete   INTEGER NOT NULL DEFAULT 0,
	tao_value_mid         TEXT NOT NULL DEFAULT '0',
	tao_value_exec_50     TEXT NOT NULL DEFAULT '0',
	tao_value_exec_100    TEXT NOT NULL DEFAULT '0',
	entry_price           TEXT NOT NULL DEFAULT '0',
	entry_date            TEXT NOT NULL DEFAULT '',
	cost_basis_tao        TEXT NOT NULL DEFAULT '0',
	cost_basis_usd        TEXT NOT NULL DEFAULT '0',
	realized_pnl_tao      TEXT NOT NULL DEFAULT '0',
	unrealized_pnl_tao    TEXT NOT NULL DEFAULT '0',
	unrealized_yield      TEXT NOT NULL DEFAULT '0',
	unrealized_alpha_pnl  TEXT NOT NULL DEFAULT '0',
	recommended_action    TEXT NOT NULL DEFAULT 'hold',
	PRIMARY KEY (wallet, netuid)
);

CREATE TABLE IF NOT EXISTS position_snapshots (
	wallet        TEXT NOT NULL,
	netuid        INTEGER NOT NULL,
	timestamp     TEXT NOT NULL,
	alpha_balance REAL NOT NULL,
	tao_value_mid TEXT NOT NULL,
	PRIMARY KEY (wallet, netuid, timestamp)
);

CREATE TABLE IF NOT EXISTS stake_transactions (
	extrinsic_id TEXT PRIMARY KEY,
	block_number INTEGER NOT NULL,
	timestamp    TEXT NOT NULL,
	wallet       TEXT NOT NULL,
	netuid       INTEGER NOT NULL,
	hotkey       TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL,
	amount_rao   INTEGER NOT NULL,
	amount_tao   TEXT NOT NULL,
	alpha_amount TEXT,
	limit_price  TEXT,
	fee_tao      TEXT NOT NULL DEFAULT '0',
	success      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_stake_tx_wallet_netuid ON stake_transactions(wallet, netuid, block_number);

CREATE TABLE IF NOT EXISTS position_cost_basis (
	wallet                  TEXT NOT NULL,
	netuid                  INTEGER NOT NULL,
	total_staked_tao        TEXT NOT NULL DEFAULT '0',
	total_unstaked_tao      TEXT NOT NULL DEFAULT '0',
	net_invested_tao        TEXT NOT NULL DEFAULT '0',
	weighted_avg_entry_price TEXT NOT NULL DEFAULT '0',
	realized_pnl_tao        TEXT NOT NULL DEFAULT '0',
	realized_yield_tao      TEXT NOT NULL DEFAULT '0',
	realized_yield_alpha    TEXT NOT NULL DEFAULT '0',
	total_fees_tao          TEXT NOT NULL DEFAULT '0',
	total_staked_usd        TEXT NOT NULL DEFAULT '0',
	total_unstaked_usd      TEXT NOT NULL DEFAULT '0',
	net_invested_usd        TEXT NOT NULL DEFAULT '0',
	realized_pnl_usd        TEXT NOT NULL DEFAULT '0',
	complete                INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (wallet, netuid)
);

CREATE TABLE IF NOT EXISTS delegation_events (
	event_id     TEXT PRIMARY KEY,
	timestamp    TEXT NOT NULL,
	wallet       TEXT NOT NULL,
	netuid       INTEGER NOT NULL,
	hotkey       TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	amount_tao   TEXT NOT NULL,
	amount_alpha TEXT NOT NULL DEFAULT '0'
);
CREATE INDEX IF NOT EXISTS idx_delegation_wallet_netuid ON delegation_events(wallet, netuid, timestamp);

CREATE TABLE IF NOT EXISTS position_yield_history (
	wallet               TEXT NOT NULL,
	netuid               INTEGER NOT NULL,
	date                 TEXT NOT NULL,
	start_alpha_balance  REAL NOT NULL,
	end_alpha_balance    REAL NOT NULL,
	net_stake_delta_tao  TEXT NOT NULL,
	yield_alpha          REAL NOT NULL,
	yield_tao            TEXT NOT NULL,
	daily_apy            REAL NOT NULL,
	PRIMARY KEY (wallet, netuid, date)
);

CREATE TABLE IF NOT EXISTS slippage_surfaces (
	netuid             INTEGER NOT NULL,
	action             TEXT NOT NULL,
	size_tao           REAL NOT NULL,
	slippage_pct       REAL NOT NULL,
	expected_output    REAL NOT NULL,
	pool_tao_reserve   TEXT NOT NULL,
	pool_alpha_reserve TEXT NOT NULL,
	computed_at        TEXT NOT NULL,
	expires_at         TEXT NOT NULL,
	PRIMARY KEY (netuid, action, size_tao)
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	wallet                TEXT NOT NULL,
	timestamp             TEXT NOT NULL,
	nav_mid               TEXT NOT NULL,
	nav_exec              TEXT NOT NULL,
	root_allocation_pct   REAL NOT NULL,
	sleeve_allocation_pct REAL NOT NULL,
	buffer_allocation_pct REAL NOT NULL,
	turnover_tao          TEXT NOT NULL DEFAULT '0',
	regime                TEXT NOT NULL,
	regime_reason         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (wallet, timestamp)
);

CREATE TABLE IF NOT EXISTS nav_history (
	wallet           TEXT NOT NULL,
	date             TEXT NOT NULL,
	open             TEXT NOT NULL,
	high             TEXT NOT NULL,
	low              TEXT NOT NULL,
	close            TEXT NOT NULL,
	ath              TEXT NOT NULL,
	daily_return_tao TEXT NOT NULL DEFAULT '0',
	daily_return_pct REAL NOT NULL DEFAULT 0,
	drawdown_pct     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (wallet, date)
);

CREATE TABLE IF NOT EXISTS validators (
	hotkey        TEXT NOT NULL,
	netuid        INTEGER NOT NULL,
	apy_current   REAL NOT NULL DEFAULT 0,
	apy_7d        REAL NOT NULL DEFAULT 0,
	apy_30d       REAL NOT NULL DEFAULT 0,
	take_rate     REAL NOT NULL DEFAULT 0,
	stake_tao     TEXT NOT NULL DEFAULT '0',
	quality_flags TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (hotkey, netuid)
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	created_at   TEXT NOT NULL,
	wallet       TEXT NOT NULL,
	netuid       INTEGER,
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL,
	snapshot_ref TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS decision_log (
	id           TEXT PRIMARY KEY,
	created_at   TEXT NOT NULL,
	wallet       TEXT NOT NULL,
	netuid       INTEGER,
	decision     TEXT NOT NULL,
	reason       TEXT NOT NULL,
	snapshot_ref TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trade_recommendations (
	id           TEXT PRIMARY KEY,
	created_at   TEXT NOT NULL,
	wallet       TEXT NOT NULL,
	netuid       INTEGER NOT NULL,
	action       TEXT NOT NULL,
	size_tao     TEXT NOT NULL,
	confidence   TEXT NOT NULL,
	reason       TEXT NOT NULL,
	snapshot_ref TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reconciliation_runs (
	run_id                  TEXT PRIMARY KEY,
	wallet                  TEXT NOT NULL,
	created_at              TEXT NOT NULL,
	total_checks            INTEGER NOT NULL,
	passed_checks           INTEGER NOT NULL,
	failed_checks           INTEGER NOT NULL,
	absolute_tolerance_tao  TEXT NOT NULL,
	relative_tolerance_pct  REAL NOT NULL,
	checks_json             TEXT NOT NULL,
	passed                  INTEGER NOT NULL,
	error                   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS signal_runs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	evidence_json TEXT NOT NULL DEFAULT '{}',
	guardrails_json TEXT NOT NULL DEFAULT '[]',
	passed     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS viability_config (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	active              INTEGER NOT NULL DEFAULT 0,
	weights_json        TEXT NOT NULL,
	thresholds_json     TEXT NOT NULL,
	created_at          TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_viability_config_single_active
	ON viability_config(active) WHERE active = 1;

CREATE TABLE IF NOT EXISTS sync_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tier        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL DEFAULT 0,
	errors_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_tier_started ON sync_runs(tier, started_at);

CREATE TABLE IF NOT EXISTS dataset_health (
	dataset             TEXT PRIMARY KEY,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_success_at     TEXT NOT NULL DEFAULT '',
	ever_succeeded      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cache_kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_kv_expires ON cache_kv(expires_at);
`
