package repository

import (
	"context"
	"fmt"
	"strings"
)

// Денежные значения хранятся как TEXT: десятичная строка без потери точности
// в обоих драйверах. JSON-колонки тоже TEXT.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		execution_mode  TEXT NOT NULL,
		environment     TEXT NOT NULL,
		adapter         TEXT NOT NULL DEFAULT '',
		initial_balance TEXT NOT NULL,
		balance         TEXT NOT NULL,
		leverage        TEXT NOT NULL,
		realized_pnl    TEXT NOT NULL,
		unrealized_pnl  TEXT NOT NULL,
		commissions     TEXT NOT NULL,
		positions       TEXT NOT NULL DEFAULT '{}',
		funded_rules    TEXT,
		created_at      @TS NOT NULL,
		updated_at      @TS NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		account_id      TEXT NOT NULL,
		strategy_id     TEXT NOT NULL DEFAULT '',
		symbol          TEXT NOT NULL,
		side            TEXT NOT NULL,
		type            TEXT NOT NULL,
		quantity        INTEGER NOT NULL,
		filled_quantity INTEGER NOT NULL DEFAULT 0,
		avg_fill_price  TEXT NOT NULL,
		limit_price     TEXT,
		stop_price      TEXT,
		status          TEXT NOT NULL,
		mode            TEXT NOT NULL,
		adapter         TEXT NOT NULL DEFAULT '',
		reason          TEXT NOT NULL DEFAULT '',
		synthetic       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      @TS NOT NULL,
		updated_at      @TS NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders (account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS fills (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL,
		account_id TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		side       TEXT NOT NULL,
		price      TEXT NOT NULL,
		quantity   INTEGER NOT NULL,
		commission TEXT NOT NULL,
		slippage   TEXT NOT NULL,
		filled_at  @TS NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fills_account ON fills (account_id, filled_at)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id           TEXT PRIMARY KEY,
		strategy_id  TEXT NOT NULL DEFAULT '',
		account_id   TEXT NOT NULL,
		trade_id     TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		direction    TEXT NOT NULL,
		entry_price  TEXT NOT NULL,
		exit_price   TEXT NOT NULL,
		quantity     INTEGER NOT NULL,
		pnl          TEXT NOT NULL,
		win          BOOLEAN NOT NULL,
		mode         TEXT NOT NULL,
		set_number   INTEGER NOT NULL DEFAULT 0,
		index_in_set INTEGER NOT NULL DEFAULT 0,
		closed_at    @TS NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_account ON trades (account_id, closed_at)`,
	`CREATE TABLE IF NOT EXISTS strategies (
		strategy_id  TEXT PRIMARY KEY,
		current_mode TEXT NOT NULL,
		state        TEXT NOT NULL,
		updated_at   @TS NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS violations (
		id          TEXT PRIMARY KEY,
		account_id  TEXT NOT NULL,
		rule        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		message     TEXT NOT NULL,
		value       TEXT NOT NULL,
		limit_value TEXT NOT NULL,
		flattened   BOOLEAN NOT NULL DEFAULT FALSE,
		detected_at @TS NOT NULL,
		resolved_at @TS
	)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_account ON violations (account_id, detected_at)`,
}

// timestampType sqlite-драйвер разбирает в time.Time только колонки TIMESTAMP/DATETIME
func (d *DB) timestampType() string {
	if d.driver == DriverSQLite {
		return "TIMESTAMP"
	}
	return "TIMESTAMPTZ"
}

// Migrate создаёт таблицы и индексы. Повторный запуск ничего не меняет.
func (d *DB) Migrate(ctx context.Context) error {
	ts := d.timestampType()
	for i, stmt := range schema {
		if _, err := d.ExecContext(ctx, strings.ReplaceAll(stmt, "@TS", ts)); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
