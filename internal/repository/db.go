package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Поддерживаемые драйверы
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrUnsupportedDriver драйвер не postgres и не sqlite
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// DB обёртка над *sql.DB: запросы пишутся с плейсхолдерами $N,
// для sqlite они переписываются в ?N
type DB struct {
	*sql.DB
	driver string
}

// PoolConfig настройки пула соединений
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open открывает и проверяет подключение
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite допускает одного писателя
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return Wrap(db, driver), nil
}

// Wrap оборачивает готовое подключение (тесты, sqlmock)
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{DB: db, driver: driver}
}

// Driver имя драйвера
func (d *DB) Driver() string { return d.driver }

func (d *DB) rebind(query string) string {
	if d.driver != DriverSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

func (d *DB) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return d.ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return d.QueryContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return d.QueryRowContext(ctx, d.rebind(query), args...)
}

// inTx выполняет fn в транзакции; запросы внутри fn уже должны быть переписаны
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
