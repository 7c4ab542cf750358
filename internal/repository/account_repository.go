package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"tradecore/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория счетов
var (
	ErrAccountNotFound = errors.New("account not found")
)

// AccountRepository работа с таблицей accounts.
// Позиции и правила проп-фирмы хранятся JSON-колонками.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, name, execution_mode, environment, adapter, initial_balance, balance, leverage,
		realized_pnl, unrealized_pnl, commissions, positions, funded_rules, created_at, updated_at`

// Save вставляет или обновляет счёт
func (r *AccountRepository) Save(ctx context.Context, acc *models.Account) error {
	positions, err := json.Marshal(acc.Positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	var funded sql.NullString
	if acc.Funded != nil {
		raw, err := json.Marshal(acc.Funded)
		if err != nil {
			return fmt.Errorf("encode funded rules: %w", err)
		}
		funded = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			execution_mode = excluded.execution_mode,
			environment = excluded.environment,
			adapter = excluded.adapter,
			initial_balance = excluded.initial_balance,
			balance = excluded.balance,
			leverage = excluded.leverage,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			commissions = excluded.commissions,
			positions = excluded.positions,
			funded_rules = excluded.funded_rules,
			updated_at = excluded.updated_at`

	_, err = r.db.exec(ctx, query,
		acc.ID,
		acc.Name,
		string(acc.ExecutionMode),
		string(acc.Environment),
		acc.Adapter,
		acc.InitialBalance,
		acc.Balance,
		acc.Leverage,
		acc.RealizedPnl,
		acc.UnrealizedPnl,
		acc.Commissions,
		string(positions),
		funded,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	return err
}

// GetByID возвращает счёт по ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// GetAll возвращает все счета по ID
func (r *AccountRepository) GetAll(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`

	rows, err := r.db.query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Delete удаляет счёт
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s scanner) (*models.Account, error) {
	acc := &models.Account{}
	var (
		mode, env string
		positions string
		funded    sql.NullString
	)
	err := s.Scan(
		&acc.ID,
		&acc.Name,
		&mode,
		&env,
		&acc.Adapter,
		&acc.InitialBalance,
		&acc.Balance,
		&acc.Leverage,
		&acc.RealizedPnl,
		&acc.UnrealizedPnl,
		&acc.Commissions,
		&positions,
		&funded,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acc.ExecutionMode = models.ExecutionMode(mode)
	acc.Environment = models.Environment(env)

	acc.Positions = make(map[string]*models.Position)
	if positions != "" {
		if err := json.Unmarshal([]byte(positions), &acc.Positions); err != nil {
			return nil, fmt.Errorf("decode positions of %s: %w", acc.ID, err)
		}
		if acc.Positions == nil {
			acc.Positions = make(map[string]*models.Position)
		}
	}
	if funded.Valid && funded.String != "" {
		acc.Funded = &models.FundedAccountRules{}
		if err := json.Unmarshal([]byte(funded.String), acc.Funded); err != nil {
			return nil, fmt.Errorf("decode funded rules of %s: %w", acc.ID, err)
		}
	}
	return acc, nil
}
