package repository

import (
	"context"

	"tradecore/internal/models"
)

// TradeRepository итоги закрытых сделок (только добавление)
type TradeRepository struct {
	db *DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, strategy_id, account_id, trade_id, symbol, direction, entry_price, exit_price,
		quantity, pnl, win, mode, set_number, index_in_set, closed_at`

// Append добавляет итог сделки; повторная запись того же ID игнорируется
func (r *TradeRepository) Append(ctx context.Context, t *models.TradeOutcome) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.exec(ctx, query,
		t.ID,
		t.StrategyID,
		t.AccountID,
		t.TradeID,
		t.Symbol,
		t.Direction,
		t.EntryPrice,
		t.ExitPrice,
		t.Quantity,
		t.Pnl,
		t.Win,
		string(t.Mode),
		t.SetNumber,
		t.IndexInSet,
		t.ClosedAt,
	)
	return err
}

// GetByAccount сделки счёта в порядке закрытия
func (r *TradeRepository) GetByAccount(ctx context.Context, accountID string) ([]*models.TradeOutcome, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE account_id = $1 ORDER BY closed_at, id`

	rows, err := r.db.query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.TradeOutcome
	for rows.Next() {
		t := &models.TradeOutcome{}
		var mode string
		if err := rows.Scan(
			&t.ID,
			&t.StrategyID,
			&t.AccountID,
			&t.TradeID,
			&t.Symbol,
			&t.Direction,
			&t.EntryPrice,
			&t.ExitPrice,
			&t.Quantity,
			&t.Pnl,
			&t.Win,
			&mode,
			&t.SetNumber,
			&t.IndexInSet,
			&t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Mode = models.TradeMode(mode)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
