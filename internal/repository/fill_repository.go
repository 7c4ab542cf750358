package repository

import (
	"context"

	"tradecore/internal/models"
)

// FillRepository журнал исполнений: записи только добавляются
type FillRepository struct {
	db *DB
}

// NewFillRepository создает новый экземпляр репозитория
func NewFillRepository(db *DB) *FillRepository {
	return &FillRepository{db: db}
}

const fillColumns = `id, order_id, account_id, symbol, side, price, quantity, commission, slippage, filled_at`

// Append добавляет fill; повторная запись того же ID игнорируется
func (r *FillRepository) Append(ctx context.Context, f *models.Fill) error {
	query := `
		INSERT INTO fills (` + fillColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.exec(ctx, query,
		f.ID,
		f.OrderID,
		f.AccountID,
		f.Symbol,
		string(f.Side),
		f.Price,
		f.Quantity,
		f.Commission,
		f.Slippage,
		f.Timestamp,
	)
	return err
}

// GetByAccount fill'ы счёта в хронологическом порядке
func (r *FillRepository) GetByAccount(ctx context.Context, accountID string) ([]*models.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills WHERE account_id = $1 ORDER BY filled_at, id`

	rows, err := r.db.query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []*models.Fill
	for rows.Next() {
		f := &models.Fill{}
		var side string
		if err := rows.Scan(
			&f.ID,
			&f.OrderID,
			&f.AccountID,
			&f.Symbol,
			&side,
			&f.Price,
			&f.Quantity,
			&f.Commission,
			&f.Slippage,
			&f.Timestamp,
		); err != nil {
			return nil, err
		}
		f.Side = models.Side(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
