package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository работа с таблицей orders
type OrderRepository struct {
	db *DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, account_id, strategy_id, symbol, side, type, quantity, filled_quantity, avg_fill_price,
		limit_price, stop_price, status, mode, adapter, reason, synthetic, created_at, updated_at`

// Save вставляет ордер или обновляет изменяемые поля (исполнение, статус, причина)
func (r *OrderRepository) Save(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			filled_quantity = excluded.filled_quantity,
			avg_fill_price = excluded.avg_fill_price,
			status = excluded.status,
			adapter = excluded.adapter,
			reason = excluded.reason,
			updated_at = excluded.updated_at`

	_, err := r.db.exec(ctx, query,
		order.ID,
		order.AccountID,
		order.StrategyID,
		order.Symbol,
		string(order.Side),
		string(order.Type),
		order.Quantity,
		order.FilledQuantity,
		order.AvgFillPrice,
		nullDecimal(order.LimitPrice),
		nullDecimal(order.StopPrice),
		string(order.Status),
		string(order.Mode),
		order.Adapter,
		order.Reason,
		order.Synthetic,
		order.CreatedAt,
		order.UpdatedAt,
	)
	return err
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetByAccount ордера счёта в порядке создания
func (r *OrderRepository) GetByAccount(ctx context.Context, accountID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY created_at, id`

	rows, err := r.db.query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(s scanner) (*models.Order, error) {
	o := &models.Order{}
	var (
		side, typ, status, mode string
		limit, stop             decimal.NullDecimal
	)
	err := s.Scan(
		&o.ID,
		&o.AccountID,
		&o.StrategyID,
		&o.Symbol,
		&side,
		&typ,
		&o.Quantity,
		&o.FilledQuantity,
		&o.AvgFillPrice,
		&limit,
		&stop,
		&status,
		&mode,
		&o.Adapter,
		&o.Reason,
		&o.Synthetic,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = models.Side(side)
	o.Type = models.OrderType(typ)
	o.Status = models.OrderStatus(status)
	o.Mode = models.TradeMode(mode)
	if limit.Valid {
		o.LimitPrice = &limit.Decimal
	}
	if stop.Valid {
		o.StopPrice = &stop.Decimal
	}
	return o, nil
}

// nullDecimal *decimal -> NULL или строка
func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
