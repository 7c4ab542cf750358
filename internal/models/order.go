package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus статус ордера
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderWorking         OrderStatus = "WORKING"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// OrderType тип ордера
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TradeMode режим, в котором исполнен ордер/сделка
type TradeMode string

const (
	TradeLive  TradeMode = "live"
	TradePaper TradeMode = "paper"
)

// Order ордер на счёте
type Order struct {
	ID             string           `json:"id" db:"id"`
	AccountID      string           `json:"account_id" db:"account_id"`
	StrategyID     string           `json:"strategy_id" db:"strategy_id"`
	Symbol         string           `json:"symbol" db:"symbol"`
	Side           Side             `json:"side" db:"side"`
	Type           OrderType        `json:"type" db:"type"`
	Quantity       int              `json:"quantity" db:"quantity"`
	FilledQuantity int              `json:"filled_quantity" db:"filled_quantity"`
	AvgFillPrice   decimal.Decimal  `json:"avg_fill_price" db:"avg_fill_price"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty" db:"stop_price"`
	Status         OrderStatus      `json:"status" db:"status"`
	Mode           TradeMode        `json:"mode" db:"mode"`
	Adapter        string           `json:"adapter" db:"adapter"`
	Reason         string           `json:"reason,omitempty" db:"reason"`
	Synthetic      bool             `json:"synthetic" db:"synthetic"` // создан леджером (flatten)
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// Remaining неисполненный остаток
func (o *Order) Remaining() int {
	return o.Quantity - o.FilledQuantity
}

// IsTerminal true для FILLED, REJECTED, CANCELLED
func (o *Order) IsTerminal() bool {
	return IsTerminalStatus(o.Status)
}

// ============================================================
// Автомат статусов ордера
// ============================================================

// ValidOrderTransitions допустимые переходы статусов
var ValidOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:         {OrderWorking, OrderRejected, OrderCancelled},
	OrderWorking:         {OrderFilled, OrderPartiallyFilled, OrderRejected, OrderCancelled},
	OrderPartiallyFilled: {OrderPartiallyFilled, OrderFilled, OrderCancelled},
	OrderFilled:          {},
	OrderRejected:        {},
	OrderCancelled:       {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to OrderStatus) bool {
	allowed, ok := ValidOrderTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus терминальные статусы не принимают ни переходов, ни fill'ов
func IsTerminalStatus(s OrderStatus) bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// Fill исполнение ордера. Записи только добавляются.
type Fill struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       Side            `json:"side" db:"side"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Quantity   int             `json:"quantity" db:"quantity"`
	Commission decimal.Decimal `json:"commission" db:"commission"`
	Slippage   decimal.Decimal `json:"slippage" db:"slippage"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// SignedQuantity +qty для покупки, -qty для продажи
func (f Fill) SignedQuantity() int {
	if f.Side == SideSell {
		return -f.Quantity
	}
	return f.Quantity
}
