package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionMode способ исполнения ордеров счёта
type ExecutionMode string

const (
	ExecSandbox   ExecutionMode = "sandbox"   // песочница брокера
	ExecSimulator ExecutionMode = "simulator" // встроенный симулятор
	ExecHybrid    ExecutionMode = "hybrid"    // песочница с локальным учётом (buying power проверяется леджером)
)

// Environment окружение счёта
type Environment string

const (
	EnvTest       Environment = "test"
	EnvProduction Environment = "production"
)

// Account торговый счёт со своим балансом и позициями
type Account struct {
	ID             string               `json:"id" db:"id"`
	Name           string               `json:"name" db:"name"`
	ExecutionMode  ExecutionMode        `json:"execution_mode" db:"execution_mode"`
	Environment    Environment          `json:"environment" db:"environment"`
	Adapter        string               `json:"adapter" db:"adapter"`
	InitialBalance decimal.Decimal      `json:"initial_balance" db:"initial_balance"`
	Balance        decimal.Decimal      `json:"balance" db:"balance"`
	BuyingPower    decimal.Decimal      `json:"buying_power" db:"buying_power"`
	Leverage       decimal.Decimal      `json:"leverage" db:"leverage"`
	Positions      map[string]*Position `json:"positions"`
	RealizedPnl    decimal.Decimal      `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnl  decimal.Decimal      `json:"unrealized_pnl" db:"unrealized_pnl"`
	Commissions    decimal.Decimal      `json:"commissions" db:"commissions"`
	Funded         *FundedAccountRules  `json:"funded_rules,omitempty"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at" db:"updated_at"`
}

// Equity баланс плюс нереализованный P&L
func (a *Account) Equity() decimal.Decimal {
	return a.Balance.Add(a.UnrealizedPnl)
}

// IsFunded true, если на счёт наложены правила проп-фирмы
func (a *Account) IsFunded() bool {
	return a.Funded != nil
}

// Clone глубокая копия для выдачи наружу из-под lock'а
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Positions = make(map[string]*Position, len(a.Positions))
	for k, p := range a.Positions {
		pc := *p
		c.Positions[k] = &pc
	}
	if a.Funded != nil {
		f := *a.Funded
		c.Funded = &f
	}
	return &c
}

// Position позиция по символу; Quantity со знаком (short < 0)
type Position struct {
	Symbol        string          `json:"symbol" db:"symbol"`
	Quantity      int             `json:"quantity" db:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price" db:"avg_entry_price"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	MarkPrice     decimal.Decimal `json:"mark_price" db:"mark_price"`
	StrategyID    string          `json:"strategy_id" db:"strategy_id"`
	OpenedAt      time.Time       `json:"opened_at" db:"opened_at"`
}

// IsFlat нет открытого количества
func (p *Position) IsFlat() bool {
	return p == nil || p.Quantity == 0
}

// TradeOutcome итог закрытой (частично) сделки для губернатора стратегий
type TradeOutcome struct {
	ID         string          `json:"id" db:"id"`
	StrategyID string          `json:"strategy_id" db:"strategy_id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	TradeID    string          `json:"trade_id" db:"trade_id"` // id закрывающего fill
	Symbol     string          `json:"symbol" db:"symbol"`
	Direction  string          `json:"direction" db:"direction"` // long | short
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price" db:"exit_price"`
	Quantity   int             `json:"quantity" db:"quantity"`
	Pnl        decimal.Decimal `json:"pnl" db:"pnl"`
	Win        bool            `json:"win" db:"win"`
	Mode       TradeMode       `json:"mode" db:"mode"`
	SetNumber  int             `json:"set_number" db:"set_number"`
	IndexInSet int             `json:"index_in_set" db:"index_in_set"`
	ClosedAt   time.Time       `json:"closed_at" db:"closed_at"`
}
