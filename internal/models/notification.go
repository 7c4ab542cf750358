package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundedAccountRules правила проп-фирмы (TopStep, Apex) и их текущие значения
type FundedAccountRules struct {
	MaxDailyLoss     decimal.Decimal `json:"max_daily_loss"`
	MaxContracts     int             `json:"max_contracts"`
	TrailingDrawdown decimal.Decimal `json:"trailing_drawdown"`
	ProfitTarget     decimal.Decimal `json:"profit_target"`

	CurrentDailyPnl decimal.Decimal `json:"current_daily_pnl"`
	CurrentDrawdown decimal.Decimal `json:"current_drawdown"`
	PeakEquity      decimal.Decimal `json:"peak_equity"`
	DayStartEquity  decimal.Decimal `json:"day_start_equity"`
	DayStart        time.Time       `json:"day_start"`
}

// Имена правил
const (
	RuleMaxDailyLoss     = "max_daily_loss"
	RuleMaxContracts     = "max_contracts"
	RuleTrailingDrawdown = "trailing_drawdown"
	RuleProfitTarget     = "profit_target"
)

// Причины отказа precheck'а
const (
	ReasonDailyLossReached    = "Daily loss limit reached"
	ReasonMaxContracts        = "Max contracts exceeded"
	ReasonTrailingDrawdownHit = "Trailing drawdown limit reached"
)

// Уровни важности
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// RuleViolation зафиксированное нарушение правила счёта
type RuleViolation struct {
	ID         string          `json:"id" db:"id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Rule       string          `json:"rule" db:"rule"`
	Severity   string          `json:"severity" db:"severity"`
	Message    string          `json:"message" db:"message"`
	Value      decimal.Decimal `json:"value" db:"value"`
	Limit      decimal.Decimal `json:"limit" db:"limit_value"`
	Flattened  bool            `json:"flattened" db:"flattened"`
	DetectedAt time.Time       `json:"detected_at" db:"detected_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Active нарушение ещё не снято
func (v *RuleViolation) Active() bool {
	return v.ResolvedAt == nil
}

// ============================================================
// Push-уведомления
// ============================================================

// EventType тип push-события
type EventType string

const (
	EventAccountUpdate      EventType = "accountUpdate"
	EventOrderUpdate        EventType = "orderUpdate"
	EventStrategyTransition EventType = "strategyTransition"
	EventRiskViolation      EventType = "riskViolation"
)

// Event конверт push-уведомления. Seq монотонно растёт в пределах процесса,
// клиент может по нему восстановить порядок и обнаружить пропуски.
type Event struct {
	Seq        uint64      `json:"seq"`
	Type       EventType   `json:"type"`
	AccountID  string      `json:"account_id,omitempty"`
	StrategyID string      `json:"strategy_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}
