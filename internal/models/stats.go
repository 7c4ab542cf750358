package models

import "github.com/shopspring/decimal"

// Metrics агрегаты по закрытым сделкам счёта
type Metrics struct {
	AccountID    string          `json:"account_id"`
	WinRate      float64         `json:"win_rate"`
	ProfitFactor decimal.Decimal `json:"profit_factor"`
	TotalPnl     decimal.Decimal `json:"total_pnl"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown"`
	TotalTrades  int             `json:"total_trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
}

// ResultStatus итог маршрутизации алерта
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultRejected ResultStatus = "rejected"
	ResultError    ResultStatus = "error"
)

// ExecutionResult результат Route: либо исполнение, либо отказ с кодом и причиной
type ExecutionResult struct {
	Status    ResultStatus `json:"status"`
	Kind      ErrorKind    `json:"kind,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	AccountID string       `json:"account_id,omitempty"`
	Adapter   string       `json:"adapter,omitempty"`
	Mode      TradeMode    `json:"mode,omitempty"`
	Order     *Order       `json:"order,omitempty"`
	Fill      *Fill        `json:"fill,omitempty"` // первый fill
	Fills     []Fill       `json:"fills,omitempty"`
}

// Succeeded true для status == success
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == ResultSuccess
}

// Rejected результат-отказ; ExecutionFailed считается ошибкой, остальное отказом
func Rejected(kind ErrorKind, reason string) *ExecutionResult {
	status := ResultRejected
	if kind == KindExecutionFailed {
		status = ResultError
	}
	return &ExecutionResult{Status: status, Kind: kind, Reason: reason}
}
