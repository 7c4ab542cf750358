package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/pkg/utils"
)

// Side направление алерта или ордера
type Side string

const (
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
	SideClose Side = "close" // только для алертов: закрыть позицию по символу
)

// GroupAuto группа счетов по умолчанию: маршрут выбирается по классу инструмента
const GroupAuto = "auto"

// PaperGroupPrefix префикс paper-группы, в которую губернатор переписывает алерты
const PaperGroupPrefix = "paper_"

// Alert нормализованный торговый сигнал (TradingView webhook, Kafka, REST).
// Значение неизменяемо после Normalize.
type Alert struct {
	Symbol       string           `json:"symbol"`
	Side         Side             `json:"side"`
	Quantity     int              `json:"quantity"`
	Price        *decimal.Decimal `json:"price,omitempty"` // задана -> лимитный ордер
	StrategyID   string           `json:"strategy_id,omitempty"` // пусто -> без учёта губернатором, LIVE
	AccountGroup string           `json:"account_group"`
	Comment      string           `json:"comment,omitempty"`
	ReceivedAt   time.Time        `json:"received_at"`
}

// Normalize возвращает копию алерта в канонической форме
func (a Alert) Normalize() Alert {
	a.Symbol = utils.NormalizeSymbol(a.Symbol)
	a.Side = Side(strings.ToLower(strings.TrimSpace(string(a.Side))))
	a.StrategyID = strings.TrimSpace(a.StrategyID)
	a.AccountGroup = strings.ToLower(strings.TrimSpace(a.AccountGroup))
	if a.AccountGroup == "" {
		a.AccountGroup = GroupAuto
	}
	if a.ReceivedAt.IsZero() {
		a.ReceivedAt = time.Now().UTC()
	}
	return a
}

// Validate проверяет алерт; ошибки оборачиваются в ErrValidation
func (a Alert) Validate() error {
	if err := utils.ValidateSymbol(a.Symbol); err != nil {
		return NewExecutionError(KindValidation, err.Error(), err)
	}
	if err := utils.ValidateSide(string(a.Side)); err != nil {
		return NewExecutionError(KindValidation, err.Error(), err)
	}
	if err := utils.ValidateQuantity(a.Quantity); err != nil {
		return NewExecutionError(KindValidation, err.Error(), err)
	}
	if err := utils.ValidateAccountGroup(a.AccountGroup); err != nil {
		return NewExecutionError(KindValidation, err.Error(), err)
	}
	if a.Price != nil && !a.Price.IsPositive() {
		return NewExecutionError(KindValidation, fmt.Sprintf("price must be positive, got %s", a.Price), nil)
	}
	return nil
}

// IsPaperGroup true для групп вида paper_<group>
func IsPaperGroup(group string) bool {
	return strings.HasPrefix(group, PaperGroupPrefix)
}
