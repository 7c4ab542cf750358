package ledger

import (
	"context"

	"tradecore/internal/models"
)

// Journal получает каждую мутацию леджера для долговременного хранения.
// Ошибки журнала логируются, состояние в памяти остаётся источником истины.
type Journal interface {
	SaveAccount(ctx context.Context, acc *models.Account) error
	SaveOrder(ctx context.Context, order *models.Order) error
	AppendFill(ctx context.Context, fill *models.Fill) error
	AppendTrade(ctx context.Context, trade *models.TradeOutcome) error
	ResetAccount(ctx context.Context, accountID string) error
}

// Snapshot загружает сохранённое состояние при старте
type Snapshot interface {
	LoadAccounts(ctx context.Context) ([]*models.Account, error)
	LoadOrders(ctx context.Context, accountID string) ([]*models.Order, error)
	LoadFills(ctx context.Context, accountID string) ([]*models.Fill, error)
	LoadTrades(ctx context.Context, accountID string) ([]*models.TradeOutcome, error)
}

// OutcomeRecorder фиксирует итог сделки внутри критической секции счёта
// и возвращает его с проставленными номером набора и позицией в нём.
// Реализуется губернатором стратегий.
type OutcomeRecorder interface {
	Record(outcome models.TradeOutcome) models.TradeOutcome
}

// OrderExecutor исполняет синтетические ордера леджера (flatten) через адаптер счёта
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, order *models.Order) *models.ExecutionResult
}

// Notifier получает снимки изменений после освобождения lock'а счёта
type Notifier interface {
	AccountChanged(acc *models.Account)
	OrderChanged(order *models.Order)
}

// FillUpdate снимок состояния после применения fill'а
type FillUpdate struct {
	Account  *models.Account
	Order    *models.Order
	Fill     models.Fill
	Outcomes []models.TradeOutcome
}

// FillHook вызывается после применения fill'а вне lock'а счёта
type FillHook func(ctx context.Context, update FillUpdate)

type nopJournal struct{}

func (nopJournal) SaveAccount(context.Context, *models.Account) error      { return nil }
func (nopJournal) SaveOrder(context.Context, *models.Order) error          { return nil }
func (nopJournal) AppendFill(context.Context, *models.Fill) error          { return nil }
func (nopJournal) AppendTrade(context.Context, *models.TradeOutcome) error { return nil }
func (nopJournal) ResetAccount(context.Context, string) error              { return nil }

type nopNotifier struct{}

func (nopNotifier) AccountChanged(*models.Account) {}
func (nopNotifier) OrderChanged(*models.Order)     {}
