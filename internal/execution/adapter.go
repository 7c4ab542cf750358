// Package execution содержит адаптеры исполнения: встроенный симулятор
// и сетевые адаптеры песочниц брокеров за единым интерфейсом Adapter.
package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
)

// Adapter унифицированный интерфейс исполнения алерта
type Adapter interface {
	// Name имя адаптера в реестре (simulator, futures_sandbox, ...)
	Name() string

	// ExecuteAlert исполняет запрос. Ошибки классифицируются через
	// models.ExecutionError и retry.Temporary/Permanent.
	ExecuteAlert(ctx context.Context, req *Request) (*Report, error)
}

// Request запрос к адаптеру. Единственная форма входа в адаптер:
// алерты и синтетические ордера приводятся к нему через NewRequest / RequestFromOrder.
type Request struct {
	OrderID    string
	AccountID  string
	StrategyID string
	Symbol     string
	Side       models.Side // только buy/sell
	Quantity   int
	Type       models.OrderType
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	Mode       models.TradeMode
	Comment    string
	Synthetic  bool

	// Account снимок счёта на момент запроса (для buying power)
	Account *models.Account
}

// Signed количество со знаком стороны
func (r *Request) Signed() int {
	if r.Side == models.SideSell {
		return -r.Quantity
	}
	return r.Quantity
}

// NewRequest приводит алерт и созданный под него ордер к запросу адаптера.
// Сторона и количество берутся из ордера: close уже разрешён роутером.
func NewRequest(alert models.Alert, order *models.Order, acc *models.Account) *Request {
	req := RequestFromOrder(order, acc)
	req.Comment = alert.Comment
	return req
}

// RequestFromOrder запрос для ордера без алерта (flatten, sweep)
func RequestFromOrder(order *models.Order, acc *models.Account) *Request {
	return &Request{
		OrderID:    order.ID,
		AccountID:  order.AccountID,
		StrategyID: order.StrategyID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Remaining(),
		Type:       order.Type,
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
		Mode:       order.Mode,
		Synthetic:  order.Synthetic,
		Account:    acc,
	}
}

// Report результат адаптера
type Report struct {
	// Fills исполнения; пусто, если ордер остался в стакане
	Fills []models.Fill

	// Working ордер принят и ждёт исполнения (лимитный, стоп)
	Working bool

	// BrokerOrderID идентификатор ордера на стороне брокера
	BrokerOrderID string

	Message string
}

// FilledQuantity суммарное исполненное количество
func (r *Report) FilledQuantity() int {
	total := 0
	for _, f := range r.Fills {
		total += f.Quantity
	}
	return total
}

// ============================================================
// Registry
// ============================================================

// Registry реестр адаптеров по имени
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry создаёт реестр с набором адаптеров
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register добавляет или заменяет адаптер
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

// Lookup адаптер по имени; отсутствие -> NoExecutionEngine
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, models.NewExecutionError(models.KindNoExecutionEngine,
			fmt.Sprintf("no execution engine registered for %q", name), nil)
	}
	return a, nil
}

// Names отсортированные имена зарегистрированных адаптеров
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
