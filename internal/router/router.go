// Package router - точка входа алертов: режим стратегии, выбор счёта и адаптера,
// предпроверка риска, исполнение и применение fill'ов в леджер.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/execution"
	"tradecore/internal/ledger"
	"tradecore/internal/metrics"
	"tradecore/internal/models"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

// ============================================================
// Зависимости
// ============================================================

// Ledger операции леджера, нужные роутеру
type Ledger interface {
	GetAccount(id string) (*models.Account, error)
	EnsureAccount(ctx context.Context, template models.Account) (*models.Account, error)
	CreateOrder(ctx context.Context, order models.Order) (*models.Order, error)
	GetOrder(orderID string) (*models.Order, error)
	TransitionOrder(ctx context.Context, orderID string, to models.OrderStatus, reason string) (*models.Order, error)
	ApplyFill(ctx context.Context, fill models.Fill) (*ledger.FillUpdate, error)
}

// Governor режимы стратегий
type Governor interface {
	Ensure(ctx context.Context, strategyID string) (*models.StrategyPerformance, error)
	Mode(strategyID string) models.StrategyMode
}

// Prechecker предпроверка правил funded-счёта
type Prechecker interface {
	Precheck(alert models.Alert, acc *models.Account) (bool, string)
}

// Adapters реестр адаптеров
type Adapters interface {
	Lookup(name string) (execution.Adapter, error)
}

// ============================================================
// Конфигурация
// ============================================================

// Config маршрутизация групп счетов
type Config struct {
	// Groups явные группы: имя группы -> ID счёта
	Groups map[string]string

	// Группы для auto по классу инструмента
	AutoFuturesGroup  string
	AutoEquitiesGroup string
	AutoDefaultGroup  string

	// SimulatorAdapter адаптер счетов без явного адаптера и paper-счетов
	SimulatorAdapter string

	// PaperBalance стартовый баланс автоматически созданных paper-счетов
	PaperBalance decimal.Decimal

	// AttemptTimeout таймаут одной попытки адаптера
	AttemptTimeout time.Duration
}

// DefaultConfig группы futures / equities / simulator, paper-баланс 100000, таймаут 5с
func DefaultConfig() Config {
	return Config{
		Groups:            map[string]string{},
		AutoFuturesGroup:  "futures",
		AutoEquitiesGroup: "equities",
		AutoDefaultGroup:  "simulator",
		SimulatorAdapter:  execution.DefaultSimulatorName,
		PaperBalance:      decimal.NewFromInt(100000),
		AttemptTimeout:    5 * time.Second,
	}
}

// ============================================================
// Router
// ============================================================

// Router маршрутизатор алертов
//
// Route(alert):
//  1. нормализация и валидация
//  2. губернатор: SUSPENDED -> отказ, PAPER -> группа paper_<group>
//  3. группа -> счёт и адаптер
//  4. предпроверка риска
//  5. ордер PENDING -> WORKING, вызов адаптера вне lock'а счёта (один повтор)
//  6. fill'ы в леджер; губернатор фиксирует итоги внутри критической секции
type Router struct {
	ledger   Ledger
	governor Governor
	risk     Prechecker
	adapters Adapters
	config   Config

	retryConfig retry.Config
	logger      *utils.Logger
}

// New создаёт роутер
func New(l Ledger, g Governor, risk Prechecker, adapters Adapters, config Config, logger *utils.Logger) *Router {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if config.Groups == nil {
		config.Groups = map[string]string{}
	}
	if config.SimulatorAdapter == "" {
		config.SimulatorAdapter = execution.DefaultSimulatorName
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 5 * time.Second
	}
	r := &Router{
		ledger:   l,
		governor: g,
		risk:     risk,
		adapters: adapters,
		config:   config,
		logger:   logger.WithComponent("router"),
	}
	r.retryConfig = retry.RouterConfig(config.AttemptTimeout)
	return r
}

// SetRetryConfig заменяет политику повторов (тесты, тонкая настройка)
func (r *Router) SetRetryConfig(cfg retry.Config) {
	r.retryConfig = cfg
}

var _ ledger.OrderExecutor = (*Router)(nil)

// Route обрабатывает алерт. Никогда не паникует: любой сбой возвращается
// результатом с кодом ошибки.
func (r *Router) Route(ctx context.Context, alert models.Alert) (result *models.ExecutionResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("route panic recovered", utils.Any("panic", p), utils.Symbol(alert.Symbol))
			result = models.Rejected(models.KindExecutionFailed, fmt.Sprintf("internal error: %v", p))
		}
		metrics.RecordRoute(string(result.Status), string(result.Kind), time.Since(start))
	}()

	alert = alert.Normalize()
	if err := alert.Validate(); err != nil {
		return r.reject(alert, err)
	}

	// 1. Режим стратегии; алерт без стратегии идёт как LIVE
	mode := models.ModeLive
	if alert.StrategyID != "" {
		if _, err := r.governor.Ensure(ctx, alert.StrategyID); err != nil {
			return r.reject(alert, err)
		}
		mode = r.governor.Mode(alert.StrategyID)
	}
	switch mode {
	case models.ModeSuspended:
		return r.reject(alert, models.NewExecutionError(models.KindStrategySuspended,
			fmt.Sprintf("strategy %s is suspended", alert.StrategyID), nil))
	case models.ModePaper:
		if !models.IsPaperGroup(alert.AccountGroup) {
			r.logger.Info("alert rerouted to paper",
				utils.StrategyID(alert.StrategyID), utils.Group(alert.AccountGroup))
			alert.AccountGroup = models.PaperGroupPrefix + alert.AccountGroup
			metrics.PaperRewrites.WithLabelValues(alert.StrategyID).Inc()
		}
	}
	tradeMode := models.TradeLive
	if models.IsPaperGroup(alert.AccountGroup) {
		tradeMode = models.TradePaper
	}

	// 2. Счёт и адаптер
	target, err := r.Resolve(ctx, alert.AccountGroup, alert.Symbol)
	if err != nil {
		return r.reject(alert, err)
	}
	adapter, err := r.adapters.Lookup(target.Adapter)
	if err != nil {
		return r.reject(alert, err)
	}
	acc, err := r.ledger.GetAccount(target.AccountID)
	if err != nil {
		return r.reject(alert, models.NewExecutionError(models.KindNoExecutionEngine,
			fmt.Sprintf("account %s is not available", target.AccountID), err))
	}

	// close -> сторона и количество по текущей позиции
	side, qty, err := resolveSide(alert, acc)
	if err != nil {
		return r.reject(alert, err)
	}
	checked := alert
	checked.Side, checked.Quantity = side, qty

	// 3. Предпроверка риска
	if ok, reason := r.risk.Precheck(checked, acc); !ok {
		return r.reject(alert, models.NewExecutionError(models.KindRiskViolation, reason, nil))
	}

	// 4. Ордер
	order := models.Order{
		AccountID:  acc.ID,
		StrategyID: alert.StrategyID,
		Symbol:     alert.Symbol,
		Side:       side,
		Type:       models.OrderTypeMarket,
		Quantity:   qty,
		Mode:       tradeMode,
		Adapter:    adapter.Name(),
	}
	if alert.Price != nil {
		price := *alert.Price
		order.Type = models.OrderTypeLimit
		order.LimitPrice = &price
	}
	created, err := r.ledger.CreateOrder(ctx, order)
	if err != nil {
		return r.reject(alert, err)
	}

	r.logger.Info("routing alert",
		utils.OrderID(created.ID),
		utils.StrategyID(alert.StrategyID),
		utils.AccountID(acc.ID),
		utils.Adapter(adapter.Name()),
		utils.Symbol(alert.Symbol),
		utils.Side(string(side)),
		utils.Quantity(qty),
		utils.Mode(string(tradeMode)),
	)

	// 5-6. Исполнение и fill'ы
	return r.execute(ctx, adapter, created, execution.NewRequest(alert, created, acc))
}

// ExecuteOrder исполняет ордер, уже созданный леджером (flatten):
// без губернатора и предпроверки, через адаптер счёта
func (r *Router) ExecuteOrder(ctx context.Context, order *models.Order) *models.ExecutionResult {
	acc, err := r.ledger.GetAccount(order.AccountID)
	if err != nil {
		return r.failOrder(ctx, order, err)
	}
	name := order.Adapter
	if name == "" {
		name = r.adapterFor(acc)
	}
	adapter, err := r.adapters.Lookup(name)
	if err != nil {
		return r.failOrder(ctx, order, err)
	}
	return r.execute(ctx, adapter, order, execution.RequestFromOrder(order, acc))
}

// execute переводит ордер в WORKING, вызывает адаптер с повтором и применяет fill'ы
func (r *Router) execute(ctx context.Context, adapter execution.Adapter, order *models.Order, req *execution.Request) *models.ExecutionResult {
	if order.Status == models.OrderPending {
		working, err := r.ledger.TransitionOrder(ctx, order.ID, models.OrderWorking, "")
		if err != nil {
			return r.failOrder(ctx, order, err)
		}
		order = working
	}

	cfg := r.retryConfig
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.AdapterRetries.WithLabelValues(adapter.Name()).Inc()
		r.logger.Warn("adapter call failed, retrying",
			utils.OrderID(order.ID),
			utils.Adapter(adapter.Name()),
			utils.Int("attempt", attempt),
			utils.Dur("delay", delay),
			utils.Err(err),
		)
	}

	report, err := retry.DoWithResult(ctx, func(ctx context.Context) (*execution.Report, error) {
		return r.call(ctx, adapter, req)
	}, cfg)
	if err != nil {
		return r.failOrder(ctx, order, err)
	}

	result := &models.ExecutionResult{
		Status:    models.ResultSuccess,
		AccountID: order.AccountID,
		Adapter:   adapter.Name(),
		Mode:      order.Mode,
		Order:     order,
	}
	if report.Working && len(report.Fills) == 0 {
		result.Reason = "order working"
		if report.Message != "" {
			result.Reason = report.Message
		}
		return result
	}

	for _, f := range report.Fills {
		f.OrderID = order.ID
		update, err := r.ledger.ApplyFill(ctx, f)
		if err != nil {
			if len(result.Fills) == 0 {
				return r.failOrder(ctx, order, err)
			}
			r.logger.Error("fill rejected by ledger",
				utils.OrderID(order.ID), utils.FillID(f.ID), utils.Err(err))
			break
		}
		result.Fills = append(result.Fills, update.Fill)
		result.Order = update.Order
		metrics.RecordFill(order.AccountID, string(update.Fill.Side))
		metrics.UpdateEquity(order.AccountID, update.Account.Equity().InexactFloat64())
	}
	if len(result.Fills) > 0 {
		first := result.Fills[0]
		result.Fill = &first
	}
	return result
}

// call одна попытка адаптера; паника адаптера превращается в ExecutionFailed
func (r *Router) call(ctx context.Context, adapter execution.Adapter, req *execution.Request) (report *execution.Report, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			metrics.AdapterPanics.WithLabelValues(adapter.Name()).Inc()
			r.logger.Error("adapter panic recovered",
				utils.Adapter(adapter.Name()), utils.OrderID(req.OrderID), utils.Any("panic", p))
			report = nil
			err = retry.Permanent(models.NewExecutionError(models.KindExecutionFailed,
				fmt.Sprintf("adapter %s panicked: %v", adapter.Name(), p), nil))
		}
		metrics.RecordAdapterCall(adapter.Name(), err == nil, time.Since(start))
	}()

	report, err = adapter.ExecuteAlert(ctx, req)
	if err == nil && report == nil {
		err = retry.Permanent(models.NewExecutionError(models.KindExecutionFailed,
			fmt.Sprintf("adapter %s returned no report", adapter.Name()), nil))
	}
	return report, err
}

// failOrder отклоняет ордер и формирует результат. InsufficientBuyingPower и
// ValidationError сохраняют свой код, прочие сбои адаптера - ExecutionFailed.
func (r *Router) failOrder(ctx context.Context, order *models.Order, cause error) *models.ExecutionResult {
	kind := models.KindOf(cause)
	switch kind {
	case models.KindInsufficientBuyingPower, models.KindValidation, models.KindNoExecutionEngine:
	default:
		kind = models.KindExecutionFailed
	}
	reason := models.ReasonOf(cause)

	result := models.Rejected(kind, reason)
	result.AccountID = order.AccountID
	result.Adapter = order.Adapter
	result.Mode = order.Mode
	result.Order = order

	if current, err := r.ledger.GetOrder(order.ID); err == nil && !current.IsTerminal() {
		if rejected, err := r.ledger.TransitionOrder(ctx, order.ID, models.OrderRejected, reason); err == nil {
			result.Order = rejected
		} else {
			// частично исполненный ордер отклонить нельзя
			result.Order = current
		}
	}

	r.logger.Warn("order failed",
		utils.OrderID(order.ID),
		utils.AccountID(order.AccountID),
		utils.String("kind", string(kind)),
		utils.String("reason", reason),
	)
	return result
}

// reject отказ до создания ордера
func (r *Router) reject(alert models.Alert, err error) *models.ExecutionResult {
	kind := models.KindOf(err)
	reason := models.ReasonOf(err)
	r.logger.Info("alert rejected",
		utils.StrategyID(alert.StrategyID),
		utils.Symbol(alert.Symbol),
		utils.Group(alert.AccountGroup),
		utils.String("kind", string(kind)),
		utils.String("reason", reason),
	)
	return models.Rejected(kind, reason)
}

// resolveSide разрешает close в сторону, противоположную позиции.
// Количество close ограничено размером позиции.
func resolveSide(alert models.Alert, acc *models.Account) (models.Side, int, error) {
	if alert.Side != models.SideClose {
		return alert.Side, alert.Quantity, nil
	}
	pos := acc.Positions[alert.Symbol]
	if pos == nil || pos.IsFlat() {
		return "", 0, models.NewExecutionError(models.KindValidation,
			fmt.Sprintf("no open %s position on %s to close", alert.Symbol, acc.ID), nil)
	}
	side := models.SideSell
	if pos.Quantity < 0 {
		side = models.SideBuy
	}
	return side, utils.MinInt(alert.Quantity, utils.AbsInt(pos.Quantity)), nil
}
