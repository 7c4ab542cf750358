package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/market"
	"tradecore/internal/models"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

// ============================================================
// Simulator - встроенный движок бумажных исполнений
// ============================================================
//
// Детерминирован при фиксированном источнике цен:
//   1. задержка (модель round-trip до биржи, подменяется в тестах)
//   2. референсная цена из PriceSource
//   3. проскальзывание: base + min(qty/divisor, cap), покупка дороже, продажа дешевле
//   4. проверка buying power (без частичных исполнений)
//   5. комиссия по классу инструмента
//
// Симулятор сам леджер не меняет: fill'ы возвращаются роутеру,
// который применяет их через Ledger.ApplyFill. Исключение - SweepWorking,
// где исполняются ранее выставленные лимитные ордера.

// DefaultSimulatorName имя симулятора в реестре адаптеров
const DefaultSimulatorName = "simulator"

// SimulatorConfig параметры трения
type SimulatorConfig struct {
	Latency           time.Duration
	BaseSlippage      decimal.Decimal
	SizeImpactDivisor int64
	MaxSlippage       decimal.Decimal
	Commissions       market.CommissionTable
}

// DefaultSimulatorConfig значения по умолчанию
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Latency:           50 * time.Millisecond,
		BaseSlippage:      decimal.RequireFromString("0.0001"),
		SizeImpactDivisor: 1000,
		MaxSlippage:       decimal.RequireFromString("0.001"),
		Commissions:       market.DefaultCommissions(),
	}
}

// DelayFunc модель задержки исполнения
type DelayFunc func(ctx context.Context) error

// NoDelay задержка-заглушка для тестов
func NoDelay(context.Context) error { return nil }

// Book часть леджера, нужная симулятору для рабочих ордеров
type Book interface {
	GetAccount(id string) (*models.Account, error)
	WorkingOrders(accountID string) ([]*models.Order, error)
	ApplyFill(ctx context.Context, fill models.Fill) (*ledger.FillUpdate, error)
	TransitionOrder(ctx context.Context, orderID string, to models.OrderStatus, reason string) (*models.Order, error)
}

// Simulator реализует Adapter
type Simulator struct {
	name   string
	cfg    SimulatorConfig
	prices market.PriceSource
	book   Book
	delay  DelayFunc
	logger *utils.Logger
	now    func() time.Time
}

// SimulatorOption настройка симулятора
type SimulatorOption func(*Simulator)

// WithDelay подменяет модель задержки
func WithDelay(d DelayFunc) SimulatorOption {
	return func(s *Simulator) { s.delay = d }
}

// WithSimulatorName регистрирует симулятор под другим именем
func WithSimulatorName(name string) SimulatorOption {
	return func(s *Simulator) { s.name = name }
}

// WithSimulatorClock подменяет время fill'ов
func WithSimulatorClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) { s.now = now }
}

// NewSimulator создаёт симулятор
func NewSimulator(cfg SimulatorConfig, prices market.PriceSource, book Book, logger *utils.Logger, opts ...SimulatorOption) *Simulator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	s := &Simulator{
		name:   DefaultSimulatorName,
		cfg:    cfg,
		prices: prices,
		book:   book,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.delay = s.sleep
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.WithAdapter(s.name)
	return s
}

var _ Adapter = (*Simulator)(nil)

// Name имя в реестре
func (s *Simulator) Name() string { return s.name }

func (s *Simulator) sleep(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecuteAlert исполняет запрос по текущей цене.
// Немаркетабельный лимитный или неактивированный стоп-ордер возвращается как Working.
func (s *Simulator) ExecuteAlert(ctx context.Context, req *Request) (*Report, error) {
	if err := s.delay(ctx); err != nil {
		return nil, retry.Temporary(fmt.Errorf("simulator delay: %w", err))
	}

	ref, err := s.prices.Price(ctx, req.Symbol)
	if err != nil {
		return nil, retry.Temporary(models.NewExecutionError(models.KindExecutionFailed,
			fmt.Sprintf("no reference price for %s", req.Symbol), err))
	}

	fill, ok, err := s.quote(req, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Debug("order resting",
			utils.OrderID(req.OrderID), utils.Symbol(req.Symbol), utils.Price(ref),
			utils.String("order_type", string(req.Type)),
		)
		return &Report{Working: true, Message: "order working"}, nil
	}

	s.logger.Debug("simulated fill",
		utils.OrderID(req.OrderID),
		utils.Symbol(req.Symbol),
		utils.Side(string(req.Side)),
		utils.Quantity(fill.Quantity),
		utils.Money("reference", ref),
		utils.Price(fill.Price),
	)
	return &Report{Fills: []models.Fill{fill}, BrokerOrderID: "sim-" + req.OrderID}, nil
}

// quote рассчитывает fill по референсной цене; ok=false - ордер не исполним сейчас
func (s *Simulator) quote(req *Request, ref decimal.Decimal) (models.Fill, bool, error) {
	if req.Quantity <= 0 {
		return models.Fill{}, false, models.NewExecutionError(models.KindValidation, "quantity must be positive", nil)
	}
	if !ref.IsPositive() {
		return models.Fill{}, false, models.NewExecutionError(models.KindExecutionFailed,
			fmt.Sprintf("invalid reference price %s for %s", ref, req.Symbol), nil)
	}

	buy := req.Side == models.SideBuy
	slip := utils.Slippage(req.Quantity, s.cfg.BaseSlippage, s.cfg.SizeImpactDivisor, s.cfg.MaxSlippage)
	price := utils.ApplySlippage(ref, slip, buy)

	orderType := req.Type
	if orderType == models.OrderTypeStop || orderType == models.OrderTypeStopLimit {
		if req.StopPrice == nil {
			return models.Fill{}, false, models.NewExecutionError(models.KindValidation, "stop price is required", nil)
		}
		if !stopTriggered(buy, ref, *req.StopPrice) {
			return models.Fill{}, false, nil
		}
		if orderType == models.OrderTypeStop {
			orderType = models.OrderTypeMarket
		} else {
			orderType = models.OrderTypeLimit
		}
	}

	switch orderType {
	case models.OrderTypeMarket, "":
	case models.OrderTypeLimit:
		if req.LimitPrice == nil {
			return models.Fill{}, false, models.NewExecutionError(models.KindValidation, "limit price is required", nil)
		}
		limit := *req.LimitPrice
		if buy {
			if ref.GreaterThan(limit) {
				return models.Fill{}, false, nil
			}
			price = decimal.Min(price, limit)
		} else {
			if ref.LessThan(limit) {
				return models.Fill{}, false, nil
			}
			price = decimal.Max(price, limit)
		}
	default:
		return models.Fill{}, false, models.NewExecutionError(models.KindValidation,
			fmt.Sprintf("unsupported order type %q", req.Type), models.ErrUnsupportedOrder)
	}

	if acc := req.Account; acc != nil && ledger.EnforcesBuyingPower(acc) {
		required, available := ledger.CapitalCheck(acc, req.Symbol, req.Signed(), price)
		if required.GreaterThan(available) {
			return models.Fill{}, false, models.NewExecutionError(models.KindInsufficientBuyingPower,
				fmt.Sprintf("required capital %s exceeds buying power %s",
					required.StringFixed(2), available.StringFixed(2)), nil)
		}
	}

	return models.Fill{
		ID:         uuid.NewString(),
		OrderID:    req.OrderID,
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      price,
		Quantity:   req.Quantity,
		Commission: s.cfg.Commissions.For(req.Symbol, req.Quantity),
		Slippage:   price.Sub(ref).Abs(),
		Timestamp:  s.now(),
	}, true, nil
}

func stopTriggered(buy bool, ref, stop decimal.Decimal) bool {
	if buy {
		return ref.GreaterThanOrEqual(stop)
	}
	return ref.LessThanOrEqual(stop)
}

// SweepWorking пробует исполнить рабочие ордера счёта по текущим ценам.
// Ордер, который стал маркетабельным, но не проходит по buying power, отклоняется.
func (s *Simulator) SweepWorking(ctx context.Context, accountID string) ([]*ledger.FillUpdate, error) {
	orders, err := s.book.WorkingOrders(accountID)
	if err != nil {
		return nil, err
	}

	var updates []*ledger.FillUpdate
	for _, o := range orders {
		acc, err := s.book.GetAccount(accountID)
		if err != nil {
			return updates, err
		}
		ref, err := s.prices.Price(ctx, o.Symbol)
		if err != nil {
			s.logger.Debug("sweep: no price", utils.Symbol(o.Symbol), utils.Err(err))
			continue
		}

		fill, ok, err := s.quote(RequestFromOrder(o, acc), ref)
		if err != nil {
			reason := models.ReasonOf(err)
			if _, terr := s.book.TransitionOrder(ctx, o.ID, models.OrderRejected, reason); terr != nil {
				s.logger.Warn("sweep: reject failed", utils.OrderID(o.ID), utils.Err(terr))
			}
			continue
		}
		if !ok {
			continue
		}

		upd, err := s.book.ApplyFill(ctx, fill)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientBuyingPower) {
				if _, terr := s.book.TransitionOrder(ctx, o.ID, models.OrderRejected, models.ReasonOf(err)); terr != nil {
					s.logger.Warn("sweep: reject failed", utils.OrderID(o.ID), utils.Err(terr))
				}
			}
			s.logger.Warn("sweep: apply fill failed", utils.OrderID(o.ID), utils.Err(err))
			continue
		}
		updates = append(updates, upd)
	}
	return updates, nil
}
