package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradecore/internal/governor"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// TradingService предоставляет бизнес-операции поверх конвейера исполнения.
//
// Отвечает за:
// - приём алертов (HTTP и Kafka) и передачу в роутер
// - запросы и команды по счетам: reset, flatten, отмена ордеров
// - просмотр и ручную смену режимов стратегий
// - просмотр и снятие нарушений funded-правил
// - ручную установку референсных цен с немедленной переоценкой
//
// Собственного состояния не хранит: всё живёт в леджере, губернаторе и риск-движке.
type TradingService struct {
	ledger   LedgerInterface
	router   RouterInterface
	governor GovernorInterface
	risk     RiskEngineInterface
	prices   PriceSetter
	logger   *utils.Logger
}

// NewTradingService создает новый экземпляр TradingService.
// prices может быть nil: тогда SetPrice недоступен.
func NewTradingService(
	l LedgerInterface,
	r RouterInterface,
	g GovernorInterface,
	risk RiskEngineInterface,
	prices PriceSetter,
	logger *utils.Logger,
) *TradingService {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &TradingService{
		ledger:   l,
		router:   r,
		governor: g,
		risk:     risk,
		prices:   prices,
		logger:   logger.WithComponent("trading_service"),
	}
}

// ============================================================
// Алерты
// ============================================================

// SubmitAlert маршрутизирует алерт. Ошибки конвейера возвращаются внутри результата.
func (s *TradingService) SubmitAlert(ctx context.Context, alert models.Alert) *models.ExecutionResult {
	return s.router.Route(ctx, alert)
}

// ============================================================
// Счета
// ============================================================

// ListAccounts все счета
func (s *TradingService) ListAccounts() []*models.Account {
	return s.ledger.ListAccounts()
}

// GetAccount счёт по ID
func (s *TradingService) GetAccount(id string) (*models.Account, error) {
	return s.ledger.GetAccount(id)
}

// ResetAccount возвращает счёт к начальному балансу и забывает его нарушения.
// Production-счета сбросить нельзя (ErrResetForbidden).
func (s *TradingService) ResetAccount(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.ledger.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	s.risk.ForgetAccount(id)
	return acc, nil
}

// FlattenAccount закрывает все позиции счёта рыночными ордерами.
// Частичные неудачи возвращаются вместе с результатами.
func (s *TradingService) FlattenAccount(ctx context.Context, id string) ([]*models.ExecutionResult, error) {
	if _, err := s.ledger.GetAccount(id); err != nil {
		return nil, err
	}
	results, err := s.ledger.Flatten(ctx, id, "manual flatten")
	if err != nil {
		s.logger.Warn("manual flatten finished with errors", utils.AccountID(id), utils.Err(err))
	}
	return results, err
}

func (s *TradingService) ListOrders(accountID string) ([]*models.Order, error) {
	return s.ledger.ListOrders(accountID)
}

func (s *TradingService) ListFills(accountID string) ([]*models.Fill, error) {
	return s.ledger.ListFills(accountID)
}

func (s *TradingService) ListTrades(accountID string) ([]*models.TradeOutcome, error) {
	return s.ledger.ListTrades(accountID)
}

// GetMetrics агрегаты по закрытым сделкам счёта
func (s *TradingService) GetMetrics(accountID string) (*models.Metrics, error) {
	return s.ledger.Metrics(accountID)
}

// CancelOrder отменяет рабочий ордер в леджере.
// Отмена у брокера не выполняется: песочница исполняет рыночные ордера сразу.
func (s *TradingService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", models.ErrValidation)
	}
	order, err := s.ledger.CancelOrder(ctx, orderID, "cancelled by user")
	if err != nil {
		return nil, err
	}
	s.logger.Info("order cancelled", utils.OrderID(order.ID), utils.AccountID(order.AccountID))
	return order, nil
}

// ============================================================
// Стратегии
// ============================================================

// StrategyView состояние стратегии с описанием режима для UI
type StrategyView struct {
	*models.StrategyPerformance
	ModeDescription string `json:"mode_description"`
	RoutesLive      bool   `json:"routes_live"`
}

func newStrategyView(p *models.StrategyPerformance) *StrategyView {
	return &StrategyView{
		StrategyPerformance: p,
		ModeDescription:     governor.ModeInfo(p.CurrentMode),
		RoutesLive:          governor.RoutesLive(p.CurrentMode),
	}
}

// ListStrategies все известные стратегии
func (s *TradingService) ListStrategies() []*StrategyView {
	list := s.governor.List()
	out := make([]*StrategyView, 0, len(list))
	for _, p := range list {
		out = append(out, newStrategyView(p))
	}
	return out
}

// GetStrategyPerformance наборы, текущий режим и история переходов стратегии
func (s *TradingService) GetStrategyPerformance(strategyID string) (*StrategyView, error) {
	p, err := s.governor.Get(strategyID)
	if err != nil {
		return nil, err
	}
	return newStrategyView(p), nil
}

// OverrideStrategyMode ручная смена режима (live | paper | suspended)
func (s *TradingService) OverrideStrategyMode(ctx context.Context, strategyID, mode, reason string) (*StrategyView, error) {
	m := models.StrategyMode(strings.ToLower(strings.TrimSpace(mode)))
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
	}
	p, err := s.governor.Override(ctx, strategyID, m, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("strategy mode overridden",
		utils.StrategyID(strategyID),
		utils.Mode(string(m)),
		utils.String("reason", reason),
	)
	return newStrategyView(p), nil
}

// ============================================================
// Нарушения
// ============================================================

// ListViolations история нарушений счёта, новые первыми
func (s *TradingService) ListViolations(accountID string) ([]*models.RuleViolation, error) {
	if _, err := s.ledger.GetAccount(accountID); err != nil {
		return nil, err
	}
	return s.risk.Violations(accountID), nil
}

// ResolveViolation снимает нарушение вручную
func (s *TradingService) ResolveViolation(ctx context.Context, violationID string) (*models.RuleViolation, error) {
	return s.risk.Resolve(ctx, violationID)
}

// ============================================================
// Цены
// ============================================================

// SetPrice устанавливает референсную цену и сразу прогоняет тик риск-движка:
// переоценка позиций, исполнение рабочих лимитных ордеров, проверка правил.
// Возвращает нормализованный символ.
func (s *TradingService) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) (string, error) {
	if s.prices == nil {
		return "", fmt.Errorf("%w: manual prices are disabled", models.ErrPriceUnavailable)
	}
	if err := utils.ValidateSymbol(symbol); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if !price.IsPositive() {
		return "", fmt.Errorf("%w: price must be positive", models.ErrValidation)
	}

	sym := utils.NormalizeSymbol(symbol)
	s.prices.Set(sym, price)
	s.logger.Debug("reference price set", utils.Symbol(sym), utils.Price(price))

	s.risk.Tick(ctx)
	return sym, nil
}
