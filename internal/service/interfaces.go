package service

import (
	"context"

	"github.com/shopspring/decimal"

	"tradecore/internal/governor"
	"tradecore/internal/ledger"
	"tradecore/internal/market"
	"tradecore/internal/models"
	"tradecore/internal/risk"
	"tradecore/internal/router"
)

// LedgerInterface определяет операции леджера, нужные сервису
type LedgerInterface interface {
	GetAccount(id string) (*models.Account, error)
	ListAccounts() []*models.Account
	Reset(ctx context.Context, id string) (*models.Account, error)
	ListOrders(id string) ([]*models.Order, error)
	ListFills(id string) ([]*models.Fill, error)
	ListTrades(id string) ([]*models.TradeOutcome, error)
	Metrics(id string) (*models.Metrics, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error)
	Flatten(ctx context.Context, accountID, reason string) ([]*models.ExecutionResult, error)
}

// RouterInterface маршрутизатор алертов
type RouterInterface interface {
	Route(ctx context.Context, alert models.Alert) *models.ExecutionResult
}

// GovernorInterface губернатор стратегий
type GovernorInterface interface {
	Get(strategyID string) (*models.StrategyPerformance, error)
	List() []*models.StrategyPerformance
	Override(ctx context.Context, strategyID string, mode models.StrategyMode, reason string) (*models.StrategyPerformance, error)
}

// RiskEngineInterface риск-движок funded-счетов
type RiskEngineInterface interface {
	Violations(accountID string) []*models.RuleViolation
	Resolve(ctx context.Context, violationID string) (*models.RuleViolation, error)
	ForgetAccount(accountID string)
	Tick(ctx context.Context)
}

// PriceSetter ручная установка референсной цены
type PriceSetter interface {
	Set(symbol string, price decimal.Decimal)
}

// Проверяем, что реальные компоненты реализуют интерфейсы
var _ LedgerInterface = (*ledger.Ledger)(nil)
var _ RouterInterface = (*router.Router)(nil)
var _ GovernorInterface = (*governor.Governor)(nil)
var _ RiskEngineInterface = (*risk.Engine)(nil)
var _ PriceSetter = (*market.StaticSource)(nil)

// ============ Интерфейс сервиса для Dependency Injection ============

// TradingServiceInterface операции, доступные HTTP API и Kafka-потребителю
type TradingServiceInterface interface {
	SubmitAlert(ctx context.Context, alert models.Alert) *models.ExecutionResult

	ListAccounts() []*models.Account
	GetAccount(id string) (*models.Account, error)
	ResetAccount(ctx context.Context, id string) (*models.Account, error)
	FlattenAccount(ctx context.Context, id string) ([]*models.ExecutionResult, error)
	ListOrders(accountID string) ([]*models.Order, error)
	ListFills(accountID string) ([]*models.Fill, error)
	ListTrades(accountID string) ([]*models.TradeOutcome, error)
	GetMetrics(accountID string) (*models.Metrics, error)
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)

	ListStrategies() []*StrategyView
	GetStrategyPerformance(strategyID string) (*StrategyView, error)
	OverrideStrategyMode(ctx context.Context, strategyID, mode, reason string) (*StrategyView, error)

	ListViolations(accountID string) ([]*models.RuleViolation, error)
	ResolveViolation(ctx context.Context, violationID string) (*models.RuleViolation, error)

	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) (string, error)
}

var _ TradingServiceInterface = (*TradingService)(nil)
