package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
	"tradecore/internal/service"
)

// ErrMockDatabase ошибка, которую мок возвращает для 500
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Trading Service ============

// MockTradingService мок для TradingServiceInterface
type MockTradingService struct {
	mu         sync.Mutex
	accounts   map[string]*models.Account
	orders     map[string]*models.Order
	strategies map[string]*models.StrategyPerformance
	violations map[string][]*models.RuleViolation
	prices     map[string]decimal.Decimal

	alerts      []models.Alert
	alertResult *models.ExecutionResult

	flattenResults []*models.ExecutionResult
	flattenErr     error
	resetErr       error
	metricsErr     error
}

var _ service.TradingServiceInterface = (*MockTradingService)(nil)

// NewMockTradingService создает мок с одним тестовым счётом "sim"
func NewMockTradingService() *MockTradingService {
	return &MockTradingService{
		accounts: map[string]*models.Account{
			"sim": {ID: "sim", Name: "Simulator", Environment: models.EnvTest,
				InitialBalance: decimal.NewFromInt(100000), Balance: decimal.NewFromInt(100000),
				Positions: map[string]*models.Position{}},
		},
		orders:     make(map[string]*models.Order),
		strategies: make(map[string]*models.StrategyPerformance),
		violations: make(map[string][]*models.RuleViolation),
		prices:     make(map[string]decimal.Decimal),
	}
}

func (m *MockTradingService) account(id string) (*models.Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	return acc, nil
}

func (m *MockTradingService) SubmitAlert(_ context.Context, alert models.Alert) *models.ExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	if m.alertResult != nil {
		return m.alertResult
	}
	return &models.ExecutionResult{Status: models.ResultSuccess}
}

func (m *MockTradingService) ListAccounts() []*models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}

func (m *MockTradingService) GetAccount(id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account(id)
}

func (m *MockTradingService) ResetAccount(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return nil, m.resetErr
	}
	return m.account(id)
}

func (m *MockTradingService) FlattenAccount(_ context.Context, id string) ([]*models.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(id); err != nil {
		return nil, err
	}
	return m.flattenResults, m.flattenErr
}

func (m *MockTradingService) ListOrders(accountID string) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(accountID); err != nil {
		return nil, err
	}
	var out []*models.Order
	for _, o := range m.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockTradingService) ListFills(accountID string) ([]*models.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(accountID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *MockTradingService) ListTrades(accountID string) ([]*models.TradeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(accountID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *MockTradingService) GetMetrics(accountID string) (*models.Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metricsErr != nil {
		return nil, m.metricsErr
	}
	if _, err := m.account(accountID); err != nil {
		return nil, err
	}
	return &models.Metrics{AccountID: accountID, WinRate: 60, TotalTrades: 5, Wins: 3, Losses: 2}, nil
}

func (m *MockTradingService) CancelOrder(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	if o.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderTerminal, orderID)
	}
	o.Status = models.OrderCancelled
	return o, nil
}

func (m *MockTradingService) ListStrategies() []*service.StrategyView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*service.StrategyView, 0, len(m.strategies))
	for _, p := range m.strategies {
		out = append(out, &service.StrategyView{StrategyPerformance: p, RoutesLive: p.CurrentMode == models.ModeLive})
	}
	return out
}

func (m *MockTradingService) GetStrategyPerformance(id string) (*service.StrategyView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrStrategyNotFound, id)
	}
	return &service.StrategyView{StrategyPerformance: p, RoutesLive: p.CurrentMode == models.ModeLive}, nil
}

func (m *MockTradingService) OverrideStrategyMode(_ context.Context, id, mode, reason string) (*service.StrategyView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm := models.StrategyMode(mode)
	if !sm.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
	}
	p, ok := m.strategies[id]
	if !ok {
		p = &models.StrategyPerformance{StrategyID: id}
		m.strategies[id] = p
	}
	p.TransitionHistory = append(p.TransitionHistory, models.TransitionEvent{
		StrategyID: id, From: p.CurrentMode, To: sm, Reason: reason, Manual: true,
	})
	p.CurrentMode = sm
	return &service.StrategyView{StrategyPerformance: p, RoutesLive: sm == models.ModeLive}, nil
}

func (m *MockTradingService) ListViolations(accountID string) ([]*models.RuleViolation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(accountID); err != nil {
		return nil, err
	}
	return m.violations[accountID], nil
}

func (m *MockTradingService) ResolveViolation(_ context.Context, id string) (*models.RuleViolation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.violations {
		for _, v := range list {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrViolationNotFound, id)
}

func (m *MockTradingService) SetPrice(_ context.Context, symbol string, price decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol == "" || !price.IsPositive() {
		return "", fmt.Errorf("%w: bad price", models.ErrValidation)
	}
	m.prices[symbol] = price
	return symbol, nil
}
