package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
)

// ============ Mock Ledger ============

type MockLedger struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	orders    map[string]*models.Order
	fills     map[string][]*models.Fill
	trades    map[string][]*models.TradeOutcome
	resetErr  error
	flattenFn func(accountID, reason string) ([]*models.ExecutionResult, error)

	resetCalls   []string
	flattenCalls []string
	cancelReason string
}

func NewMockLedger(accounts ...*models.Account) *MockLedger {
	m := &MockLedger{
		accounts: make(map[string]*models.Account),
		orders:   make(map[string]*models.Order),
		fills:    make(map[string][]*models.Fill),
		trades:   make(map[string][]*models.TradeOutcome),
	}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *MockLedger) GetAccount(id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	return acc.Clone(), nil
}

func (m *MockLedger) ListAccounts() []*models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a.Clone())
	}
	return out
}

func (m *MockLedger) Reset(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls = append(m.resetCalls, id)
	if m.resetErr != nil {
		return nil, m.resetErr
	}
	acc, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	acc.Balance = acc.InitialBalance
	return acc.Clone(), nil
}

func (m *MockLedger) ListOrders(id string) ([]*models.Order, error) {
	if _, err := m.GetAccount(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.AccountID == id {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockLedger) ListFills(id string) ([]*models.Fill, error) {
	if _, err := m.GetAccount(id); err != nil {
		return nil, err
	}
	return m.fills[id], nil
}

func (m *MockLedger) ListTrades(id string) ([]*models.TradeOutcome, error) {
	if _, err := m.GetAccount(id); err != nil {
		return nil, err
	}
	return m.trades[id], nil
}

func (m *MockLedger) Metrics(id string) (*models.Metrics, error) {
	trades, err := m.ListTrades(id)
	if err != nil {
		return nil, err
	}
	met := &models.Metrics{AccountID: id, TotalTrades: len(trades)}
	for _, t := range trades {
		met.TotalPnl = met.TotalPnl.Add(t.Pnl)
		if t.Win {
			met.Wins++
		} else {
			met.Losses++
		}
	}
	return met, nil
}

func (m *MockLedger) CancelOrder(_ context.Context, orderID, reason string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	if o.IsTerminal() {
		return nil, models.ErrOrderTerminal
	}
	o.Status = models.OrderCancelled
	m.cancelReason = reason
	c := *o
	return &c, nil
}

func (m *MockLedger) Flatten(_ context.Context, accountID, reason string) ([]*models.ExecutionResult, error) {
	m.mu.Lock()
	m.flattenCalls = append(m.flattenCalls, accountID+":"+reason)
	fn := m.flattenFn
	m.mu.Unlock()
	if fn != nil {
		return fn(accountID, reason)
	}
	return nil, nil
}

// ============ Mock Router ============

type MockRouter struct {
	mu     sync.Mutex
	alerts []models.Alert
	result *models.ExecutionResult
}

func (m *MockRouter) Route(_ context.Context, alert models.Alert) *models.ExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	if m.result != nil {
		return m.result
	}
	return &models.ExecutionResult{Status: models.ResultSuccess}
}

// ============ Mock Governor ============

type MockGovernor struct {
	strategies  map[string]*models.StrategyPerformance
	overrideErr error
	overrides   []models.TransitionEvent
}

func NewMockGovernor(ids ...string) *MockGovernor {
	m := &MockGovernor{strategies: make(map[string]*models.StrategyPerformance)}
	for _, id := range ids {
		m.strategies[id] = &models.StrategyPerformance{
			StrategyID:  id,
			CurrentMode: models.ModeLive,
			Policy:      models.DefaultGovernorPolicy(),
		}
	}
	return m
}

func (m *MockGovernor) Get(strategyID string) (*models.StrategyPerformance, error) {
	p, ok := m.strategies[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrStrategyNotFound, strategyID)
	}
	return p.Clone(), nil
}

func (m *MockGovernor) List() []*models.StrategyPerformance {
	out := make([]*models.StrategyPerformance, 0, len(m.strategies))
	for _, p := range m.strategies {
		out = append(out, p.Clone())
	}
	return out
}

func (m *MockGovernor) Override(_ context.Context, strategyID string, mode models.StrategyMode, reason string) (*models.StrategyPerformance, error) {
	if m.overrideErr != nil {
		return nil, m.overrideErr
	}
	p, ok := m.strategies[strategyID]
	if !ok {
		p = &models.StrategyPerformance{StrategyID: strategyID, CurrentMode: models.ModeLive}
		m.strategies[strategyID] = p
	}
	ev := models.TransitionEvent{StrategyID: strategyID, From: p.CurrentMode, To: mode, Reason: reason, Manual: true}
	m.overrides = append(m.overrides, ev)
	p.CurrentMode = mode
	p.TransitionHistory = append(p.TransitionHistory, ev)
	return p.Clone(), nil
}

// ============ Mock Risk Engine ============

type MockRisk struct {
	violations map[string][]*models.RuleViolation
	forgotten  []string
	ticks      int
}

func NewMockRisk() *MockRisk {
	return &MockRisk{violations: make(map[string][]*models.RuleViolation)}
}

func (m *MockRisk) Violations(accountID string) []*models.RuleViolation {
	return m.violations[accountID]
}

func (m *MockRisk) Resolve(_ context.Context, violationID string) (*models.RuleViolation, error) {
	for _, list := range m.violations {
		for _, v := range list {
			if v.ID == violationID {
				c := *v
				return &c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrViolationNotFound, violationID)
}

func (m *MockRisk) ForgetAccount(accountID string) {
	m.forgotten = append(m.forgotten, accountID)
	delete(m.violations, accountID)
}

func (m *MockRisk) Tick(context.Context) {
	m.ticks++
}

// ============ Mock Prices ============

type MockPrices struct {
	prices map[string]decimal.Decimal
}

func NewMockPrices() *MockPrices {
	return &MockPrices{prices: make(map[string]decimal.Decimal)}
}

func (m *MockPrices) Set(symbol string, price decimal.Decimal) {
	m.prices[symbol] = price
}
