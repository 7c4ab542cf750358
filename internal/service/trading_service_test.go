package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
)

// ============================================================
// TradingService Tests
// ============================================================

type fixture struct {
	svc      *TradingService
	ledger   *MockLedger
	router   *MockRouter
	governor *MockGovernor
	risk     *MockRisk
	prices   *MockPrices
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: NewMockLedger(
			&models.Account{ID: "sim", Environment: models.EnvTest, InitialBalance: decimal.NewFromInt(100000), Balance: decimal.NewFromInt(99000)},
			&models.Account{ID: "prod", Environment: models.EnvProduction, InitialBalance: decimal.NewFromInt(50000), Balance: decimal.NewFromInt(50000)},
		),
		router:   &MockRouter{},
		governor: NewMockGovernor("momentum_v1"),
		risk:     NewMockRisk(),
		prices:   NewMockPrices(),
	}
	f.svc = NewTradingService(f.ledger, f.router, f.governor, f.risk, f.prices, nil)
	return f
}

func TestSubmitAlert_DelegatesToRouter(t *testing.T) {
	f := newFixture(t)
	f.router.result = models.Rejected(models.KindStrategySuspended, "strategy momentum_v1 is suspended")

	alert := models.Alert{Symbol: "ES", Side: models.SideBuy, Quantity: 1, StrategyID: "momentum_v1"}
	res := f.svc.SubmitAlert(context.Background(), alert)

	if res.Kind != models.KindStrategySuspended {
		t.Errorf("expected router result to pass through, got %+v", res)
	}
	if len(f.router.alerts) != 1 || f.router.alerts[0].Symbol != "ES" {
		t.Errorf("router received %+v", f.router.alerts)
	}
}

func TestResetAccount(t *testing.T) {
	tests := []struct {
		name        string
		accountID   string
		resetErr    error
		expectError error
		forgotten   bool
	}{
		{name: "resets and forgets violations", accountID: "sim", forgotten: true},
		{name: "unknown account", accountID: "nope", expectError: models.ErrAccountNotFound},
		{name: "production forbidden", accountID: "prod", resetErr: models.ErrResetForbidden, expectError: models.ErrResetForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ledger.resetErr = tt.resetErr
			f.risk.violations[tt.accountID] = []*models.RuleViolation{{ID: "v-1", AccountID: tt.accountID}}

			acc, err := f.svc.ResetAccount(context.Background(), tt.accountID)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
				if len(f.risk.forgotten) != 0 {
					t.Error("violations must survive a failed reset")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !acc.Balance.Equal(acc.InitialBalance) {
				t.Errorf("balance = %s, want %s", acc.Balance, acc.InitialBalance)
			}
			if tt.forgotten && (len(f.risk.forgotten) != 1 || f.risk.forgotten[0] != tt.accountID) {
				t.Errorf("forgotten = %v", f.risk.forgotten)
			}
		})
	}
}

func TestFlattenAccount(t *testing.T) {
	t.Run("unknown account does not reach ledger", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.FlattenAccount(context.Background(), "nope")
		if !errors.Is(err, models.ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
		if len(f.ledger.flattenCalls) != 0 {
			t.Errorf("flatten should not be called, got %v", f.ledger.flattenCalls)
		}
	})

	t.Run("partial failure returns results and error", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.flattenFn = func(string, string) ([]*models.ExecutionResult, error) {
			return []*models.ExecutionResult{
				{Status: models.ResultSuccess},
				models.Rejected(models.KindExecutionFailed, "sandbox timeout"),
			}, errors.New("NQ: sandbox timeout")
		}

		results, err := f.svc.FlattenAccount(context.Background(), "sim")
		if err == nil {
			t.Error("expected error")
		}
		if len(results) != 2 {
			t.Errorf("expected 2 results, got %d", len(results))
		}
		if f.ledger.flattenCalls[0] != "sim:manual flatten" {
			t.Errorf("flatten call = %q", f.ledger.flattenCalls[0])
		}
	})
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name        string
		orderID     string
		status      models.OrderStatus
		expectError error
	}{
		{name: "working order", orderID: "o-1", status: models.OrderWorking},
		{name: "terminal order", orderID: "o-1", status: models.OrderFilled, expectError: models.ErrOrderTerminal},
		{name: "unknown order", orderID: "o-9", status: models.OrderWorking, expectError: models.ErrOrderNotFound},
		{name: "empty id", orderID: " ", status: models.OrderWorking, expectError: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ledger.orders["o-1"] = &models.Order{ID: "o-1", AccountID: "sim", Status: tt.status}

			order, err := f.svc.CancelOrder(context.Background(), tt.orderID)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if order.Status != models.OrderCancelled {
				t.Errorf("status = %s", order.Status)
			}
			if f.ledger.cancelReason != "cancelled by user" {
				t.Errorf("reason = %q", f.ledger.cancelReason)
			}
		})
	}
}

func TestGetMetrics(t *testing.T) {
	f := newFixture(t)
	f.ledger.trades["sim"] = []*models.TradeOutcome{
		{Pnl: decimal.NewFromInt(250), Win: true},
		{Pnl: decimal.NewFromInt(-100)},
	}

	m, err := f.svc.GetMetrics("sim")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalTrades != 2 || m.Wins != 1 || !m.TotalPnl.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected metrics %+v", m)
	}

	if _, err := f.svc.GetMetrics("nope"); !errors.Is(err, models.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestStrategies(t *testing.T) {
	f := newFixture(t)

	views := f.svc.ListStrategies()
	if len(views) != 1 || !views[0].RoutesLive || views[0].ModeDescription == "" {
		t.Fatalf("unexpected strategies %+v", views)
	}

	if _, err := f.svc.GetStrategyPerformance("unknown"); !errors.Is(err, models.ErrStrategyNotFound) {
		t.Errorf("expected ErrStrategyNotFound, got %v", err)
	}
}

func TestOverrideStrategyMode(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		expectMode  models.StrategyMode
		expectError error
	}{
		{name: "suspend", mode: "suspended", expectMode: models.ModeSuspended},
		{name: "case and spaces normalized", mode: " PAPER ", expectMode: models.ModePaper},
		{name: "invalid mode", mode: "halted", expectError: models.ErrInvalidMode},
		{name: "empty mode", mode: "", expectError: models.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			view, err := f.svc.OverrideStrategyMode(context.Background(), "momentum_v1", tt.mode, "operator")
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
				if len(f.governor.overrides) != 0 {
					t.Error("governor must not be called for an invalid mode")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if view.CurrentMode != tt.expectMode {
				t.Errorf("mode = %s, want %s", view.CurrentMode, tt.expectMode)
			}
			if view.RoutesLive {
				t.Error("non-live mode must not route live")
			}
			if f.governor.overrides[0].Reason != "operator" {
				t.Errorf("reason = %q", f.governor.overrides[0].Reason)
			}
		})
	}
}

func TestListViolations(t *testing.T) {
	f := newFixture(t)
	f.risk.violations["sim"] = []*models.RuleViolation{{ID: "v-1", AccountID: "sim", Rule: models.RuleMaxContracts}}

	list, err := f.svc.ListViolations("sim")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 violation, got %v (%v)", list, err)
	}

	if _, err := f.svc.ListViolations("nope"); !errors.Is(err, models.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	if _, err := f.svc.ResolveViolation(context.Background(), "v-404"); !errors.Is(err, models.ErrViolationNotFound) {
		t.Errorf("expected ErrViolationNotFound, got %v", err)
	}
}

func TestSetPrice(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		price       decimal.Decimal
		expectSym   string
		expectError error
	}{
		{name: "normalizes symbol and ticks", symbol: " es ", price: decimal.RequireFromString("5010.25"), expectSym: "ES"},
		{name: "zero price", symbol: "ES", price: decimal.Zero, expectError: models.ErrValidation},
		{name: "negative price", symbol: "ES", price: decimal.NewFromInt(-1), expectError: models.ErrValidation},
		{name: "empty symbol", symbol: "", price: decimal.NewFromInt(1), expectError: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			sym, err := f.svc.SetPrice(context.Background(), tt.symbol, tt.price)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
				if f.risk.ticks != 0 {
					t.Error("invalid price must not trigger a tick")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sym != tt.expectSym {
				t.Errorf("symbol = %q, want %q", sym, tt.expectSym)
			}
			if p, ok := f.prices.prices[tt.expectSym]; !ok || !p.Equal(tt.price) {
				t.Errorf("price not stored: %v", f.prices.prices)
			}
			if f.risk.ticks != 1 {
				t.Errorf("ticks = %d, want 1", f.risk.ticks)
			}
		})
	}
}

func TestSetPrice_Disabled(t *testing.T) {
	f := newFixture(t)
	svc := NewTradingService(f.ledger, f.router, f.governor, f.risk, nil, nil)

	if _, err := svc.SetPrice(context.Background(), "ES", decimal.NewFromInt(1)); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}
