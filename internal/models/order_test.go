package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// TestCanTransition проверяет допустимые и запрещённые переходы статусов ордера
func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"PENDING → WORKING (accepted)", OrderPending, OrderWorking, true},
		{"PENDING → REJECTED (refused before submit)", OrderPending, OrderRejected, true},
		{"PENDING → CANCELLED", OrderPending, OrderCancelled, true},
		{"WORKING → FILLED", OrderWorking, OrderFilled, true},
		{"WORKING → PARTIALLY_FILLED", OrderWorking, OrderPartiallyFilled, true},
		{"WORKING → REJECTED (adapter failure)", OrderWorking, OrderRejected, true},
		{"WORKING → CANCELLED (user cancel)", OrderWorking, OrderCancelled, true},
		{"PARTIALLY_FILLED → PARTIALLY_FILLED (another partial)", OrderPartiallyFilled, OrderPartiallyFilled, true},
		{"PARTIALLY_FILLED → FILLED", OrderPartiallyFilled, OrderFilled, true},
		{"PARTIALLY_FILLED → CANCELLED (cancel remainder)", OrderPartiallyFilled, OrderCancelled, true},

		{"PENDING → FILLED skips WORKING", OrderPending, OrderFilled, false},
		{"PARTIALLY_FILLED → REJECTED", OrderPartiallyFilled, OrderRejected, false},
		{"FILLED → CANCELLED", OrderFilled, OrderCancelled, false},
		{"CANCELLED → WORKING", OrderCancelled, OrderWorking, false},
		{"REJECTED → WORKING", OrderRejected, OrderWorking, false},
		{"unknown from", OrderStatus("BOGUS"), OrderWorking, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, s := range []OrderStatus{OrderFilled, OrderRejected, OrderCancelled} {
		if !IsTerminalStatus(s) {
			t.Errorf("%s should be terminal", s)
		}
		if len(ValidOrderTransitions[s]) != 0 {
			t.Errorf("%s has outgoing transitions: %v", s, ValidOrderTransitions[s])
		}
	}
}

func TestFillSignedQuantity(t *testing.T) {
	if q := (Fill{Side: SideBuy, Quantity: 3}).SignedQuantity(); q != 3 {
		t.Errorf("buy signed qty = %d, want 3", q)
	}
	if q := (Fill{Side: SideSell, Quantity: 3}).SignedQuantity(); q != -3 {
		t.Errorf("sell signed qty = %d, want -3", q)
	}
}

func TestAlertNormalizeAndValidate(t *testing.T) {
	price := decimal.NewFromInt(5000)
	a := Alert{Symbol: " esz4 ", Side: "BUY", Quantity: 1, StrategyID: " orb ", Price: &price}.Normalize()

	if a.Symbol != "ESZ4" || a.Side != SideBuy || a.StrategyID != "orb" {
		t.Errorf("Normalize = %+v", a)
	}
	if a.AccountGroup != GroupAuto {
		t.Errorf("AccountGroup = %q, want auto", a.AccountGroup)
	}
	if a.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not stamped")
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestAlertValidate_StrategyOptional(t *testing.T) {
	a := Alert{Symbol: "ES", Side: SideSell, Quantity: 2}.Normalize()
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() without strategy = %v", err)
	}
}

func TestAlertValidate_Errors(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	base := Alert{Symbol: "ESZ4", Side: SideBuy, Quantity: 1, StrategyID: "s", AccountGroup: "auto", ReceivedAt: time.Now()}

	tests := []struct {
		name   string
		mutate func(a *Alert)
	}{
		{"zero quantity", func(a *Alert) { a.Quantity = 0 }},
		{"bad side", func(a *Alert) { a.Side = "long" }},
		{"empty symbol", func(a *Alert) { a.Symbol = "" }},
		{"negative price", func(a *Alert) { a.Price = &neg }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			tt.mutate(&a)
			err := a.Validate()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() = %v, want ErrValidation", err)
			}
			if KindOf(err) != KindValidation {
				t.Errorf("KindOf = %s", KindOf(err))
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"typed", NewExecutionError(KindRiskViolation, "Max contracts exceeded", nil), KindRiskViolation},
		{"bare sentinel", ErrInsufficientBuyingPower, KindInsufficientBuyingPower},
		{"unknown", errors.New("boom"), KindExecutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRejectedStatus(t *testing.T) {
	if r := Rejected(KindRiskViolation, "x"); r.Status != ResultRejected {
		t.Errorf("risk rejection status = %s", r.Status)
	}
	if r := Rejected(KindExecutionFailed, "x"); r.Status != ResultError {
		t.Errorf("execution failure status = %s", r.Status)
	}
}

func TestAccountClone_IsDeep(t *testing.T) {
	a := &Account{
		ID:        "sim",
		Positions: map[string]*Position{"ESZ4": {Symbol: "ESZ4", Quantity: 1}},
		Funded:    &FundedAccountRules{MaxContracts: 5},
	}
	c := a.Clone()
	c.Positions["ESZ4"].Quantity = 9
	c.Funded.MaxContracts = 1

	if a.Positions["ESZ4"].Quantity != 1 {
		t.Error("Clone shares positions")
	}
	if a.Funded.MaxContracts != 5 {
		t.Error("Clone shares funded rules")
	}
}
