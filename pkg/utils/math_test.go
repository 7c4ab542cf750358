package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decs(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = d(v)
	}
	return out
}

// ============================================================
// Тесты WeightedAverage
// ============================================================

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name     string
		qtyA     int
		priceA   string
		qtyB     int
		priceB   string
		expected string
	}{
		{"two lots", 2, "5000", 1, "5030", "5010"},
		{"short side uses abs", -2, "100", -2, "110", "105"},
		{"empty first lot", 0, "0", 3, "42.5", "42.5"},
		{"both empty", 0, "0", 0, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(tt.qtyA, d(tt.priceA), tt.qtyB, d(tt.priceB))
			if !got.Equal(d(tt.expected)) {
				t.Errorf("WeightedAverage = %s, want %s", got, tt.expected)
			}
		})
	}
}

// ============================================================
// Тесты Slippage
// ============================================================

func TestSlippage(t *testing.T) {
	base, capAdd := d("0.0001"), d("0.001")

	tests := []struct {
		name     string
		qty      int
		divisor  int64
		expected string
	}{
		{"default divisor caps at one contract", 1, 1000, "0.0011"},
		{"default divisor large order", 5000, 1000, "0.0011"},
		{"fine divisor below cap", 1, 1000000, "0.000101"},
		{"fine divisor scales with size", 500, 1000000, "0.0006"},
		{"fine divisor capped", 5000, 1000000, "0.0011"},
		{"invalid divisor uses base", 10, 0, "0.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slippage(tt.qty, base, tt.divisor, capAdd)
			if !got.Equal(d(tt.expected)) {
				t.Errorf("Slippage(%d, /%d) = %s, want %s", tt.qty, tt.divisor, got, tt.expected)
			}
		})
	}
}

func TestApplySlippage(t *testing.T) {
	ref := d("5000")
	s := d("0.0011")

	if got := ApplySlippage(ref, s, true); !got.Equal(d("5005.5")) {
		t.Errorf("buy fill = %s, want 5005.5", got)
	}
	if got := ApplySlippage(ref, s, false); !got.Equal(d("4994.5")) {
		t.Errorf("sell fill = %s, want 4994.5", got)
	}
}

// ============================================================
// Тесты метрик
// ============================================================

func TestWinRate(t *testing.T) {
	tests := []struct {
		wins, total int
		expected    float64
	}{
		{11, 20, 55},
		{10, 20, 50},
		{0, 0, 0},
		{1, 3, 33.3333},
	}

	for _, tt := range tests {
		if got := WinRate(tt.wins, tt.total); got != tt.expected {
			t.Errorf("WinRate(%d, %d) = %v, want %v", tt.wins, tt.total, got, tt.expected)
		}
	}
}

func TestProfitFactor(t *testing.T) {
	tests := []struct {
		name     string
		pnls     []decimal.Decimal
		expected string
	}{
		{"mixed", decs("300", "-100", "100", "-100"), "2"},
		{"no losses", decs("50", "25"), "75"},
		{"no trades", nil, "0"},
		{"only losses", decs("-10"), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProfitFactor(tt.pnls); !got.Equal(d(tt.expected)) {
				t.Errorf("ProfitFactor = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		pnls     []decimal.Decimal
		expected string
	}{
		{"monotonic up", decs("10", "20"), "0"},
		{"peak then drop", decs("100", "-30", "-50", "20"), "80"},
		{"starts negative", decs("-40", "10"), "40"},
		{"empty", nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxDrawdown(tt.pnls); !got.Equal(d(tt.expected)) {
				t.Errorf("MaxDrawdown = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestIntHelpers(t *testing.T) {
	if AbsInt(-3) != 3 || AbsInt(4) != 4 {
		t.Error("AbsInt")
	}
	if MinInt(2, 5) != 2 || MinInt(5, 2) != 2 {
		t.Error("MinInt")
	}
	if SignInt(-7) != -1 || SignInt(0) != 0 || SignInt(9) != 1 {
		t.Error("SignInt")
	}
	if !Sum(decs("1.5", "2.5")).Equal(d("4")) {
		t.Error("Sum")
	}
}
