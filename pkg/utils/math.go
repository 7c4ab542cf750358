package utils

import (
	"github.com/shopspring/decimal"
)

// math.go - денежная арифметика и метрики эффективности
//
// Назначение:
// Общие расчёты для леджера, симулятора и губернатора стратегий.
// Все денежные величины - decimal.Decimal, float64 только для процентов.
//
// Функции:
// - WeightedAverage: средняя цена входа при наращивании позиции
// - Slippage: проскальзывание симулятора в зависимости от объёма
// - ApplySlippage: цена исполнения для покупки/продажи
// - WinRate: процент выигрышных сделок
// - ProfitFactor: валовая прибыль / валовой убыток
// - MaxDrawdown: максимальная просадка кривой кумулятивного P&L

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// WeightedAverage средневзвешенная цена двух лотов (количества по модулю)
//
// Пример: 2 @ 5000 + 1 @ 5030 = 5010
func WeightedAverage(qtyA int, priceA decimal.Decimal, qtyB int, priceB decimal.Decimal) decimal.Decimal {
	qa, qb := AbsInt(qtyA), AbsInt(qtyB)
	total := qa + qb
	if total == 0 {
		return decimal.Zero
	}
	num := priceA.Mul(decimal.NewFromInt(int64(qa))).Add(priceB.Mul(decimal.NewFromInt(int64(qb))))
	return num.Div(decimal.NewFromInt(int64(total)))
}

// Slippage доля проскальзывания: base + min(qty/divisor, capAdd)
//
// При base=0.0001, capAdd=0.001:
//
//	divisor=1000,    qty=1   -> 0.0011
//	divisor=1000000, qty=500 -> 0.0006
func Slippage(qty int, base decimal.Decimal, divisor int64, capAdd decimal.Decimal) decimal.Decimal {
	if divisor <= 0 {
		return base
	}
	add := decimal.NewFromInt(int64(AbsInt(qty))).Div(decimal.NewFromInt(divisor))
	if add.GreaterThan(capAdd) {
		add = capAdd
	}
	return base.Add(add)
}

// ApplySlippage цена исполнения: покупка ref*(1+s), продажа ref*(1-s)
func ApplySlippage(ref decimal.Decimal, slippage decimal.Decimal, buy bool) decimal.Decimal {
	if buy {
		return ref.Mul(one.Add(slippage))
	}
	return ref.Mul(one.Sub(slippage))
}

// WinRate процент выигрышей 0..100; при total=0 возвращает 0
func WinRate(wins, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate, _ := decimal.NewFromInt(int64(wins)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(4).Float64()
	return rate
}

// ProfitFactor валовая прибыль к валовому убытку.
// Без убыточных сделок возвращает валовую прибыль (0, если её нет).
func ProfitFactor(pnls []decimal.Decimal) decimal.Decimal {
	grossWin, grossLoss := decimal.Zero, decimal.Zero
	for _, p := range pnls {
		if p.IsPositive() {
			grossWin = grossWin.Add(p)
		} else if p.IsNegative() {
			grossLoss = grossLoss.Add(p.Neg())
		}
	}
	if grossLoss.IsZero() {
		return grossWin
	}
	return grossWin.Div(grossLoss).Round(4)
}

// MaxDrawdown максимальное падение кумулятивной суммы pnls от её пика.
// Начальная точка кривой - 0.
func MaxDrawdown(pnls []decimal.Decimal) decimal.Decimal {
	equity, peak, maxDD := decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range pnls {
		equity = equity.Add(p)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

// Sum сумма значений
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// AbsInt модуль целого
func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// MinInt минимум двух целых
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SignInt знак целого: -1, 0, 1
func SignInt(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
