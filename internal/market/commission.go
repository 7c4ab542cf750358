package market

import (
	"github.com/shopspring/decimal"
)

// CommissionTable ставки комиссии за контракт/акцию по классу инструмента
type CommissionTable struct {
	Futures      decimal.Decimal `json:"futures"`
	MicroFutures decimal.Decimal `json:"micro_futures"`
	Options      decimal.Decimal `json:"options"`
	Equities     decimal.Decimal `json:"equities"`
}

// DefaultCommissions типичные розничные ставки (round-turn делится пополам на каждую сторону)
func DefaultCommissions() CommissionTable {
	return CommissionTable{
		Futures:      decimal.RequireFromString("2.25"),
		MicroFutures: decimal.RequireFromString("0.62"),
		Options:      decimal.RequireFromString("0.65"),
		Equities:     decimal.Zero,
	}
}

// PerUnit ставка за единицу для инструмента
func (t CommissionTable) PerUnit(inst Instrument) decimal.Decimal {
	switch {
	case inst.Class.IsFutures() && inst.Micro:
		return t.MicroFutures
	case inst.Class.IsFutures():
		return t.Futures
	case inst.Class == ClassOption:
		return t.Options
	case inst.Class == ClassEquity:
		return t.Equities
	}
	return decimal.Zero
}

// For комиссия за qty единиц символа
func (t CommissionTable) For(symbol string, qty int) decimal.Decimal {
	if qty < 0 {
		qty = -qty
	}
	return t.PerUnit(Classify(symbol)).Mul(decimal.NewFromInt(int64(qty)))
}
