package market

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// instrument.go - классификация символов
//
// Назначение:
// По тикеру из алерта определить класс инструмента, множитель контракта
// и ставку комиссии. От класса зависит маршрут "auto" в роутере.
//
// Поддерживаемые формы:
// - фьючерсы: корень (ES), контракт (ESZ4, ESZ24, ESZ2024), непрерывный TradingView (ES1!)
// - опционы OCC без пробелов: SPY240315C00500000
// - акции/ETF: 1-5 латинских букв, опционально класс (BRK.B)

// Class класс инструмента
type Class string

const (
	ClassFuturesIndex  Class = "futures_index"
	ClassFuturesEnergy Class = "futures_energy"
	ClassFuturesMetal  Class = "futures_metal"
	ClassFuturesRates  Class = "futures_rates"
	ClassOption        Class = "option"
	ClassEquity        Class = "equity"
	ClassUnknown       Class = "unknown"
)

// IsFutures true для всех фьючерсных классов
func (c Class) IsFutures() bool {
	switch c {
	case ClassFuturesIndex, ClassFuturesEnergy, ClassFuturesMetal, ClassFuturesRates:
		return true
	}
	return false
}

// Instrument результат классификации
type Instrument struct {
	Symbol     string          `json:"symbol"`
	Root       string          `json:"root"`
	Class      Class           `json:"class"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Micro      bool            `json:"micro"`
}

type futuresSpec struct {
	class      Class
	multiplier decimal.Decimal
	micro      bool
}

func fut(class Class, mult string, micro bool) futuresSpec {
	return futuresSpec{class: class, multiplier: decimal.RequireFromString(mult), micro: micro}
}

// futuresRoots множители CME/COMEX/NYMEX/CBOT
var futuresRoots = map[string]futuresSpec{
	"ES":  fut(ClassFuturesIndex, "50", false),
	"MES": fut(ClassFuturesIndex, "5", true),
	"NQ":  fut(ClassFuturesIndex, "20", false),
	"MNQ": fut(ClassFuturesIndex, "2", true),
	"YM":  fut(ClassFuturesIndex, "5", false),
	"MYM": fut(ClassFuturesIndex, "0.5", true),
	"RTY": fut(ClassFuturesIndex, "50", false),
	"M2K": fut(ClassFuturesIndex, "5", true),

	"CL":  fut(ClassFuturesEnergy, "1000", false),
	"MCL": fut(ClassFuturesEnergy, "100", true),
	"NG":  fut(ClassFuturesEnergy, "10000", false),
	"QG":  fut(ClassFuturesEnergy, "2500", true),

	"GC":  fut(ClassFuturesMetal, "100", false),
	"MGC": fut(ClassFuturesMetal, "10", true),
	"SI":  fut(ClassFuturesMetal, "5000", false),
	"SIL": fut(ClassFuturesMetal, "1000", true),
	"HG":  fut(ClassFuturesMetal, "25000", false),

	"ZN": fut(ClassFuturesRates, "1000", false),
	"ZB": fut(ClassFuturesRates, "1000", false),
	"ZF": fut(ClassFuturesRates, "1000", false),
}

var (
	continuationRe = regexp.MustCompile(`^([A-Z0-9]+?)\d!$`)
	contractRe     = regexp.MustCompile(`^([A-Z0-9]+?)[FGHJKMNQUVXZ](\d{1,2}|\d{4})$`)
	occOptionRe    = regexp.MustCompile(`^([A-Z]{1,6})(\d{6})([CP])(\d{8})$`)
	equityRe       = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

	multiplierOption = decimal.NewFromInt(100)
	multiplierOne    = decimal.NewFromInt(1)
)

// Classify определяет класс инструмента по тикеру
func Classify(symbol string) Instrument {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	if root, spec, ok := futuresRoot(s); ok {
		return Instrument{Symbol: s, Root: root, Class: spec.class, Multiplier: spec.multiplier, Micro: spec.micro}
	}
	if m := occOptionRe.FindStringSubmatch(s); m != nil {
		return Instrument{Symbol: s, Root: m[1], Class: ClassOption, Multiplier: multiplierOption}
	}
	if equityRe.MatchString(s) {
		return Instrument{Symbol: s, Root: s, Class: ClassEquity, Multiplier: multiplierOne}
	}
	return Instrument{Symbol: s, Root: s, Class: ClassUnknown, Multiplier: multiplierOne}
}

func futuresRoot(s string) (string, futuresSpec, bool) {
	if spec, ok := futuresRoots[s]; ok {
		return s, spec, true
	}
	if m := continuationRe.FindStringSubmatch(s); m != nil {
		if spec, ok := futuresRoots[m[1]]; ok {
			return m[1], spec, true
		}
	}
	if m := contractRe.FindStringSubmatch(s); m != nil {
		if spec, ok := futuresRoots[m[1]]; ok {
			return m[1], spec, true
		}
	}
	return "", futuresSpec{}, false
}

// Multiplier множитель контракта для символа
func Multiplier(symbol string) decimal.Decimal {
	return Classify(symbol).Multiplier
}

// YahooSymbol тикер для Yahoo Finance: фьючерсы -> ROOT=F, остальное как есть
func YahooSymbol(symbol string) string {
	inst := Classify(symbol)
	if inst.Class.IsFutures() {
		return inst.Root + "=F"
	}
	return inst.Symbol
}
