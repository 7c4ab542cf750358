package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyMode режим стратегии
type StrategyMode string

const (
	ModeLive      StrategyMode = "live"
	ModePaper     StrategyMode = "paper"
	ModeSuspended StrategyMode = "suspended"
)

// Valid проверяет значение режима
func (m StrategyMode) Valid() bool {
	return m == ModeLive || m == ModePaper || m == ModeSuspended
}

// TradeMode режим, которым помечаются ордера и наборы
func (m StrategyMode) TradeMode() TradeMode {
	if m == ModeLive {
		return TradeLive
	}
	return TradePaper
}

// GovernorPolicy параметры автоматического переключения режимов
type GovernorPolicy struct {
	SetSize       int     `json:"set_size"`        // N сделок в наборе
	MinWinRate    float64 `json:"min_win_rate"`    // процент
	FailsToDemote int     `json:"fails_to_demote"` // подряд проваленных наборов для LIVE -> PAPER
	WinsToPromote int     `json:"wins_to_promote"` // подряд успешных paper-наборов для PAPER -> LIVE
}

// DefaultGovernorPolicy 20 сделок, 55%, 2 провала, 2 успеха
func DefaultGovernorPolicy() GovernorPolicy {
	return GovernorPolicy{SetSize: 20, MinWinRate: 55, FailsToDemote: 2, WinsToPromote: 2}
}

// StrategySet блок из N последовательных сделок стратегии.
// После закрытия не изменяется.
type StrategySet struct {
	SetNumber  int             `json:"set_number"`
	StrategyID string          `json:"strategy_id"`
	Trades     []TradeOutcome  `json:"trades"`
	WinRate    float64         `json:"win_rate"`
	TotalPnl   decimal.Decimal `json:"total_pnl"`
	Mode       TradeMode       `json:"mode"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Closed     bool            `json:"closed"`
}

// Wins количество выигрышных сделок
func (s *StrategySet) Wins() int {
	n := 0
	for _, t := range s.Trades {
		if t.Win {
			n++
		}
	}
	return n
}

// SetEvidence выдержка из набора, послужившая основанием перехода
type SetEvidence struct {
	SetNumber int       `json:"set_number"`
	WinRate   float64   `json:"win_rate"`
	Mode      TradeMode `json:"mode"`
}

// TransitionEvent запись журнала переходов (только добавление)
type TransitionEvent struct {
	StrategyID string        `json:"strategy_id"`
	From       StrategyMode  `json:"from"`
	To         StrategyMode  `json:"to"`
	Reason     string        `json:"reason"`
	Manual     bool          `json:"manual"`
	Evidence   []SetEvidence `json:"evidence,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// StrategyPerformance состояние стратегии у губернатора
type StrategyPerformance struct {
	StrategyID        string            `json:"strategy_id"`
	CurrentMode       StrategyMode      `json:"current_mode"`
	CurrentSet        *StrategySet      `json:"current_set"`
	CompletedSets     []StrategySet     `json:"completed_sets"`
	Policy            GovernorPolicy    `json:"policy"`
	TransitionHistory []TransitionEvent `json:"transition_history"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Clone глубокая копия
func (p *StrategyPerformance) Clone() *StrategyPerformance {
	if p == nil {
		return nil
	}
	c := *p
	if p.CurrentSet != nil {
		cs := *p.CurrentSet
		cs.Trades = append([]TradeOutcome(nil), p.CurrentSet.Trades...)
		c.CurrentSet = &cs
	}
	c.CompletedSets = make([]StrategySet, len(p.CompletedSets))
	for i, s := range p.CompletedSets {
		s.Trades = append([]TradeOutcome(nil), s.Trades...)
		c.CompletedSets[i] = s
	}
	c.TransitionHistory = make([]TransitionEvent, len(p.TransitionHistory))
	for i, e := range p.TransitionHistory {
		e.Evidence = append([]SetEvidence(nil), e.Evidence...)
		c.TransitionHistory[i] = e
	}
	return &c
}
