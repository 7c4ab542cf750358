package governor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradecore/internal/metrics"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Record добавляет итог сделки в текущий набор стратегии, проставляя номер набора
// и позицию в нём. Заполненный набор закрывается, после чего оцениваются правила перехода.
// Сделки без стратегии возвращаются без изменений.
func (g *Governor) Record(outcome models.TradeOutcome) models.TradeOutcome {
	if outcome.StrategyID == "" {
		return outcome
	}

	g.mu.Lock()
	p := g.ensureLocked(outcome.StrategyID)
	if p.CurrentSet == nil {
		g.openSetLocked(p)
	}
	set := p.CurrentSet

	outcome.SetNumber = set.SetNumber
	outcome.IndexInSet = len(set.Trades) + 1
	set.Trades = append(set.Trades, outcome)
	set.TotalPnl = set.TotalPnl.Add(outcome.Pnl)
	// для открытого набора win rate только для отображения
	set.WinRate = utils.WinRate(set.Wins(), len(set.Trades))
	p.UpdatedAt = g.now()

	var (
		closed     *models.StrategySet
		transition *models.TransitionEvent
	)
	if len(set.Trades) >= p.Policy.SetSize {
		c := g.closeSetLocked(p)
		closed = &c
		transition = g.evaluateLocked(p)
		if transition != nil {
			g.applyTransitionLocked(p, *transition)
		}
		g.openSetLocked(p)
	}
	snapshot := p.Clone()
	g.mu.Unlock()

	metrics.RecordTradeOutcome(string(outcome.Mode), outcome.Win)

	if closed != nil {
		passed := closed.WinRate >= snapshot.Policy.MinWinRate
		metrics.RecordSetClosed(string(closed.Mode), passed)
		g.logger.Info("strategy set closed",
			utils.StrategyID(closed.StrategyID),
			utils.Int("set_number", closed.SetNumber),
			utils.Mode(string(closed.Mode)),
			utils.Float64("win_rate", closed.WinRate),
			utils.PNL(closed.TotalPnl),
		)
	}
	if transition != nil {
		g.afterTransition(context.Background(), snapshot, *transition)
	} else {
		g.persist(context.Background(), snapshot)
	}
	return outcome
}

// openSetLocked открывает набор с тегом текущего режима
func (g *Governor) openSetLocked(p *models.StrategyPerformance) {
	number := len(p.CompletedSets) + 1
	p.CurrentSet = &models.StrategySet{
		SetNumber:  number,
		StrategyID: p.StrategyID,
		Mode:       p.CurrentMode.TradeMode(),
		TotalPnl:   decimal.Zero,
		StartedAt:  g.now(),
	}
}

// closeSetLocked фиксирует финальный win rate и переносит набор в завершённые
func (g *Governor) closeSetLocked(p *models.StrategyPerformance) models.StrategySet {
	set := *p.CurrentSet
	end := g.now()
	set.EndedAt = &end
	set.Closed = true
	set.WinRate = utils.WinRate(set.Wins(), len(set.Trades))
	set.Trades = append([]models.TradeOutcome(nil), set.Trades...)

	p.CompletedSets = append(p.CompletedSets, set)
	p.CurrentSet = nil
	return set
}

// evaluateLocked правила автоматического перехода по завершённым наборам:
//
//	LIVE  -> PAPER: последние FailsToDemote наборов (любого тега) ниже MinWinRate
//	PAPER -> LIVE:  последние WinsToPromote PAPER-наборов не ниже MinWinRate
func (g *Governor) evaluateLocked(p *models.StrategyPerformance) *models.TransitionEvent {
	policy := p.Policy

	var (
		to       models.StrategyMode
		evidence []models.SetEvidence
		reason   string
	)
	switch p.CurrentMode {
	case models.ModeLive:
		sets := lastSets(p.CompletedSets, policy.FailsToDemote, func(models.StrategySet) bool { return true })
		if len(sets) < policy.FailsToDemote || !all(sets, func(s models.StrategySet) bool { return s.WinRate < policy.MinWinRate }) {
			return nil
		}
		to, evidence = models.ModePaper, toEvidence(sets)
		reason = fmt.Sprintf("last %d sets below %.2f%% win rate", policy.FailsToDemote, policy.MinWinRate)
	case models.ModePaper:
		sets := lastSets(p.CompletedSets, policy.WinsToPromote, func(s models.StrategySet) bool { return s.Mode == models.TradePaper })
		if len(sets) < policy.WinsToPromote || !all(sets, func(s models.StrategySet) bool { return s.WinRate >= policy.MinWinRate }) {
			return nil
		}
		to, evidence = models.ModeLive, toEvidence(sets)
		reason = fmt.Sprintf("last %d paper sets at or above %.2f%% win rate", policy.WinsToPromote, policy.MinWinRate)
	default:
		return nil
	}

	if !CanAutoTransition(p.CurrentMode, to) {
		return nil
	}
	return &models.TransitionEvent{
		StrategyID: p.StrategyID,
		From:       p.CurrentMode,
		To:         to,
		Reason:     reason,
		Evidence:   evidence,
		Timestamp:  g.now(),
	}
}

// lastSets до n последних завершённых наборов, удовлетворяющих фильтру, от старых к новым
func lastSets(sets []models.StrategySet, n int, keep func(models.StrategySet) bool) []models.StrategySet {
	var out []models.StrategySet
	for i := len(sets) - 1; i >= 0 && len(out) < n; i-- {
		if keep(sets[i]) {
			out = append([]models.StrategySet{sets[i]}, out...)
		}
	}
	return out
}

func all(sets []models.StrategySet, pred func(models.StrategySet) bool) bool {
	for _, s := range sets {
		if !pred(s) {
			return false
		}
	}
	return true
}

func toEvidence(sets []models.StrategySet) []models.SetEvidence {
	out := make([]models.SetEvidence, len(sets))
	for i, s := range sets {
		out[i] = models.SetEvidence{SetNumber: s.SetNumber, WinRate: s.WinRate, Mode: s.Mode}
	}
	return out
}
