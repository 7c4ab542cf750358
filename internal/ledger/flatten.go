package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Flatten закрывает все открытые позиции счёта.
//
// Рабочие лимитные ордера отменяются, затем на каждую позицию создаётся
// синтетический рыночный ордер в противоположную сторону. Ордера исполняются
// через OrderExecutor (адаптер счёта) вне lock'а, fill'ы возвращаются в ApplyFill.
// Используется и пользовательским "flatten all", и аварийным закрытием риск-движка.
func (l *Ledger) Flatten(ctx context.Context, accountID, reason string) ([]*models.ExecutionResult, error) {
	if l.executor == nil {
		return nil, fmt.Errorf("flatten %s: order executor is not configured", accountID)
	}
	if reason == "" {
		reason = "flatten"
	}

	working, err := l.WorkingOrders(accountID)
	if err != nil {
		return nil, err
	}
	for _, o := range working {
		if _, err := l.CancelOrder(ctx, o.ID, reason); err != nil && !errors.Is(err, models.ErrOrderTerminal) {
			l.logger.Warn("flatten: cancel working order failed", utils.OrderID(o.ID), utils.Err(err))
		}
	}

	acc, err := l.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(acc.Positions))
	for symbol, pos := range acc.Positions {
		if !pos.IsFlat() {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)

	mode := models.TradeLive
	if strings.HasPrefix(accountID, models.PaperGroupPrefix) {
		mode = models.TradePaper
	}

	results := make([]*models.ExecutionResult, 0, len(symbols))
	var errs []error
	for _, symbol := range symbols {
		pos := acc.Positions[symbol]
		side := models.SideSell
		if pos.Quantity < 0 {
			side = models.SideBuy
		}

		order, err := l.CreateOrder(ctx, models.Order{
			AccountID:  accountID,
			StrategyID: pos.StrategyID,
			Symbol:     symbol,
			Side:       side,
			Type:       models.OrderTypeMarket,
			Quantity:   utils.AbsInt(pos.Quantity),
			Mode:       mode,
			Adapter:    acc.Adapter,
			Reason:     reason,
			Synthetic:  true,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}

		res := l.executor.ExecuteOrder(ctx, order)
		results = append(results, res)
		if !res.Succeeded() {
			errs = append(errs, fmt.Errorf("%s: %s", symbol, res.Reason))
		}
	}

	l.logger.Info("account flattened",
		utils.AccountID(accountID),
		utils.Int("positions", len(symbols)),
		utils.Int("cancelled_orders", len(working)),
		utils.String("reason", reason),
		utils.Int("failures", len(errs)),
	)
	return results, errors.Join(errs...)
}
