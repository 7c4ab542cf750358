package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/market"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// ApplyFill применяет исполнение к ордеру, позиции и балансу счёта.
//
// Всё выполняется атомарно под lock'ом счёта:
//  1. проверка ордера (существует, не терминальный, без перебора количества)
//  2. проверка buying power для симулятора и hybrid (только наращивающая часть)
//  3. обновление позиции: наращивание, сокращение или переворот
//  4. реализованный P&L с множителем контракта, списание комиссии
//  5. статус ордера, пересчёт buying power
//  6. итоги сделок передаются OutcomeRecorder'у
//
// После освобождения lock'а вызываются Notifier и FillHook'и.
func (l *Ledger) ApplyFill(ctx context.Context, fill models.Fill) (*FillUpdate, error) {
	st, err := l.orderState(fill.OrderID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	update, err := l.applyFillLocked(ctx, st, fill)
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	l.notifier.OrderChanged(update.Order)
	l.notifier.AccountChanged(update.Account)
	for _, hook := range l.fillHooks {
		hook(ctx, *update)
	}
	return update, nil
}

func (l *Ledger) applyFillLocked(ctx context.Context, st *accountState, fill models.Fill) (*FillUpdate, error) {
	acc := st.account
	o, ok := st.orders[fill.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, fill.OrderID)
	}
	if o.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %s", models.ErrOrderTerminal, o.ID, o.Status)
	}
	if fill.Quantity <= 0 {
		return nil, fmt.Errorf("%w: fill quantity must be positive", models.ErrValidation)
	}
	if fill.Quantity > o.Remaining() {
		return nil, fmt.Errorf("%w: %d > %d", models.ErrOverfill, fill.Quantity, o.Remaining())
	}
	if !fill.Price.IsPositive() {
		return nil, fmt.Errorf("%w: fill price must be positive", models.ErrValidation)
	}

	if fill.ID == "" {
		fill.ID = uuid.NewString()
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = l.now()
	}
	fill.AccountID = acc.ID
	fill.Symbol = o.Symbol
	fill.Side = o.Side

	symbol := o.Symbol
	mult := market.Multiplier(symbol)
	pos := acc.Positions[symbol]
	current := 0
	if pos != nil {
		current = pos.Quantity
	}
	signed := fill.SignedQuantity()
	dir := utils.SignInt(signed)

	closeQty := 0
	if current != 0 && utils.SignInt(current) != dir {
		closeQty = utils.MinInt(utils.AbsInt(signed), utils.AbsInt(current))
	}
	openQty := utils.AbsInt(signed) - closeQty

	// Buying power проверяется только для наращивающей части
	if openQty > 0 && EnforcesBuyingPower(acc) {
		required, available := CapitalCheck(acc, symbol, signed, fill.Price)
		if required.GreaterThan(available) {
			return nil, models.NewExecutionError(models.KindInsufficientBuyingPower,
				fmt.Sprintf("required %s exceeds buying power %s", required.StringFixed(2), available.StringFixed(2)), nil)
		}
	}

	// Ордер: PENDING -> WORKING неявно, затем PARTIALLY_FILLED / FILLED
	if o.Status == models.OrderPending {
		if err := l.transitionLocked(o, models.OrderWorking, ""); err != nil {
			return nil, err
		}
	}
	o.AvgFillPrice = utils.WeightedAverage(o.FilledQuantity, o.AvgFillPrice, fill.Quantity, fill.Price)
	o.FilledQuantity += fill.Quantity
	next := models.OrderPartiallyFilled
	if o.FilledQuantity == o.Quantity {
		next = models.OrderFilled
	}
	if err := l.transitionLocked(o, next, ""); err != nil {
		return nil, err
	}

	var outcomes []models.TradeOutcome
	gross := decimal.Zero

	if closeQty > 0 {
		posDir := utils.SignInt(current)
		closeDec := decimal.NewFromInt(int64(closeQty))
		gross = fill.Price.Sub(pos.AvgEntryPrice).Mul(closeDec).Mul(mult)
		if posDir < 0 {
			gross = gross.Neg()
		}
		exitCommission := fill.Commission.Mul(closeDec).Div(decimal.NewFromInt(int64(utils.AbsInt(signed))))
		pnl := gross.Sub(exitCommission)

		strategyID := pos.StrategyID
		if strategyID == "" {
			strategyID = o.StrategyID
		}
		direction := "long"
		if posDir < 0 {
			direction = "short"
		}
		outcomes = append(outcomes, models.TradeOutcome{
			ID:         uuid.NewString(),
			StrategyID: strategyID,
			AccountID:  acc.ID,
			TradeID:    fill.ID,
			Symbol:     symbol,
			Direction:  direction,
			EntryPrice: pos.AvgEntryPrice,
			ExitPrice:  fill.Price,
			Quantity:   closeQty,
			Pnl:        pnl,
			Win:        pnl.IsPositive(),
			Mode:       o.Mode,
			ClosedAt:   fill.Timestamp,
		})

		pos.Quantity += dir * closeQty
		pos.RealizedPnl = pos.RealizedPnl.Add(gross)
		if pos.Quantity == 0 {
			delete(acc.Positions, symbol)
			pos = nil
		}
	}

	if openQty > 0 {
		if pos == nil {
			pos = &models.Position{
				Symbol:        symbol,
				AvgEntryPrice: fill.Price,
				StrategyID:    o.StrategyID,
				OpenedAt:      fill.Timestamp,
			}
			acc.Positions[symbol] = pos
		} else {
			pos.AvgEntryPrice = utils.WeightedAverage(pos.Quantity, pos.AvgEntryPrice, openQty, fill.Price)
		}
		pos.Quantity += dir * openQty
	}
	if pos != nil {
		pos.MarkPrice = fill.Price
	}

	acc.RealizedPnl = acc.RealizedPnl.Add(gross)
	acc.Commissions = acc.Commissions.Add(fill.Commission)
	acc.Balance = acc.Balance.Add(gross).Sub(fill.Commission)
	acc.UpdatedAt = l.now()
	recompute(acc)

	if l.recorder != nil {
		for i := range outcomes {
			outcomes[i] = l.recorder.Record(outcomes[i])
		}
	}

	fc := fill
	st.fills = append(st.fills, &fc)
	for i := range outcomes {
		tc := outcomes[i]
		st.trades = append(st.trades, &tc)
	}

	l.persistOrder(ctx, o)
	if err := l.journal.AppendFill(ctx, &fc); err != nil {
		l.logger.Error("journal append fill failed", utils.FillID(fc.ID), utils.Err(err))
	}
	for i := range outcomes {
		if err := l.journal.AppendTrade(ctx, &outcomes[i]); err != nil {
			l.logger.Error("journal append trade failed", utils.String("trade_id", outcomes[i].ID), utils.Err(err))
		}
	}
	l.persistAccount(ctx, acc)

	l.logger.Info("fill applied",
		utils.AccountID(acc.ID),
		utils.OrderID(o.ID),
		utils.Symbol(symbol),
		utils.Side(string(fill.Side)),
		utils.Quantity(fill.Quantity),
		utils.Price(fill.Price),
		utils.PNL(gross),
		utils.State(string(o.Status)),
	)

	orderSnapshot := *o
	return &FillUpdate{
		Account:  acc.Clone(),
		Order:    &orderSnapshot,
		Fill:     fc,
		Outcomes: outcomes,
	}, nil
}
