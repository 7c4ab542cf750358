package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// CreateOrder регистрирует ордер в статусе PENDING.
// Пустой ID заполняется UUID.
func (l *Ledger) CreateOrder(ctx context.Context, order models.Order) (*models.Order, error) {
	st, err := l.state(order.AccountID)
	if err != nil {
		return nil, err
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("%w: order quantity must be positive", models.ErrValidation)
	}
	if order.Side != models.SideBuy && order.Side != models.SideSell {
		return nil, fmt.Errorf("%w: order side must be buy or sell", models.ErrValidation)
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Type == "" {
		order.Type = models.OrderTypeMarket
	}
	now := l.now()
	order.Status = models.OrderPending
	order.FilledQuantity = 0
	order.AvgFillPrice = decimal.Zero
	order.CreatedAt = now
	order.UpdatedAt = now

	st.mu.Lock()
	o := order
	st.orders[o.ID] = &o
	st.order = append(st.order, o.ID)
	l.persistOrder(ctx, &o)
	snapshot := o
	st.mu.Unlock()

	l.mu.Lock()
	l.orderIndex[o.ID] = o.AccountID
	l.mu.Unlock()

	l.logger.Debug("order created",
		utils.OrderID(o.ID), utils.AccountID(o.AccountID), utils.Symbol(o.Symbol),
		utils.Side(string(o.Side)), utils.Quantity(o.Quantity),
	)
	l.notifier.OrderChanged(&snapshot)
	return &snapshot, nil
}

// GetOrder снимок ордера по ID
func (l *Ledger) GetOrder(orderID string) (*models.Order, error) {
	st, err := l.orderState(orderID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	c := *o
	return &c, nil
}

// TransitionOrder переводит ордер в новый статус по автомату статусов
func (l *Ledger) TransitionOrder(ctx context.Context, orderID string, to models.OrderStatus, reason string) (*models.Order, error) {
	st, err := l.orderState(orderID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	o, ok := st.orders[orderID]
	if !ok {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	if err := l.transitionLocked(o, to, reason); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	l.persistOrder(ctx, o)
	snapshot := *o
	st.mu.Unlock()

	l.logger.Debug("order transition",
		utils.OrderID(orderID), utils.State(string(to)), utils.String("reason", reason),
	)
	l.notifier.OrderChanged(&snapshot)
	return &snapshot, nil
}

// CancelOrder отменяет нетерминальный ордер
func (l *Ledger) CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error) {
	if reason == "" {
		reason = "cancelled by user"
	}
	return l.TransitionOrder(ctx, orderID, models.OrderCancelled, reason)
}

// WorkingOrders активные лимитные ордера счёта (WORKING или PARTIALLY_FILLED)
func (l *Ledger) WorkingOrders(accountID string) ([]*models.Order, error) {
	st, err := l.state(accountID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*models.Order
	for _, oid := range st.order {
		o := st.orders[oid]
		if o.Status == models.OrderWorking || o.Status == models.OrderPartiallyFilled {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (l *Ledger) orderState(orderID string) (*accountState, error) {
	l.mu.RLock()
	accountID, ok := l.orderIndex[orderID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	return l.state(accountID)
}

// transitionLocked проверяет и применяет переход. Под lock'ом счёта.
func (l *Ledger) transitionLocked(o *models.Order, to models.OrderStatus, reason string) error {
	if o.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", models.ErrOrderTerminal, o.ID, o.Status)
	}
	if !models.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	if reason != "" {
		o.Reason = reason
	}
	o.UpdatedAt = l.now()
	return nil
}
