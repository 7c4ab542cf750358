package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tradecore/internal/governor"
	"tradecore/internal/ledger"
	"tradecore/internal/models"
	"tradecore/internal/risk"
)

// Store все репозитории поверх одного подключения.
// Реализует журнал леджера, хранилище стратегий и хранилище нарушений.
type Store struct {
	db         *DB
	Accounts   *AccountRepository
	Orders     *OrderRepository
	Fills      *FillRepository
	Trades     *TradeRepository
	Strategies *StrategyRepository
	Violations *ViolationRepository
}

var (
	_ ledger.Journal         = (*Store)(nil)
	_ ledger.Snapshot        = (*Store)(nil)
	_ governor.StrategyStore = (*Store)(nil)
	_ risk.ViolationStore    = (*Store)(nil)
)

// NewStore создает Store
func NewStore(db *DB) *Store {
	return &Store{
		db:         db,
		Accounts:   NewAccountRepository(db),
		Orders:     NewOrderRepository(db),
		Fills:      NewFillRepository(db),
		Trades:     NewTradeRepository(db),
		Strategies: NewStrategyRepository(db),
		Violations: NewViolationRepository(db),
	}
}

// Close закрывает подключение
func (s *Store) Close() error {
	return s.db.Close()
}

// ============ ledger.Journal ============

func (s *Store) SaveAccount(ctx context.Context, acc *models.Account) error {
	return s.Accounts.Save(ctx, acc)
}

func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	return s.Orders.Save(ctx, order)
}

func (s *Store) AppendFill(ctx context.Context, fill *models.Fill) error {
	return s.Fills.Append(ctx, fill)
}

func (s *Store) AppendTrade(ctx context.Context, trade *models.TradeOutcome) error {
	return s.Trades.Append(ctx, trade)
}

// ResetAccount удаляет историю счёта одной транзакцией; сам счёт перезаписывается леджером
func (s *Store) ResetAccount(ctx context.Context, accountID string) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"orders", "fills", "trades", "violations"} {
			query := s.db.rebind(`DELETE FROM ` + table + ` WHERE account_id = $1`)
			if _, err := tx.ExecContext(ctx, query, accountID); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// ============ ledger.Snapshot ============

func (s *Store) LoadAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.Accounts.GetAll(ctx)
}

func (s *Store) LoadOrders(ctx context.Context, accountID string) ([]*models.Order, error) {
	return s.Orders.GetByAccount(ctx, accountID)
}

func (s *Store) LoadFills(ctx context.Context, accountID string) ([]*models.Fill, error) {
	return s.Fills.GetByAccount(ctx, accountID)
}

func (s *Store) LoadTrades(ctx context.Context, accountID string) ([]*models.TradeOutcome, error) {
	return s.Trades.GetByAccount(ctx, accountID)
}

// ============ governor.StrategyStore ============

func (s *Store) LoadStrategies(ctx context.Context) ([]*models.StrategyPerformance, error) {
	return s.Strategies.GetAll(ctx)
}

func (s *Store) SaveStrategy(ctx context.Context, p *models.StrategyPerformance) error {
	return s.Strategies.Save(ctx, p)
}

// ============ risk.ViolationStore ============

func (s *Store) SaveViolation(ctx context.Context, v *models.RuleViolation) error {
	return s.Violations.Save(ctx, v)
}

func (s *Store) LoadViolations(ctx context.Context) ([]*models.RuleViolation, error) {
	return s.Violations.GetAll(ctx)
}
