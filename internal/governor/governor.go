// Package governor ведёт статистику стратегий по наборам сделок
// и переключает их между режимами LIVE, PAPER и SUSPENDED.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradecore/internal/ledger"
	"tradecore/internal/metrics"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// StrategyStore хранилище состояния стратегий
type StrategyStore interface {
	LoadStrategies(ctx context.Context) ([]*models.StrategyPerformance, error)
	SaveStrategy(ctx context.Context, p *models.StrategyPerformance) error
}

// Publisher получает переходы режимов вместе с обновлённым состоянием стратегии
type Publisher interface {
	StrategyTransitioned(p *models.StrategyPerformance, ev models.TransitionEvent)
}

// Governor губернатор стратегий
//
// Жизненный цикл: New -> Init (загрузка из хранилища) -> работа -> Shutdown (сохранение).
// Record вызывается леджером внутри критической секции счёта, поэтому закрытие набора
// и оценка перехода выполняются ровно один раз для каждой сделки.
type Governor struct {
	mu         sync.Mutex
	strategies map[string]*models.StrategyPerformance
	policy     models.GovernorPolicy

	store          StrategyStore
	publisher      Publisher
	persistTimeout time.Duration

	logger *utils.Logger
	now    func() time.Time
}

// Option настройка Governor
type Option func(*Governor)

// WithStore подключает хранилище
func WithStore(s StrategyStore) Option {
	return func(g *Governor) { g.store = s }
}

// WithPublisher подключает уведомления о переходах
func WithPublisher(p Publisher) Option {
	return func(g *Governor) { g.publisher = p }
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// New создаёт губернатор с политикой по умолчанию для новых стратегий
func New(policy models.GovernorPolicy, logger *utils.Logger, opts ...Option) (*Governor, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	g := &Governor{
		strategies:     make(map[string]*models.StrategyPerformance),
		policy:         policy,
		persistTimeout: 5 * time.Second,
		logger:         logger.WithComponent("governor"),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func validatePolicy(p models.GovernorPolicy) error {
	switch {
	case p.SetSize < 1:
		return fmt.Errorf("%w: set size must be positive", models.ErrValidation)
	case p.MinWinRate < 0 || p.MinWinRate > 100:
		return fmt.Errorf("%w: min win rate must be within [0, 100]", models.ErrValidation)
	case p.FailsToDemote < 1 || p.WinsToPromote < 1:
		return fmt.Errorf("%w: demote/promote streaks must be positive", models.ErrValidation)
	}
	return nil
}

var _ ledger.OutcomeRecorder = (*Governor)(nil)

// ============================================================
// Жизненный цикл
// ============================================================

// Init загружает стратегии из хранилища
func (g *Governor) Init(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	loaded, err := g.store.LoadStrategies(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}

	g.mu.Lock()
	for _, p := range loaded {
		if validatePolicy(p.Policy) != nil {
			p.Policy = g.policy
		}
		if !p.CurrentMode.Valid() {
			p.CurrentMode = models.ModeLive
		}
		g.strategies[p.StrategyID] = p
	}
	g.mu.Unlock()

	g.logger.Info("strategies loaded", utils.Int("count", len(loaded)))
	return nil
}

// Shutdown сохраняет состояние всех стратегий
func (g *Governor) Shutdown(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	var errs []error
	strategies := g.List()
	for _, p := range strategies {
		if err := g.store.SaveStrategy(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", p.StrategyID, err))
		}
	}
	g.logger.Info("governor stopped", utils.Int("strategies", len(strategies)))
	return errors.Join(errs...)
}

// ============================================================
// Режимы
// ============================================================

// Mode текущий режим стратегии; неизвестная стратегия считается LIVE
func (g *Governor) Mode(strategyID string) models.StrategyMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.strategies[strategyID]; ok {
		return p.CurrentMode
	}
	return models.ModeLive
}

// Ensure возвращает состояние стратегии, создавая его при первом алерте
func (g *Governor) Ensure(ctx context.Context, strategyID string) (*models.StrategyPerformance, error) {
	if strategyID == "" {
		return nil, fmt.Errorf("%w: strategy id is required", models.ErrValidation)
	}
	g.mu.Lock()
	_, existed := g.strategies[strategyID]
	snapshot := g.ensureLocked(strategyID).Clone()
	g.mu.Unlock()

	if !existed {
		g.logger.Info("strategy registered", utils.StrategyID(strategyID))
		g.persist(ctx, snapshot)
	}
	return snapshot, nil
}

func (g *Governor) ensureLocked(strategyID string) *models.StrategyPerformance {
	if p, ok := g.strategies[strategyID]; ok {
		return p
	}
	now := g.now()
	p := &models.StrategyPerformance{
		StrategyID:  strategyID,
		CurrentMode: models.ModeLive,
		Policy:      g.policy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.strategies[strategyID] = p
	return p
}

// Get состояние стратегии
func (g *Governor) Get(strategyID string) (*models.StrategyPerformance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.strategies[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrStrategyNotFound, strategyID)
	}
	return p.Clone(), nil
}

// List все стратегии по ID
func (g *Governor) List() []*models.StrategyPerformance {
	g.mu.Lock()
	out := make([]*models.StrategyPerformance, 0, len(g.strategies))
	for _, p := range g.strategies {
		out = append(out, p.Clone())
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out
}

// Override ручная смена режима. Действует сразу для маршрутизации;
// текущий набор сохраняет свой тег, следующий откроется с новым режимом.
func (g *Governor) Override(ctx context.Context, strategyID string, mode models.StrategyMode, reason string) (*models.StrategyPerformance, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
	}
	if strategyID == "" {
		return nil, fmt.Errorf("%w: strategy id is required", models.ErrValidation)
	}
	if reason == "" {
		reason = "manual override"
	}

	g.mu.Lock()
	p := g.ensureLocked(strategyID)
	if p.CurrentMode == mode {
		snapshot := p.Clone()
		g.mu.Unlock()
		return snapshot, nil
	}
	ev := models.TransitionEvent{
		StrategyID: strategyID,
		From:       p.CurrentMode,
		To:         mode,
		Reason:     reason,
		Manual:     true,
		Timestamp:  g.now(),
	}
	g.applyTransitionLocked(p, ev)
	snapshot := p.Clone()
	g.mu.Unlock()

	g.afterTransition(ctx, snapshot, ev)
	return snapshot, nil
}

func (g *Governor) applyTransitionLocked(p *models.StrategyPerformance, ev models.TransitionEvent) {
	p.CurrentMode = ev.To
	p.TransitionHistory = append(p.TransitionHistory, ev)
	p.UpdatedAt = ev.Timestamp
}

func (g *Governor) afterTransition(ctx context.Context, snapshot *models.StrategyPerformance, ev models.TransitionEvent) {
	metrics.RecordTransition(string(ev.From), string(ev.To), ev.Manual)
	g.logger.Warn("strategy mode changed",
		utils.StrategyID(ev.StrategyID),
		utils.String("from", string(ev.From)),
		utils.String("to", string(ev.To)),
		utils.Bool("manual", ev.Manual),
		utils.String("reason", ev.Reason),
	)
	g.persist(ctx, snapshot)
	if g.publisher != nil {
		g.publisher.StrategyTransitioned(snapshot, ev)
	}
}

func (g *Governor) persist(ctx context.Context, snapshot *models.StrategyPerformance) {
	if g.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, g.persistTimeout)
	defer cancel()
	if err := g.store.SaveStrategy(ctx, snapshot); err != nil {
		g.logger.Error("save strategy failed", utils.StrategyID(snapshot.StrategyID), utils.Err(err))
	}
}
