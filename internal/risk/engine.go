// Package risk реализует правила funded-счетов: предпроверку алертов
// и непрерывный мониторинг с аварийным закрытием позиций.
package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/market"
	"tradecore/internal/metrics"
	"tradecore/internal/models"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

// Engine - риск-движок funded-счетов
//
// Функции:
// - Precheck: блокировка алерта до исполнения (без побочных эффектов)
// - Evaluate: пересчёт дневного P&L и trailing drawdown, фиксация нарушений
// - аварийный flatten при критическом нарушении (единственный путь мимо роутера)
// - периодический тик: переоценка позиций, исполнение рабочих ордеров, проверка правил
// - автоматическое снятие нарушения, когда условие перестало выполняться
type Engine struct {
	accounts Accounts
	prices   market.PriceSource
	sweeper  Sweeper
	store    ViolationStore
	notifier Notifier

	config Config

	mu         sync.Mutex
	violations map[string][]*models.RuleViolation // accountID -> история
	flattening map[string]bool

	logger *utils.Logger
	now    func() time.Time
}

// Config параметры риск-движка
type Config struct {
	// TickInterval период мониторинга; 0 отключает Run
	TickInterval time.Duration

	// Session граница торговых суток для дневного лимита
	Session utils.SessionClock

	// FlattenTimeout общий бюджет аварийного закрытия
	FlattenTimeout time.Duration
}

// DefaultConfig значения по умолчанию: тик 5с, сутки CME (17:00 Chicago)
func DefaultConfig() Config {
	return Config{
		TickInterval:   5 * time.Second,
		Session:        utils.NewSessionClock("America/Chicago", 17),
		FlattenTimeout: 30 * time.Second,
	}
}

// Accounts часть леджера, нужная риск-движку
type Accounts interface {
	GetAccount(id string) (*models.Account, error)
	ListAccounts() []*models.Account
	Mutate(ctx context.Context, id string, fn func(acc *models.Account)) (*models.Account, error)
	MarkToMarket(ctx context.Context, id string, prices map[string]decimal.Decimal) (*models.Account, error)
	Flatten(ctx context.Context, accountID, reason string) ([]*models.ExecutionResult, error)
}

// Sweeper исполняет рабочие ордера симулятора на тике
type Sweeper interface {
	SweepWorking(ctx context.Context, accountID string) ([]*ledger.FillUpdate, error)
}

// ViolationStore хранилище нарушений
type ViolationStore interface {
	SaveViolation(ctx context.Context, v *models.RuleViolation) error
	LoadViolations(ctx context.Context) ([]*models.RuleViolation, error)
}

// Notifier получает новые и снятые нарушения
type Notifier interface {
	ViolationChanged(v *models.RuleViolation)
}

// Option настройка Engine
type Option func(*Engine)

// WithSweeper подключает исполнение рабочих ордеров на тике
func WithSweeper(s Sweeper) Option {
	return func(e *Engine) { e.sweeper = s }
}

// WithStore подключает хранилище нарушений
func WithStore(s ViolationStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithNotifier подключает push-уведомления
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine создаёт риск-движок
func NewEngine(accounts Accounts, prices market.PriceSource, config Config, logger *utils.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if config.FlattenTimeout <= 0 {
		config.FlattenTimeout = 30 * time.Second
	}
	e := &Engine{
		accounts:   accounts,
		prices:     prices,
		config:     config,
		violations: make(map[string][]*models.RuleViolation),
		flattening: make(map[string]bool),
		logger:     logger.WithComponent("risk"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore загружает историю нарушений из хранилища
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	loaded, err := e.store.LoadViolations(ctx)
	if err != nil {
		return fmt.Errorf("load violations: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range loaded {
		e.violations[v.AccountID] = append(e.violations[v.AccountID], v)
	}
	return nil
}

// ============================================================
// Precheck
// ============================================================

// Precheck проверяет алерт против правил счёта. Счёт не меняется.
// Счета без правил проходят всегда.
func (e *Engine) Precheck(alert models.Alert, acc *models.Account) (bool, string) {
	if acc == nil || !acc.IsFunded() {
		return true, ""
	}
	f := acc.Funded

	daily := f.CurrentDailyPnl
	if !f.DayStart.IsZero() && !e.config.Session.SameSession(f.DayStart, e.now()) {
		// новые сутки: дневной счётчик обнулится на ближайшем Evaluate
		daily = decimal.Zero
	}

	switch {
	case f.MaxDailyLoss.IsPositive() && daily.LessThanOrEqual(f.MaxDailyLoss.Neg()):
		return e.reject(models.ReasonDailyLossReached)
	case f.MaxContracts > 0 && alert.Quantity > f.MaxContracts:
		return e.reject(models.ReasonMaxContracts)
	case f.TrailingDrawdown.IsPositive() && f.CurrentDrawdown.GreaterThanOrEqual(f.TrailingDrawdown):
		return e.reject(models.ReasonTrailingDrawdownHit)
	}
	return true, ""
}

func (e *Engine) reject(reason string) (bool, string) {
	metrics.RecordPrecheckRejection(reason)
	return false, reason
}

// ============================================================
// Мониторинг
// ============================================================

type breach struct {
	rule     string
	severity string
	message  string
	value    decimal.Decimal
	limit    decimal.Decimal
}

// Evaluate пересчитывает текущие значения правил счёта и фиксирует нарушения.
// Критическое нарушение запускает flatten один раз, пока нарушение активно.
func (e *Engine) Evaluate(ctx context.Context, accountID string) ([]*models.RuleViolation, error) {
	now := e.now()
	acc, err := e.accounts.Mutate(ctx, accountID, func(acc *models.Account) {
		if acc.Funded != nil {
			e.roll(acc, now)
		}
	})
	if err != nil {
		return nil, err
	}
	if !acc.IsFunded() {
		return nil, nil
	}

	breaches := e.check(acc)
	created, flatten := e.reconcile(ctx, acc, breaches, now)

	if flatten != nil {
		e.emergencyFlatten(ctx, accountID, flatten)
	}
	return created, nil
}

// roll обновляет дневной P&L, пик equity и просадку. Под lock'ом счёта.
func (e *Engine) roll(acc *models.Account, now time.Time) {
	f := acc.Funded
	equity := acc.Equity()

	session := e.config.Session.SessionStart(now)
	switch {
	case f.DayStart.IsZero():
		// первая оценка: equity начала дня задана при создании счёта
		f.DayStart = session
		if f.DayStartEquity.IsZero() {
			f.DayStartEquity = equity
		}
	case !f.DayStart.Equal(session):
		f.DayStart = session
		f.DayStartEquity = equity
		e.logger.Info("trading day rolled over",
			utils.AccountID(acc.ID), utils.Money("day_start_equity", equity))
	}
	if equity.GreaterThan(f.PeakEquity) {
		f.PeakEquity = equity
	}
	f.CurrentDailyPnl = equity.Sub(f.DayStartEquity)
	f.CurrentDrawdown = f.PeakEquity.Sub(equity)
	if f.CurrentDrawdown.IsNegative() {
		f.CurrentDrawdown = decimal.Zero
	}
}

// check выявляет нарушенные правила по снимку счёта
func (e *Engine) check(acc *models.Account) []breach {
	f := acc.Funded
	var out []breach

	if f.MaxDailyLoss.IsPositive() && f.CurrentDailyPnl.LessThanOrEqual(f.MaxDailyLoss.Neg()) {
		out = append(out, breach{
			rule: models.RuleMaxDailyLoss, severity: models.SeverityCritical,
			message: models.ReasonDailyLossReached, value: f.CurrentDailyPnl, limit: f.MaxDailyLoss,
		})
	}
	if f.TrailingDrawdown.IsPositive() && f.CurrentDrawdown.GreaterThanOrEqual(f.TrailingDrawdown) {
		out = append(out, breach{
			rule: models.RuleTrailingDrawdown, severity: models.SeverityCritical,
			message: models.ReasonTrailingDrawdownHit, value: f.CurrentDrawdown, limit: f.TrailingDrawdown,
		})
	}
	if f.MaxContracts > 0 {
		open := 0
		for _, p := range acc.Positions {
			open += utils.AbsInt(p.Quantity)
		}
		if open > f.MaxContracts {
			out = append(out, breach{
				rule: models.RuleMaxContracts, severity: models.SeverityWarn,
				message: fmt.Sprintf("%d open contracts above limit", open),
				value:   decimal.NewFromInt(int64(open)), limit: decimal.NewFromInt(int64(f.MaxContracts)),
			})
		}
	}
	if f.ProfitTarget.IsPositive() {
		profit := acc.Equity().Sub(acc.InitialBalance)
		if profit.GreaterThanOrEqual(f.ProfitTarget) {
			out = append(out, breach{
				rule: models.RuleProfitTarget, severity: models.SeverityInfo,
				message: "Profit target reached", value: profit, limit: f.ProfitTarget,
			})
		}
	}
	return out
}

// reconcile сверяет выявленные нарушения с активными: создаёт новые, снимает исчезнувшие.
// Возвращает новые нарушения и критическое нарушение, требующее flatten.
func (e *Engine) reconcile(ctx context.Context, acc *models.Account, breaches []breach, now time.Time) ([]*models.RuleViolation, *models.RuleViolation) {
	current := make(map[string]breach, len(breaches))
	for _, b := range breaches {
		current[b.rule] = b
	}

	var created, resolved []*models.RuleViolation
	var flatten *models.RuleViolation

	e.mu.Lock()
	active := make(map[string]*models.RuleViolation)
	for _, v := range e.violations[acc.ID] {
		if v.Active() {
			active[v.Rule] = v
		}
	}

	for rule, v := range active {
		if _, still := current[rule]; !still {
			t := now
			v.ResolvedAt = &t
			resolved = append(resolved, v)
		}
	}

	for _, b := range breaches {
		if _, exists := active[b.rule]; exists {
			continue
		}
		v := &models.RuleViolation{
			ID:         uuid.NewString(),
			AccountID:  acc.ID,
			Rule:       b.rule,
			Severity:   b.severity,
			Message:    b.message,
			Value:      b.value,
			Limit:      b.limit,
			DetectedAt: now,
		}
		if b.severity == models.SeverityCritical && !e.flattening[acc.ID] && hasExposure(acc) {
			v.Flattened = true
			e.flattening[acc.ID] = true
			if flatten == nil {
				flatten = v
			}
		}
		e.violations[acc.ID] = append(e.violations[acc.ID], v)
		created = append(created, v)
	}
	e.mu.Unlock()

	for _, v := range created {
		metrics.RecordViolation(v.Rule, v.Severity)
		e.logger.Warn("rule violation detected",
			utils.AccountID(v.AccountID),
			utils.Rule(v.Rule),
			utils.String("severity", v.Severity),
			utils.Money("value", v.Value),
			utils.Money("limit", v.Limit),
		)
		e.persist(ctx, v)
	}
	for _, v := range resolved {
		e.logger.Info("rule violation resolved", utils.AccountID(v.AccountID), utils.Rule(v.Rule))
		e.persist(ctx, v)
	}
	return created, flatten
}

func hasExposure(acc *models.Account) bool {
	for _, p := range acc.Positions {
		if !p.IsFlat() {
			return true
		}
	}
	return false
}

func (e *Engine) persist(ctx context.Context, v *models.RuleViolation) {
	snapshot := *v
	if e.store != nil {
		if err := e.store.SaveViolation(ctx, &snapshot); err != nil {
			e.logger.Error("save violation failed", utils.String("violation_id", v.ID), utils.Err(err))
		}
	}
	if e.notifier != nil {
		e.notifier.ViolationChanged(&snapshot)
	}
}

// emergencyFlatten закрывает все позиции счёта с агрессивным retry.
// Частичная неудача повторяется: Flatten закрывает только оставшиеся позиции.
func (e *Engine) emergencyFlatten(ctx context.Context, accountID string, v *models.RuleViolation) {
	defer func() {
		e.mu.Lock()
		delete(e.flattening, accountID)
		e.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, e.config.FlattenTimeout)
	defer cancel()

	reason := fmt.Sprintf("risk: %s", v.Message)
	err := retry.Do(ctx, func(ctx context.Context) error {
		_, err := e.accounts.Flatten(ctx, accountID, reason)
		if err != nil {
			return retry.Temporary(err)
		}
		return nil
	}, retry.FlattenConfig())

	metrics.RecordFlatten(err == nil)
	if err != nil {
		e.logger.Error("emergency flatten failed",
			utils.AccountID(accountID), utils.Rule(v.Rule), utils.Err(err))
		return
	}
	e.logger.Warn("emergency flatten completed", utils.AccountID(accountID), utils.Rule(v.Rule))
}

// OnFill хук леджера: пересчёт правил после каждого fill'а funded-счёта
func (e *Engine) OnFill(ctx context.Context, update ledger.FillUpdate) {
	if update.Account == nil || !update.Account.IsFunded() {
		return
	}
	if _, err := e.Evaluate(ctx, update.Account.ID); err != nil {
		e.logger.Error("evaluate after fill failed", utils.AccountID(update.Account.ID), utils.Err(err))
	}
}

// ============================================================
// Периодический тик
// ============================================================

// Run запускает мониторинг до отмены контекста
func (e *Engine) Run(ctx context.Context) {
	if e.config.TickInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	e.logger.Info("risk monitor started", utils.Dur("interval", e.config.TickInterval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("risk monitor stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick один проход мониторинга по всем счетам:
// переоценка позиций, исполнение рабочих ордеров, проверка правил
func (e *Engine) Tick(ctx context.Context) {
	for _, acc := range e.accounts.ListAccounts() {
		if ctx.Err() != nil {
			return
		}
		e.markToMarket(ctx, acc)

		if e.sweeper != nil && acc.ExecutionMode != models.ExecSandbox {
			if _, err := e.sweeper.SweepWorking(ctx, acc.ID); err != nil {
				e.logger.Warn("sweep working orders failed", utils.AccountID(acc.ID), utils.Err(err))
			}
		}

		if acc.IsFunded() {
			if _, err := e.Evaluate(ctx, acc.ID); err != nil {
				e.logger.Error("evaluate failed", utils.AccountID(acc.ID), utils.Err(err))
			}
		} else if eq, err := e.accounts.GetAccount(acc.ID); err == nil {
			metrics.UpdateEquity(acc.ID, eq.Equity().InexactFloat64())
		}
	}
}

func (e *Engine) markToMarket(ctx context.Context, acc *models.Account) {
	if len(acc.Positions) == 0 || e.prices == nil {
		return
	}
	prices := make(map[string]decimal.Decimal, len(acc.Positions))
	for symbol := range acc.Positions {
		p, err := e.prices.Price(ctx, symbol)
		if err != nil {
			if !errors.Is(err, models.ErrPriceUnavailable) {
				e.logger.Debug("mark price unavailable", utils.Symbol(symbol), utils.Err(err))
			}
			continue
		}
		prices[symbol] = p
	}
	if len(prices) == 0 {
		return
	}
	if _, err := e.accounts.MarkToMarket(ctx, acc.ID, prices); err != nil {
		e.logger.Warn("mark to market failed", utils.AccountID(acc.ID), utils.Err(err))
	}
}

// ============================================================
// Выборки
// ============================================================

// Violations история нарушений счёта, новые первыми
func (e *Engine) Violations(accountID string) []*models.RuleViolation {
	e.mu.Lock()
	defer e.mu.Unlock()

	src := e.violations[accountID]
	out := make([]*models.RuleViolation, len(src))
	for i, v := range src {
		c := *v
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out
}

// Resolve снимает нарушение вручную
func (e *Engine) Resolve(ctx context.Context, violationID string) (*models.RuleViolation, error) {
	e.mu.Lock()
	var found *models.RuleViolation
	for _, list := range e.violations {
		for _, v := range list {
			if v.ID == violationID {
				found = v
				break
			}
		}
	}
	if found == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrViolationNotFound, violationID)
	}
	if found.Active() {
		t := e.now()
		found.ResolvedAt = &t
	}
	snapshot := *found
	e.mu.Unlock()

	e.persist(ctx, &snapshot)
	e.logger.Info("rule violation resolved manually", utils.AccountID(snapshot.AccountID), utils.Rule(snapshot.Rule))
	return &snapshot, nil
}

// ForgetAccount сбрасывает историю нарушений после reset счёта
func (e *Engine) ForgetAccount(accountID string) {
	e.mu.Lock()
	delete(e.violations, accountID)
	e.mu.Unlock()
}
