package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/market"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// ============================================================
// Ledger - учёт счетов, ордеров, fill'ов и позиций
// ============================================================
//
// Назначение:
// Единственный путь изменения баланса, позиций и реализованного P&L.
//
// Конкурентность:
// - у каждого счёта свой sync.Mutex: все мутации счёта сериализованы
// - реестр счетов и индекс ордеров защищены RWMutex
// - операции с разными счетами выполняются параллельно
// - порядок блокировок: счёт -> губернатор (OutcomeRecorder); обратного нет
// - хуки (FillHook, Notifier) вызываются после освобождения lock'а счёта
//
// Buying power:
//   BuyingPower = Balance * Leverage - sum(|qty| * avg_entry * multiplier)
// Баланс меняется только реализованным P&L и комиссиями.

// DefaultLeverage плечо по умолчанию для счетов без явной настройки
var DefaultLeverage = decimal.NewFromInt(4)

type accountState struct {
	mu      sync.Mutex
	account *models.Account
	orders  map[string]*models.Order
	order   []string // порядок создания ордеров
	fills   []*models.Fill
	trades  []*models.TradeOutcome
}

// Ledger реестр счетов
type Ledger struct {
	mu         sync.RWMutex
	accounts   map[string]*accountState
	orderIndex map[string]string // orderID -> accountID

	journal   Journal
	notifier  Notifier
	recorder  OutcomeRecorder
	executor  OrderExecutor
	fillHooks []FillHook

	logger *utils.Logger
	now    func() time.Time
}

// Option настройка Ledger
type Option func(*Ledger)

// WithJournal подключает журнал (БД)
func WithJournal(j Journal) Option {
	return func(l *Ledger) {
		if j != nil {
			l.journal = j
		}
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New создаёт пустой леджер
func New(logger *utils.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	l := &Ledger{
		accounts:   make(map[string]*accountState),
		orderIndex: make(map[string]string),
		journal:    nopJournal{},
		notifier:   nopNotifier{},
		logger:     logger.WithComponent("ledger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetCallbacks связывает леджер с губернатором, роутером и шиной событий.
// Вызывается один раз при сборке приложения, до начала обработки алертов.
func (l *Ledger) SetCallbacks(recorder OutcomeRecorder, executor OrderExecutor, notifier Notifier) {
	l.recorder = recorder
	l.executor = executor
	if notifier != nil {
		l.notifier = notifier
	}
}

// OnFill регистрирует хук, вызываемый после каждого fill'а
func (l *Ledger) OnFill(hook FillHook) {
	l.fillHooks = append(l.fillHooks, hook)
}

// ============================================================
// Счета
// ============================================================

// CreateAccount регистрирует счёт. Пустой Balance = InitialBalance,
// нулевое плечо = DefaultLeverage.
func (l *Ledger) CreateAccount(ctx context.Context, acc models.Account) (*models.Account, error) {
	if acc.ID == "" {
		return nil, fmt.Errorf("%w: account id is required", models.ErrValidation)
	}

	l.mu.Lock()
	if _, exists := l.accounts[acc.ID]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrAccountExists, acc.ID)
	}
	st := newAccountState(l.initAccount(acc))
	l.accounts[acc.ID] = st
	l.mu.Unlock()

	st.mu.Lock()
	snapshot := st.account.Clone()
	l.persistAccount(ctx, st.account)
	st.mu.Unlock()

	l.logger.Info("account created",
		utils.AccountID(acc.ID),
		utils.String("execution_mode", string(snapshot.ExecutionMode)),
		utils.Money("balance", snapshot.Balance),
	)
	l.notifier.AccountChanged(snapshot)
	return snapshot, nil
}

// EnsureAccount возвращает счёт, создавая его по шаблону при отсутствии
// (paper-счета губернатора создаются автоматически)
func (l *Ledger) EnsureAccount(ctx context.Context, template models.Account) (*models.Account, error) {
	if acc, err := l.GetAccount(template.ID); err == nil {
		return acc, nil
	}
	acc, err := l.CreateAccount(ctx, template)
	if err != nil && l.exists(template.ID) {
		// параллельный вызов успел создать счёт
		return l.GetAccount(template.ID)
	}
	return acc, err
}

func (l *Ledger) initAccount(acc models.Account) *models.Account {
	now := l.now()
	if acc.Balance.IsZero() {
		acc.Balance = acc.InitialBalance
	}
	if acc.Leverage.IsZero() {
		acc.Leverage = DefaultLeverage
	}
	if acc.ExecutionMode == "" {
		acc.ExecutionMode = models.ExecSimulator
	}
	if acc.Environment == "" {
		acc.Environment = models.EnvTest
	}
	if acc.Name == "" {
		acc.Name = acc.ID
	}
	acc.Positions = make(map[string]*models.Position)
	if acc.Funded != nil {
		f := *acc.Funded
		f.PeakEquity = acc.Balance
		f.DayStartEquity = acc.Balance
		f.CurrentDailyPnl = decimal.Zero
		f.CurrentDrawdown = decimal.Zero
		f.DayStart = time.Time{}
		acc.Funded = &f
	}
	acc.CreatedAt = now
	acc.UpdatedAt = now
	recompute(&acc)
	return &acc
}

func newAccountState(acc *models.Account) *accountState {
	return &accountState{
		account: acc,
		orders:  make(map[string]*models.Order),
	}
}

func (l *Ledger) exists(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[id]
	return ok
}

func (l *Ledger) state(id string) (*accountState, error) {
	l.mu.RLock()
	st, ok := l.accounts[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	return st, nil
}

// GetAccount снимок счёта
func (l *Ledger) GetAccount(id string) (*models.Account, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.account.Clone(), nil
}

// ListAccounts снимки всех счетов, отсортированные по ID
func (l *Ledger) ListAccounts() []*models.Account {
	l.mu.RLock()
	states := make([]*accountState, 0, len(l.accounts))
	for _, st := range l.accounts {
		states = append(states, st)
	}
	l.mu.RUnlock()

	out := make([]*models.Account, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.account.Clone())
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Mutate выполняет fn над живым счётом под его lock'ом.
// Используется риск-движком для обновления текущих значений правил.
// fn не должна менять баланс и позиции.
func (l *Ledger) Mutate(ctx context.Context, id string, fn func(acc *models.Account)) (*models.Account, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	fn(st.account)
	st.account.UpdatedAt = l.now()
	l.persistAccount(ctx, st.account)
	snapshot := st.account.Clone()
	st.mu.Unlock()
	return snapshot, nil
}

// Reset возвращает счёт к начальному балансу, удаляя позиции, ордера, fill'ы и сделки.
// Повторный вызов даёт то же состояние. Production-счета сбросить нельзя.
func (l *Ledger) Reset(ctx context.Context, id string) (*models.Account, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.account.Environment == models.EnvProduction {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrResetForbidden, id)
	}

	orderIDs := st.order
	acc := st.account
	acc.Balance = acc.InitialBalance
	acc.RealizedPnl = decimal.Zero
	acc.UnrealizedPnl = decimal.Zero
	acc.Commissions = decimal.Zero
	acc.Positions = make(map[string]*models.Position)
	if acc.Funded != nil {
		acc.Funded.PeakEquity = acc.Balance
		acc.Funded.DayStartEquity = acc.Balance
		acc.Funded.CurrentDailyPnl = decimal.Zero
		acc.Funded.CurrentDrawdown = decimal.Zero
		acc.Funded.DayStart = time.Time{}
	}
	acc.UpdatedAt = l.now()
	recompute(acc)

	st.orders = make(map[string]*models.Order)
	st.order = nil
	st.fills = nil
	st.trades = nil

	if err := l.journal.ResetAccount(ctx, id); err != nil {
		l.logger.Error("journal reset failed", utils.AccountID(id), utils.Err(err))
	}
	l.persistAccount(ctx, acc)
	snapshot := acc.Clone()
	st.mu.Unlock()

	l.mu.Lock()
	for _, oid := range orderIDs {
		delete(l.orderIndex, oid)
	}
	l.mu.Unlock()

	l.logger.Info("account reset", utils.AccountID(id), utils.Money("balance", snapshot.Balance))
	l.notifier.AccountChanged(snapshot)
	return snapshot, nil
}

// MarkToMarket обновляет цены позиций и нереализованный P&L
func (l *Ledger) MarkToMarket(ctx context.Context, id string, prices map[string]decimal.Decimal) (*models.Account, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	changed := false
	for symbol, pos := range st.account.Positions {
		if p, ok := prices[symbol]; ok && !p.Equal(pos.MarkPrice) {
			pos.MarkPrice = p
			changed = true
		}
	}
	if changed {
		st.account.UpdatedAt = l.now()
		recompute(st.account)
	}
	snapshot := st.account.Clone()
	st.mu.Unlock()

	if changed {
		l.notifier.AccountChanged(snapshot)
	}
	return snapshot, nil
}

// ============================================================
// Выборки
// ============================================================

// ListOrders ордера счёта в порядке создания
func (l *Ledger) ListOrders(id string) ([]*models.Order, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*models.Order, 0, len(st.order))
	for _, oid := range st.order {
		o := *st.orders[oid]
		out = append(out, &o)
	}
	return out, nil
}

// ListFills fill'ы счёта в порядке применения
func (l *Ledger) ListFills(id string) ([]*models.Fill, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*models.Fill, len(st.fills))
	for i, f := range st.fills {
		fc := *f
		out[i] = &fc
	}
	return out, nil
}

// ListTrades итоги закрытых сделок счёта
func (l *Ledger) ListTrades(id string) ([]*models.TradeOutcome, error) {
	st, err := l.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*models.TradeOutcome, len(st.trades))
	for i, t := range st.trades {
		tc := *t
		out[i] = &tc
	}
	return out, nil
}

// Metrics агрегаты по закрытым сделкам
func (l *Ledger) Metrics(id string) (*models.Metrics, error) {
	trades, err := l.ListTrades(id)
	if err != nil {
		return nil, err
	}

	pnls := make([]decimal.Decimal, len(trades))
	m := &models.Metrics{AccountID: id, TotalTrades: len(trades)}
	for i, t := range trades {
		pnls[i] = t.Pnl
		if t.Win {
			m.Wins++
		} else {
			m.Losses++
		}
	}
	m.WinRate = utils.WinRate(m.Wins, m.TotalTrades)
	m.ProfitFactor = utils.ProfitFactor(pnls)
	m.TotalPnl = utils.Sum(pnls)
	m.MaxDrawdown = utils.MaxDrawdown(pnls)
	return m, nil
}

// ============================================================
// Восстановление
// ============================================================

// Restore загружает счета и их историю из хранилища.
// Счета, уже зарегистрированные в памяти, перезаписываются.
func (l *Ledger) Restore(ctx context.Context, snap Snapshot) (int, error) {
	accounts, err := snap.LoadAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load accounts: %w", err)
	}

	for _, acc := range accounts {
		if acc.Positions == nil {
			acc.Positions = make(map[string]*models.Position)
		}
		st := newAccountState(acc)

		orders, err := snap.LoadOrders(ctx, acc.ID)
		if err != nil {
			return 0, fmt.Errorf("load orders %s: %w", acc.ID, err)
		}
		for _, o := range orders {
			st.orders[o.ID] = o
			st.order = append(st.order, o.ID)
		}
		if st.fills, err = snap.LoadFills(ctx, acc.ID); err != nil {
			return 0, fmt.Errorf("load fills %s: %w", acc.ID, err)
		}
		if st.trades, err = snap.LoadTrades(ctx, acc.ID); err != nil {
			return 0, fmt.Errorf("load trades %s: %w", acc.ID, err)
		}
		recompute(acc)

		l.mu.Lock()
		l.accounts[acc.ID] = st
		for _, oid := range st.order {
			l.orderIndex[oid] = acc.ID
		}
		l.mu.Unlock()
	}

	l.logger.Info("ledger restored", utils.Int("accounts", len(accounts)))
	return len(accounts), nil
}

// ============================================================
// Вспомогательные функции
// ============================================================

// recompute пересчитывает нереализованный P&L и buying power. Под lock'ом счёта.
func recompute(acc *models.Account) {
	unrealized := decimal.Zero
	exposure := decimal.Zero
	for _, pos := range acc.Positions {
		mult := market.Multiplier(pos.Symbol)
		qty := decimal.NewFromInt(int64(pos.Quantity))
		if !pos.MarkPrice.IsZero() {
			pos.UnrealizedPnl = pos.MarkPrice.Sub(pos.AvgEntryPrice).Mul(qty).Mul(mult)
		} else {
			pos.UnrealizedPnl = decimal.Zero
		}
		unrealized = unrealized.Add(pos.UnrealizedPnl)
		exposure = exposure.Add(qty.Abs().Mul(pos.AvgEntryPrice).Mul(mult))
	}
	acc.UnrealizedPnl = unrealized
	acc.BuyingPower = acc.Balance.Mul(acc.Leverage).Sub(exposure)
}

// CapitalCheck капитал, необходимый для исполнения signedQty по price,
// и доступный buying power с учётом экспозиции, которую освободит закрываемая часть.
// Закрытие позиции капитала не требует.
func CapitalCheck(acc *models.Account, symbol string, signedQty int, price decimal.Decimal) (required, available decimal.Decimal) {
	mult := market.Multiplier(symbol)
	available = acc.BuyingPower
	current := 0
	var pos *models.Position
	if pos = acc.Positions[symbol]; pos != nil {
		current = pos.Quantity
	}

	closeQty := 0
	if current != 0 && utils.SignInt(current) != utils.SignInt(signedQty) {
		closeQty = utils.MinInt(utils.AbsInt(signedQty), utils.AbsInt(current))
	}
	openQty := utils.AbsInt(signedQty) - closeQty
	if closeQty > 0 {
		available = available.Add(pos.AvgEntryPrice.Mul(decimal.NewFromInt(int64(closeQty))).Mul(mult))
	}
	required = price.Mul(decimal.NewFromInt(int64(openQty))).Mul(mult)
	return required, available
}

// EnforcesBuyingPower счета симулятора и hybrid проверяют buying power на стороне леджера;
// sandbox-счета полагаются на проверки брокера
func EnforcesBuyingPower(acc *models.Account) bool {
	return acc.ExecutionMode != models.ExecSandbox
}

func (l *Ledger) persistAccount(ctx context.Context, acc *models.Account) {
	if err := l.journal.SaveAccount(ctx, acc); err != nil {
		l.logger.Error("journal save account failed", utils.AccountID(acc.ID), utils.Err(err))
	}
}

func (l *Ledger) persistOrder(ctx context.Context, o *models.Order) {
	if err := l.journal.SaveOrder(ctx, o); err != nil {
		l.logger.Error("journal save order failed", utils.OrderID(o.ID), utils.Err(err))
	}
}
