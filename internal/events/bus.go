package events

import (
	"errors"
	"sync"
	"time"

	"tradecore/internal/governor"
	"tradecore/internal/ledger"
	"tradecore/internal/metrics"
	"tradecore/internal/models"
	"tradecore/internal/risk"
	"tradecore/pkg/utils"
)

// ErrSinkFull sink не принял событие без блокировки
var ErrSinkFull = errors.New("event sink is full")

// Sink получатель событий. Publish не должен блокироваться: шина держит
// свою блокировку на время доставки, чтобы порядок Seq совпадал у всех получателей.
type Sink interface {
	Name() string
	Publish(ev models.Event) error
}

// StrategyTransitionPayload полезная нагрузка strategyTransition
type StrategyTransitionPayload struct {
	Transition models.TransitionEvent       `json:"transition"`
	Strategy   *models.StrategyPerformance `json:"strategy"`
}

// Bus шина push-уведомлений
//
// Проставляет монотонный Seq и время, раздаёт событие всем sink'ам
// и хранит последние события для догрузки после переподключения клиента.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	last    time.Time
	sinks   []Sink
	history []models.Event
	limit   int
	logger  *utils.Logger
	now     func() time.Time
}

var (
	_ ledger.Notifier    = (*Bus)(nil)
	_ governor.Publisher = (*Bus)(nil)
	_ risk.Notifier      = (*Bus)(nil)
)

// DefaultHistory сколько последних событий хранится для Since
const DefaultHistory = 1024

// NewBus создаёт шину; history <= 0 отключает буфер истории
func NewBus(history int, logger *utils.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Bus{
		sinks:  sinks,
		limit:  history,
		logger: logger.WithComponent("events"),
		now:    time.Now,
	}
}

// AddSink подключает получателя. Событий, опубликованных раньше, он не получит.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish штампует событие (Seq и время шины) и раздаёт его; возвращает присвоенный Seq
func (b *Bus) Publish(ev models.Event) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev.Seq = b.seq
	// время не убывает вместе с Seq, даже если часы сдвинулись назад
	ev.Timestamp = b.now()
	if ev.Timestamp.Before(b.last) {
		ev.Timestamp = b.last
	}
	b.last = ev.Timestamp

	if b.limit > 0 {
		if len(b.history) >= b.limit {
			copy(b.history, b.history[1:])
			b.history = b.history[:len(b.history)-1]
		}
		b.history = append(b.history, ev)
	}

	metrics.RecordEvent(string(ev.Type))
	for _, s := range b.sinks {
		if err := s.Publish(ev); err != nil {
			metrics.RecordEventDropped(s.Name())
			b.logger.Warn("event dropped",
				utils.String("sink", s.Name()),
				utils.String("type", string(ev.Type)),
				utils.Int64("seq", int64(ev.Seq)),
				utils.Err(err),
			)
		}
	}
	return ev.Seq
}

// Since события с Seq > seq из буфера истории, по возрастанию Seq.
// complete=false значит, что часть событий уже вытеснена и клиенту нужен полный снапшот.
func (b *Bus) Since(seq uint64) (out []models.Event, complete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq >= b.seq {
		return nil, true
	}
	complete = len(b.history) > 0 && b.history[0].Seq <= seq+1
	for _, ev := range b.history {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, complete
}

// LastSeq последний выданный номер
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// ============================================================
// Адаптеры для компонентов ядра
// ============================================================

// AccountChanged ledger.Notifier
func (b *Bus) AccountChanged(acc *models.Account) {
	if acc == nil {
		return
	}
	b.Publish(models.Event{Type: models.EventAccountUpdate, AccountID: acc.ID, Payload: acc})
}

// OrderChanged ledger.Notifier
func (b *Bus) OrderChanged(order *models.Order) {
	if order == nil {
		return
	}
	b.Publish(models.Event{
		Type:       models.EventOrderUpdate,
		AccountID:  order.AccountID,
		StrategyID: order.StrategyID,
		Payload:    order,
	})
}

// StrategyTransitioned governor.Publisher
func (b *Bus) StrategyTransitioned(p *models.StrategyPerformance, ev models.TransitionEvent) {
	b.Publish(models.Event{
		Type:       models.EventStrategyTransition,
		StrategyID: ev.StrategyID,
		Payload:    StrategyTransitionPayload{Transition: ev, Strategy: p},
	})
}

// ViolationChanged risk.Notifier
func (b *Bus) ViolationChanged(v *models.RuleViolation) {
	if v == nil {
		return
	}
	b.Publish(models.Event{Type: models.EventRiskViolation, AccountID: v.AccountID, Payload: v})
}
