package kafka

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"tradecore/internal/events"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// MessageWriter часть *kafka.Writer, которой пользуется продюсер
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig настройки публикации событий
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BufferSize   int
	BatchSize    int
	WriteTimeout time.Duration
}

// EventProducer sink шины событий: копит события в буфере и пишет их
// в топик пачками из отдельной горутины. Ключ сообщения счёт или стратегия,
// так события одного счёта попадают в одну партицию по порядку.
type EventProducer struct {
	writer  MessageWriter
	queue   chan models.Event
	batch   int
	timeout time.Duration
	logger  *utils.Logger
}

var _ events.Sink = (*EventProducer)(nil)

// NewEventProducer продюсер поверх kafka.Writer
func NewEventProducer(cfg ProducerConfig, logger *utils.Logger) *EventProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 200 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		},
	}
	return newEventProducer(w, cfg, logger)
}

func newEventProducer(w MessageWriter, cfg ProducerConfig, logger *utils.Logger) *EventProducer {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &EventProducer{
		writer:  w,
		queue:   make(chan models.Event, cfg.BufferSize),
		batch:   cfg.BatchSize,
		timeout: cfg.WriteTimeout,
		logger:  logger.WithComponent("kafka_events"),
	}
}

// Name events.Sink
func (p *EventProducer) Name() string { return "kafka" }

// Publish events.Sink: кладёт событие в буфер без блокировки
func (p *EventProducer) Publish(ev models.Event) error {
	select {
	case p.queue <- ev:
		return nil
	default:
		return events.ErrSinkFull
	}
}

// Run пишет события до отмены контекста, затем дописывает остаток буфера
func (p *EventProducer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case ev := <-p.queue:
			p.write(p.collect(ev))
		}
	}
}

// collect добирает в пачку то, что уже лежит в буфере
func (p *EventProducer) collect(first models.Event) []models.Event {
	batch := []models.Event{first}
	for len(batch) < p.batch {
		select {
		case ev := <-p.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (p *EventProducer) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.write(p.collect(ev))
		default:
			return
		}
	}
}

func (p *EventProducer) write(batch []models.Event) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("encode event", utils.Int64("seq", int64(ev.Seq)), utils.Err(err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(eventKey(ev)),
			Value: value,
			Time:  ev.Timestamp,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
				{Key: "seq", Value: []byte(strconv.FormatUint(ev.Seq, 10))},
			},
		})
	}
	if len(msgs) == 0 {
		return
	}

	// контекст Run уже может быть отменён, остаток пишем со своим таймаутом
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("write events", utils.Int("count", len(msgs)), utils.Err(err))
	}
}

// Close закрывает writer; вызывается после возврата из Run
func (p *EventProducer) Close() error {
	return p.writer.Close()
}

func eventKey(ev models.Event) string {
	if ev.AccountID != "" {
		return ev.AccountID
	}
	return ev.StrategyID
}
