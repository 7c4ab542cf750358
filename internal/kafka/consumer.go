package kafka

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AlertSubmitter принимает нормализованный алерт (service.TradingService)
type AlertSubmitter interface {
	SubmitAlert(ctx context.Context, alert models.Alert) *models.ExecutionResult
}

// MessageReader часть *kafka.Reader, которой пользуется консьюмер
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig настройки чтения алертов
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// AlertConsumer читает алерты из топика и отправляет их в роутер.
// Offset коммитится после обработки, в том числе для битых сообщений:
// повторное чтение не сделает их корректными.
type AlertConsumer struct {
	reader MessageReader
	submit AlertSubmitter
	logger *utils.Logger
}

// NewAlertConsumer консьюмер поверх kafka.Reader
func NewAlertConsumer(cfg ConsumerConfig, submit AlertSubmitter, logger *utils.Logger) *AlertConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newAlertConsumer(reader, submit, logger)
}

func newAlertConsumer(reader MessageReader, submit AlertSubmitter, logger *utils.Logger) *AlertConsumer {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &AlertConsumer{reader: reader, submit: submit, logger: logger.WithComponent("kafka_alerts")}
}

// Run читает до отмены контекста. Отмена не считается ошибкой.
func (c *AlertConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("commit alert offset", utils.Int64("offset", msg.Offset), utils.Err(err))
		}
	}
}

func (c *AlertConsumer) handle(ctx context.Context, msg kafka.Message) {
	var alert models.Alert
	if err := json.Unmarshal(msg.Value, &alert); err != nil {
		c.logger.Warn("bad alert message",
			utils.Int64("offset", msg.Offset),
			utils.Int("partition", msg.Partition),
			utils.Err(err),
		)
		return
	}
	if alert.ReceivedAt.IsZero() && !msg.Time.IsZero() {
		alert.ReceivedAt = msg.Time.UTC()
	}

	result := c.submit.SubmitAlert(ctx, alert)
	if result == nil {
		return
	}
	if result.Succeeded() {
		c.logger.Debug("alert routed",
			utils.StrategyID(alert.StrategyID),
			utils.Symbol(alert.Symbol),
			utils.AccountID(result.AccountID),
		)
		return
	}
	c.logger.Warn("alert not executed",
		utils.StrategyID(alert.StrategyID),
		utils.Symbol(alert.Symbol),
		utils.String("kind", string(result.Kind)),
		utils.String("reason", result.Reason),
	)
}
