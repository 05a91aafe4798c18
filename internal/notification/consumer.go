package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Consumer читает сообщения из Kafka
type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type kafkaConsumer struct {
	reader     messageReader
	handler    EventHandler
	logger     logrus.FieldLogger
	retryDelay time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler EventHandler, logger logrus.FieldLogger) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	return &kafkaConsumer{
		reader:     reader,
		handler:    handler,
		logger:     logger.WithFields(logrus.Fields{"topic": topic, "group": groupID}),
		retryDelay: time.Second,
	}
}

// Start читает сообщения в цикле до отмены контекста. Битые сообщения и
// ошибки обработчика логируются и пропускаются.
func (c *kafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("kafka consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka consumer stopped")
				return nil
			}
			c.logger.WithError(err).Warn("read message failed")
			select {
			case <-ctx.Done():
				c.logger.Info("kafka consumer stopped")
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		var event task.TaskEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.WithError(err).WithField("offset", msg.Offset).Warn("malformed task event")
			continue
		}

		if err := c.handler.HandleEvent(ctx, event); err != nil {
			c.logger.WithError(err).WithField("task_id", event.TaskID).Error("handle event failed")
		}
	}
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
