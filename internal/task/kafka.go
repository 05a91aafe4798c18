package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// TaskEvent описывает переход задачи между статусами
type TaskEvent struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	ActorID   string    `json:"actor_id"`
	Action    Action    `json:"action"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	FilePath  string    `json:"file_path,omitempty"`
	Assignees []string  `json:"assignees"`
	Timestamp time.Time `json:"timestamp"`
}

type KafkaProducer interface {
	SendTaskEvent(ctx context.Context, event TaskEvent) error
	Close() error
}

type kafkaProducer struct {
	writer  *kafka.Writer
	breaker *gobreaker.CircuitBreaker
}

func NewKafkaProducer(brokers []string, topic string, logger logrus.FieldLogger) KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "TaskEventsCB",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})

	return &kafkaProducer{writer: writer, breaker: breaker}
}

// SendTaskEvent отправляет событие задачи в Kafka; ключ сообщения - id задачи,
// поэтому события одной задачи попадают в одну партицию по порядку.
func (p *kafkaProducer) SendTaskEvent(ctx context.Context, event TaskEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(event.TaskID),
		Value: eventJSON,
		Time:  event.Timestamp,
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, message)
	})
	return err
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}
