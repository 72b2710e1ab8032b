// internal/alerting/kafka.go
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes one message per alert, keyed by quantity so a quantity's
// alerts stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaNotifier{writer: w, topic: topic, logger: logger}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Notify(ctx context.Context, alerts []data.Alert) error {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode alert %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.Quantity),
			Value: value,
			Time:  a.Timestamp,
			Headers: []kafka.Header{
				{Key: "severity", Value: []byte(a.Severity)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write to %s: %w", k.topic, err)
	}
	k.logger.Debug("Published alerts", zap.String("topic", k.topic), zap.Int("count", len(msgs)))
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
