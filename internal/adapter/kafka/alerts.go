// Package kafka publishes impact alerts to a Kafka topic for downstream
// notification consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
)

// Publisher writes impact alerts to one topic. Safe for concurrent use.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		},
		logger: logger,
	}
}

// PublishImpactAlert serializes and writes one alert.
func (p *Publisher) PublishImpactAlert(ctx context.Context, alert domain.ImpactAlert) error {
	msg, err := serializeAlert(alert)
	if err != nil {
		return fmt.Errorf("serialize impact alert: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write impact alert: %w", err)
	}
	p.logger.Debug("impact alert published",
		"alert_id", string(msg.Key),
		"storm_seq", alert.StormSeq,
		"location", alert.LocationLabel,
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeAlert(alert domain.ImpactAlert) (kafkago.Message, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	value, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal alert %s: %w", alert.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(alert.ID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "storm_seq", Value: []byte(strconv.Itoa(alert.StormSeq))},
			{Key: "issued_at", Value: []byte(alert.IssuedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
