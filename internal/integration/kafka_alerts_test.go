//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/typhoon-info-service/internal/adapter/kafka"
	"github.com/couchcryptid/typhoon-info-service/internal/domain"
)

const testAlertTopic = "test-impact-alerts"

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startKafka launches a single-broker Kafka container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial kafka broker")
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestAlertPublishRoundTrip publishes an impact alert through the adapter
// and verifies key, headers, and payload on the wire.
func TestAlertPublishRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	publisher := kafkaadapter.NewPublisher([]string{broker}, testAlertTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	start := time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	alert := domain.ImpactAlert{
		ID:            "it-alert-1",
		StormSeq:      2609,
		StormName:     "망온",
		LocationLabel: "부산",
		Window: domain.ImpactWindow{
			Start:      start,
			End:        start.Add(9 * time.Hour),
			Confidence: domain.ConfidenceFine,
			Closest: domain.ClosestApproach{
				Time:       start.Add(4 * time.Hour),
				DistanceKm: 12.5,
			},
		},
		IssuedAt: start.Add(-2 * time.Hour),
	}
	require.NoError(t, publisher.PublishImpactAlert(ctx, alert))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	assert.Equal(t, "it-alert-1", string(msg.Key))

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "2609", headers["storm_seq"])
	issuedAt, err := time.Parse(time.RFC3339, headers["issued_at"])
	require.NoError(t, err, "issued_at should be valid RFC3339")
	assert.True(t, issuedAt.Equal(alert.IssuedAt))

	var decoded domain.ImpactAlert
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, alert.StormSeq, decoded.StormSeq)
	assert.Equal(t, alert.StormName, decoded.StormName)
	assert.Equal(t, alert.LocationLabel, decoded.LocationLabel)
	assert.True(t, decoded.Window.Start.Equal(alert.Window.Start))
	assert.True(t, decoded.Window.Closest.Time.Equal(alert.Window.Closest.Time))
	assert.Equal(t, alert.Window.Closest.DistanceKm, decoded.Window.Closest.DistanceKm)
}
