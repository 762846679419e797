package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
)

// Handler processes one record from topic and returns an error to have the
// record retried (offset not committed) rather than skipped.
type Handler func(ctx context.Context, topic string, key, value []byte) error

// Consumer polls a consumer group and commits offsets only after Handler
// returns successfully, giving at-least-once delivery to callers. The saga
// coordinator and worker pools rely on idempotent handling (see
// saga.ApplyTaskCompleted's idempotence property) to make redelivery safe.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer constructs a Consumer subscribed to topics under groupID,
// ensuring each topic exists first.
func NewConsumer(brokers []string, groupID string, topics ...string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=kafka.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=kafka.NewConsumer: missing group id")
	}

	setupClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("op=kafka.NewConsumer.setup: %w", err)
	}
	ctx := context.Background()
	for _, topic := range topics {
		if err := createTopicIfNotExists(ctx, setupClient, topic, DefaultPartitions, 1); err != nil {
			slog.Warn("kafka topic ensure failed, assuming it already exists", slog.String("topic", topic), slog.Any("error", err))
		}
	}
	setupClient.Close()

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.DisableAutoCommit(),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.NewConsumer: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Run polls for records until ctx is cancelled, invoking handle for each and
// committing its offset only on success.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("kafka fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			if err := handle(ctx, rec.Topic, rec.Key, rec.Value); err != nil {
				slog.Error("kafka record handling failed, offset not committed",
					slog.String("topic", rec.Topic), slog.Int64("offset", rec.Offset), slog.Any("error", err))
				return
			}
			if err := c.client.CommitRecords(ctx, rec); err != nil {
				slog.Error("kafka commit failed", slog.String("topic", rec.Topic), slog.Int64("offset", rec.Offset), slog.Any("error", err))
			}
		})
	}
}

// Close releases the underlying Kafka client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
