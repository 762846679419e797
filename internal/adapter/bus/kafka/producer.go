package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/netreach/lookupd/internal/domain"
)

// Producer implements domain.Bus with a transactional franz-go client, so a
// publish either lands exactly once or not at all.
type Producer struct {
	client *kgo.Client
	txLock chan struct{}
}

// NewProducer constructs a Producer with a fixed transactional id, ensuring
// the well-known topics exist before returning.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=kafka.NewProducer: no seed brokers provided")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID("lookupd-producer"),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.NewProducer: %w", err)
	}

	ctx := context.Background()
	for _, topic := range []string{TopicJobSubmitted, TopicTaskCompleted} {
		if err := createTopicIfNotExists(ctx, client, topic, DefaultPartitions, 1); err != nil {
			slog.Warn("kafka topic ensure failed, assuming it already exists", slog.String("topic", topic), slog.Any("error", err))
		}
	}
	for _, kind := range domain.AllServiceKinds {
		topic := CommandTopic(kind)
		if err := createTopicIfNotExists(ctx, client, topic, DefaultPartitions, 1); err != nil {
			slog.Warn("kafka topic ensure failed, assuming it already exists", slog.String("topic", topic), slog.Any("error", err))
		}
	}

	return &Producer{client: client, txLock: make(chan struct{}, 1)}, nil
}

func (p *Producer) publish(ctx context.Context, record *kgo.Record) error {
	select {
	case p.txLock <- struct{}{}:
		defer func() { <-p.txLock }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("op=kafka.publish.begin_tx: %w", err)
	}

	promise := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, promise.Promise())
	if err := promise.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("kafka transaction abort failed", slog.Any("error", abortErr))
		}
		return fmt.Errorf("op=kafka.publish.produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("op=kafka.publish.commit_tx: %w", err)
	}
	return nil
}

// PublishJobSubmitted publishes a job-submitted event keyed by job id so
// that all events for one job land on the same partition and are seen in
// order by the saga coordinator.
func (p *Producer) PublishJobSubmitted(ctx domain.Context, e domain.JobSubmitted) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("op=kafka.PublishJobSubmitted.marshal: %w", err)
	}
	return p.publish(ctx, &kgo.Record{Topic: TopicJobSubmitted, Key: []byte(e.JobID), Value: b})
}

// PublishTaskCompleted publishes a task-completed event keyed by job id.
func (p *Producer) PublishTaskCompleted(ctx domain.Context, e domain.TaskCompleted) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("op=kafka.PublishTaskCompleted.marshal: %w", err)
	}
	return p.publish(ctx, &kgo.Record{Topic: TopicTaskCompleted, Key: []byte(e.JobID), Value: b})
}

// PublishCommand publishes a per-service command to its worker pool's topic.
func (p *Producer) PublishCommand(ctx domain.Context, c domain.Command) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("op=kafka.PublishCommand.marshal: %w", err)
	}
	return p.publish(ctx, &kgo.Record{Topic: CommandTopic(c.Kind), Key: []byte(c.JobID), Value: b})
}

// Close releases the underlying Kafka client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
