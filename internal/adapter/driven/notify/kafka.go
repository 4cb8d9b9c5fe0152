package notify

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*KafkaEmitter)(nil)

// producer is the subset of *kgo.Client used by KafkaEmitter.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaEmitter publishes notifications to a Kafka topic, keyed by user id so
// one user's notifications stay ordered within a partition.
type KafkaEmitter struct {
	client producer
	topic  string
}

// NewKafkaEmitter connects a franz-go client to brokers.
func NewKafkaEmitter(brokers []string, topic string) (*KafkaEmitter, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return newKafkaEmitter(client, topic), nil
}

func newKafkaEmitter(client producer, topic string) *KafkaEmitter {
	return &KafkaEmitter{client: client, topic: topic}
}

// Notify publishes n and waits for the broker acknowledgement.
func (e *KafkaEmitter) Notify(ctx context.Context, n model.Notification) error {
	value, err := encode(n)
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: e.topic,
		Key:   []byte(n.UserID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(n.Category)},
			{Key: "notification-id", Value: []byte(n.ID)},
		},
	}

	if err := e.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publishing notification %s to %s: %w", n.ID, e.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (e *KafkaEmitter) Close() {
	e.client.Close()
}
