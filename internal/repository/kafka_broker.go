package repository

import (
	"context"

	"SignalFlow/internal/domain/repository"
	"SignalFlow/pkg/kafka"
)

// KafkaBroker adapts the Kafka producer to repository.Broker.
type KafkaBroker struct {
	producer *kafka.Producer
}

func NewKafkaBroker(p *kafka.Producer) repository.Broker {
	return &KafkaBroker{producer: p}
}

// Publish returns only after the broker acknowledged the write.
func (b *KafkaBroker) Publish(ctx context.Context, topic string, key, payload []byte, headers map[string]string) error {
	return b.producer.Publish(ctx, topic, kafka.Message{
		Key:     key,
		Value:   payload,
		Headers: headers,
	})
}

func (b *KafkaBroker) Close() error {
	return b.producer.Close()
}
