package repository

import (
	"context"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

// Producer is the publishing side of pkg/kafka.Producer.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaResultPublisher implements ResultPublisher for Kafka. Results are keyed
// by ticker so one ticker's events stay ordered within a partition.
type KafkaResultPublisher struct {
	producer Producer
	topic    string
}

// NewKafkaResultPublisher creates Kafka publisher. The producer is shared and
// closed by its owner.
func NewKafkaResultPublisher(producer Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.AnalysisResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Ticker), r)
}

func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	if len(rs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(r.Ticker), Value: r})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaResultPublisher) Close() error { return nil }

var _ repository.ResultPublisher = (*KafkaResultPublisher)(nil)
