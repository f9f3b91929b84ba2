// Package kafka publishes transaction events for downstream consumers
// (receipts, analytics). Publishing never decides the outcome of a sale.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/NavanKen/Eventify/internal/domain"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer connects to brokers. With no brokers the producer runs in
// log-only mode, which is what local development uses.
func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(brokers) == 0 {
		logger.Info("kafka disabled, transaction events are logged only", "topic", topic)
		return &Producer{topic: topic, logger: logger}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	logger.Info("kafka producer connected", "brokers", brokers, "topic", topic)
	return NewProducerWithClient(producer, topic, logger), nil
}

func NewProducerWithClient(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{producer: producer, topic: topic, logger: logger}
}

// PublishTransactionEvent sends evt keyed by transaction id, so every event
// of one transaction lands on the same partition in order.
func (p *Producer) PublishTransactionEvent(ctx context.Context, evt domain.TransactionEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	if p.producer == nil {
		p.logger.Debug("transaction event", "topic", p.topic, "type", evt.Type, "payload", string(data))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.TransactionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(evt.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", evt.Type, err)
	}
	p.logger.Debug("transaction event published",
		"topic", p.topic,
		"type", evt.Type,
		"transaction_id", evt.TransactionID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
