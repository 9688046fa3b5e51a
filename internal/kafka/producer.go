package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// messageWriter is the subset of *kafka.Writer the producer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes batch audit events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		log:    log.With().Str("component", "kafka_producer").Str("topic", topic).Logger(),
	}
}

// PublishBatchEvent publishes a published or rejected batch, keyed by trading day
func (p *Producer) PublishBatchEvent(ctx context.Context, event models.BatchEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.publish(ctx, event.TradingDay, event); err != nil {
		return err
	}
	p.log.Debug().
		Str("event_type", event.EventType).
		Str("batch_id", event.BatchID).
		Str("recommendation", event.Recommendation).
		Msg("Published batch event")
	return nil
}

func (p *Producer) publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
