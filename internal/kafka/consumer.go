package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// RecomputeTrigger starts a signal recomputation in the background
type RecomputeTrigger interface {
	Trigger(ctx context.Context, name string) bool
}

// messageReader is the subset of *kafka.Reader the consumer needs
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer listens for closed daily bars and kicks off a recompute.
// Bars for symbols outside the watchlist are ignored.
type Consumer struct {
	reader  messageReader
	trigger RecomputeTrigger
	job     string
	symbols map[string]struct{}
	log     zerolog.Logger
}

// NewConsumer creates a new Kafka consumer for bar events
func NewConsumer(brokers []string, topic, groupID string, trigger RecomputeTrigger, job string, symbols []string, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, trigger, job, symbols, log.With().Str("topic", topic).Logger())
}

func newConsumer(reader messageReader, trigger RecomputeTrigger, job string, symbols []string, log zerolog.Logger) *Consumer {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return &Consumer{
		reader:  reader,
		trigger: trigger,
		job:     job,
		symbols: set,
		log:     log.With().Str("component", "kafka_consumer").Logger(),
	}
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.BarEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal bar event: %w", err)
	}

	if event.EventType != models.EventDailyBarClosed {
		c.log.Debug().Str("event_type", event.EventType).Msg("Ignoring event type")
		return nil
	}

	symbol := strings.ToUpper(strings.TrimSpace(event.Symbol))
	if symbol == "" {
		return fmt.Errorf("bar event without symbol at offset %d", msg.Offset)
	}
	if len(c.symbols) > 0 {
		if _, ok := c.symbols[symbol]; !ok {
			c.log.Debug().Str("symbol", symbol).Msg("Symbol not on watchlist, ignoring")
			return nil
		}
	}

	if c.trigger.Trigger(ctx, c.job) {
		c.log.Info().Str("symbol", symbol).Str("trading_day", event.TradingDay).Msg("Daily bar closed, recompute started")
	} else {
		c.log.Debug().Str("symbol", symbol).Msg("Recompute already running")
	}
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
