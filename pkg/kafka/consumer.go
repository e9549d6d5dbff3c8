package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const (
	defaultHandlerAttempts = 3
	defaultRetryDelay      = 500 * time.Millisecond
)

// Delivery is one fetched record.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
}

// Handler processes a delivery. Returning an error triggers a bounded retry.
type Handler func(ctx context.Context, d Delivery) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group and commits after handling.
type Consumer struct {
	reader     messageReader
	logg       *logger.Logger
	attempts   int
	retryDelay time.Duration
}

// NewConsumer joins cfg.GroupID on topic.
func NewConsumer(cfg config.KafkaConfig, topic string, logg *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka group id is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return newConsumer(reader, logg), nil
}

func newConsumer(reader messageReader, logg *logger.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		logg:       logg,
		attempts:   defaultHandlerAttempts,
		retryDelay: defaultRetryDelay,
	}
}

// Run fetches until ctx is canceled. A message is committed once the handler
// succeeds or its retries are exhausted, so delivery is at-least-once.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("kafka handler is required")
	}
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: fetch: %w", err)
		}

		delivery := toDelivery(msg)
		if err := c.handle(ctx, handler, delivery); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logError(ctx, delivery, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: commit: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, d Delivery) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = handler(ctx, d); err == nil {
			return nil
		}
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return err
}

func (c *Consumer) logError(ctx context.Context, d Delivery, err error) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"topic":      d.Topic,
		"partition":  d.Partition,
		"offset":     d.Offset,
		"event_type": d.Headers[HeaderEventType],
	})
	c.logg.Error(logCtx, "kafka.handler.exhausted", err)
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func toDelivery(msg kafka.Message) Delivery {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Delivery{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
	}
}
