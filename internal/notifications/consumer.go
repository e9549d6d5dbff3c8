package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/kafka"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
)

// ConsumerName scopes idempotency claims for this consumer.
const ConsumerName = "notifications"

type deliverySource interface {
	Run(ctx context.Context, handler kafka.Handler) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type idempotencyGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// ConsumerParams bundles the dispatcher dependencies.
type ConsumerParams struct {
	Source      deliverySource
	Decoders    payloadDecoder
	Idempotency idempotencyGuard
	Sender      Sender
	Logger      *logger.Logger
}

// Consumer turns domain events from Kafka into notifications.
type Consumer struct {
	source      deliverySource
	decoders    payloadDecoder
	idempotency idempotencyGuard
	sender      Sender
	logg        *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("kafka consumer required")
	}
	if params.Decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		source:      params.Source,
		decoders:    params.Decoders,
		idempotency: params.Idempotency,
		sender:      params.Sender,
		logg:        params.Logger,
	}, nil
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.source.Run(ctx, c.Handle)
}

// Handle processes one delivery. Malformed events are logged and dropped;
// only failures worth retrying are returned.
func (c *Consumer) Handle(ctx context.Context, d kafka.Delivery) error {
	eventType := enums.OutboxEventType(d.Headers[kafka.HeaderEventType])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_type": eventType,
		"partition":  d.Partition,
		"offset":     d.Offset,
	})

	envelope, err := outbox.OpenEnvelope(d.Value)
	if err != nil {
		c.logg.Error(logCtx, "notification.envelope.invalid", err)
		return nil
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		c.logg.Error(logCtx, "notification.event_id.invalid", err)
		return nil
	}
	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "notification.payload.invalid", err)
		return nil
	}
	note, err := Build(payload)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notification.skipped")
		return nil
	}
	if note.Recipient == "" {
		c.logg.Warn(logCtx, "notification.recipient.missing")
		return nil
	}

	first, err := c.idempotency.Claim(ctx, envelope.EventID)
	if err != nil {
		return fmt.Errorf("idempotency claim: %w", err)
	}
	if !first {
		c.logg.Info(logCtx, "notification.duplicate")
		return nil
	}

	if err := c.sender.Send(logCtx, *note); err != nil {
		if delErr := c.idempotency.Release(ctx, envelope.EventID); delErr != nil {
			c.logg.Error(logCtx, "notification.idempotency.reset_failed", delErr)
		}
		return fmt.Errorf("send %s notification: %w", note.Type, err)
	}
	return nil
}
