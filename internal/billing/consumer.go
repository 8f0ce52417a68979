package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/internal/config"
)

const (
	groupName          = "charges"
	maxPendingMessages = 1000
)

type EventHandler interface {
	Handle(ctx context.Context, ev ChargeEvent) error
}

// Consumer processes charge events published on nats by other payment integrations.
type Consumer struct {
	conn    *nats.Conn
	subject string
	handler EventHandler
	sub     *nats.Subscription
}

func NewConsumer(nc *nats.Conn, subject string, h EventHandler) (*Consumer, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}

	return &Consumer{
		conn:    nc,
		subject: subject,
		handler: h,
	}, nil
}

func (c *Consumer) handle(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var ev ChargeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("decode charge event")
			return
		}
		ev.Payload = msg.Data

		if err := c.handler.Handle(ctx, ev); err != nil {
			log.Error().
				Err(err).
				Str("event", ev.ID).
				Str("type", string(ev.Type)).
				Msg("process charge event")
		}
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	group := config.GenerateGroupName(groupName)
	sub, err := c.conn.QueueSubscribe(c.subject, group, c.handle(context.WithoutCancel(ctx)))
	if err != nil {
		return fmt.Errorf("consume for %s/%s: %w", group, c.subject, err)
	}

	if err := sub.SetPendingLimits(maxPendingMessages, -1); err != nil {
		return fmt.Errorf("set pending limits: %w", err)
	}

	c.sub = sub

	log.Info().Str("subject", c.subject).Msg("charge consumer is started")

	<-ctx.Done()

	return c.stop()
}

func (c *Consumer) stop() error {
	if c.sub == nil {
		return nil
	}

	if err := c.sub.Drain(); err != nil {
		log.Error().Err(err).Msg("drain charge consumer")
	}

	return nil
}
