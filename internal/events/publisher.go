package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	SubjectGuardianshipCreated         = "sponsorship.guardianship.created"
	SubjectGuardianshipActivated       = "sponsorship.guardianship.activated"
	SubjectGuardianshipPaymentRequired = "sponsorship.guardianship.payment_required"
	SubjectGuardianshipCompleted       = "sponsorship.guardianship.completed"

	SubjectSubscriptionCreated  = "sponsorship.subscription.created"
	SubjectSubscriptionPaused   = "sponsorship.subscription.paused"
	SubjectSubscriptionResumed  = "sponsorship.subscription.resumed"
	SubjectSubscriptionCanceled = "sponsorship.subscription.canceled"

	SubjectDonationRecorded = "sponsorship.donation.recorded"
)

type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(conn *nats.Conn) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}

	return &Publisher{conn: conn}, nil
}

func (p *Publisher) PublishJSON(_ context.Context, subject string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return nil
}

// Nop drops every event. Used by the CLI where no broker is configured.
type Nop struct{}

func (Nop) PublishJSON(context.Context, string, any) error {
	return nil
}
