package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/shelter-labs/sponsorship-storage/internal/billing"
)

const testSecret = "whsec_test"

func sign(payload string) (string, []byte) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	return signed.Header, signed.Payload
}

func TestUnitVerifyInvoicePaid(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	header, payload := sign(`{"id":"evt_1","object":"event","created":1709294400,"type":"invoice.paid","data":{"object":{
		"id":"in_1","currency":"eur","amount_paid":1250,"amount_due":1250,
		"status_transitions":{"paid_at":1709298000},
		"parent":{"subscription_details":{"subscription":"sub_1","metadata":{"scope_type":"guardianship"}}}
	}}}`)

	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	require.Equal(t, billing.EventChargeSucceeded, ev.Type)
	require.Equal(t, "evt_1", ev.ID)
	require.Equal(t, "in_1", ev.TransactionID)
	require.Equal(t, "sub_1", ev.SubscriptionID)
	require.Equal(t, "12.5", ev.Amount.String())
	require.Equal(t, "EUR", ev.Currency)
	require.Equal(t, time.Unix(1709298000, 0).UTC(), ev.OccurredAt)
	require.Equal(t, "guardianship", ev.Metadata[billing.MetaScopeType])
	require.Equal(t, payload, ev.Payload)
}

func TestUnitVerifyInvoiceFailed(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	header, payload := sign(`{"id":"evt_2","object":"event","created":1709294400,"type":"invoice.payment_failed","data":{"object":{
		"id":"in_2","currency":"jpy","amount_paid":0,"amount_due":1500,
		"parent":{"subscription_details":{"subscription":"sub_2"}}
	}}}`)

	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	require.Equal(t, billing.EventChargeFailed, ev.Type)
	require.Equal(t, "1500", ev.Amount.String())
	require.Equal(t, defaultFailureReason, ev.FailureReason)
	require.Equal(t, time.Unix(1709294400, 0).UTC(), ev.OccurredAt)
}

func TestUnitVerifyCheckoutAndCancellation(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	for name, tc := range map[string]struct {
		body     string
		expected billing.EventType
		ignored  bool
	}{
		"one-off payment": {
			body:     `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","mode":"payment","payment_status":"paid","payment_intent":"pi_1","amount_total":500,"currency":"usd","metadata":{"target_type":"aid_request"}}}}`,
			expected: billing.EventChargeSucceeded,
		},
		"subscription checkout": {
			body:    `{"id":"evt_4","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2","mode":"subscription","payment_status":"paid"}}}`,
			ignored: true,
		},
		"deleted subscription": {
			body:     `{"id":"evt_5","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_5","status":"canceled"}}}`,
			expected: billing.EventSubscriptionCanceled,
		},
		"unhandled type": {
			body:    `{"id":"evt_6","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`,
			ignored: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			header, payload := sign(tc.body)

			ev, err := v.Verify(payload, header)
			if tc.ignored {
				require.ErrorIs(t, err, billing.ErrIgnoredEvent)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, ev.Type)
		})
	}
}

func TestUnitVerifyRejectsBadSignature(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	_, payload := sign(`{"id":"evt_7","object":"event","type":"invoice.paid","data":{"object":{}}}`)

	_, err = v.Verify(payload, "t=1,v1=deadbeef")
	require.Error(t, err)
	require.NotErrorIs(t, err, billing.ErrIgnoredEvent)

	_, err = NewVerifier(" ")
	require.Error(t, err)
}
