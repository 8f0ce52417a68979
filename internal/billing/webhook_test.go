package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

type verifierMock struct{}

func (verifierMock) Provider() string {
	return "Stripe"
}

func (verifierMock) SignatureHeader() string {
	return "Stripe-Signature"
}

func (verifierMock) Verify(payload []byte, signature string) (*ChargeEvent, error) {
	if signature != "valid" {
		return nil, errors.New("signature mismatch")
	}

	if strings.Contains(string(payload), "ignored") {
		return nil, ErrIgnoredEvent
	}

	return &ChargeEvent{ID: "evt_1", Type: EventChargeSucceeded, Provider: "stripe", Payload: payload}, nil
}

type handlerMock struct {
	events []ChargeEvent
	err    error
}

func (m *handlerMock) Handle(_ context.Context, ev ChargeEvent) error {
	m.events = append(m.events, ev)

	return m.err
}

func TestUnitWebhookHandler(t *testing.T) {
	for name, tc := range map[string]struct {
		path       string
		body       string
		signature  string
		handleErr  error
		expected   int
		dispatched int
	}{
		"dispatched": {
			path:       "/webhooks/stripe",
			body:       `{"id":"evt_1"}`,
			signature:  "valid",
			expected:   http.StatusOK,
			dispatched: 1,
		},
		"unknown provider": {
			path:      "/webhooks/paypal",
			signature: "valid",
			expected:  http.StatusNotFound,
		},
		"missing signature": {
			path:     "/webhooks/stripe",
			expected: http.StatusBadRequest,
		},
		"bad signature": {
			path:      "/webhooks/stripe",
			signature: "forged",
			expected:  http.StatusBadRequest,
		},
		"ignored event": {
			path:      "/webhooks/stripe",
			body:      `{"type":"ignored"}`,
			signature: "valid",
			expected:  http.StatusOK,
		},
		"processing failure is retried": {
			path:       "/webhooks/stripe",
			body:       `{}`,
			signature:  "valid",
			handleErr:  errors.New("db down"),
			expected:   http.StatusInternalServerError,
			dispatched: 1,
		},
		"rejected event is acknowledged": {
			path:       "/webhooks/stripe",
			body:       `{}`,
			signature:  "valid",
			handleErr:  fmt.Errorf("bad metadata: %w", domain.ErrInvalidArgument),
			expected:   http.StatusOK,
			dispatched: 1,
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := &handlerMock{err: tc.handleErr}
			r := mux.NewRouter()
			NewWebhookHandler(h, verifierMock{}).Register(r)

			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			if tc.signature != "" {
				req.Header.Set("Stripe-Signature", tc.signature)
			}
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			require.Equal(t, tc.expected, rec.Code)
			require.Len(t, h.events, tc.dispatched)
		})
	}
}
