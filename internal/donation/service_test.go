package donation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
	"github.com/shelter-labs/sponsorship-storage/internal/paymentmethod"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type memRepo struct {
	mu   sync.Mutex
	rows []Donation
}

func (r *memRepo) Create(_ context.Context, d *Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.CreatedAt = time.Now()
	r.rows = append(r.rows, *d)

	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.rows {
		if d.ID == id {
			return &d, nil
		}
	}

	return nil, fmt.Errorf("donation #%s: %w", id, domain.ErrNotFound)
}

func (r *memRepo) GetByTarget(_ context.Context, target TargetType, targetID uuid.UUID) ([]Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []Donation
	for _, d := range r.rows {
		if d.TargetType == target && d.TargetID != nil && *d.TargetID == targetID {
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DonatedAt.Before(list[j].DonatedAt) })

	return list, nil
}

type resolverMock struct{}

func (resolverMock) Resolve(_ context.Context, provider string) (*paymentmethod.PaymentMethod, error) {
	if provider != "stripe" {
		return nil, fmt.Errorf("payment method %s: %w", provider, domain.ErrNotFound)
	}

	return &paymentmethod.PaymentMethod{ID: uuid.MustParse("7b0f9c5e-3f7e-4d0a-9b1d-2a6f0c3e8d11"), Name: "stripe", Enabled: true}, nil
}

type publisherMock struct {
	subjects []string
}

func (m *publisherMock) PublishJSON(_ context.Context, subject string, _ any) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func newTestService() (*Service, *memRepo, *publisherMock) {
	repo := &memRepo{}
	pub := &publisherMock{}
	s := NewService(repo, resolverMock{}, pub)
	s.now = func() time.Time { return t0 }

	return s, repo, pub
}

func validCharge() Charge {
	target := uuid.New()
	user := uuid.New()

	return Charge{
		Provider:              "stripe",
		ProviderTransactionID: "pi_123",
		Amount:                decimal.RequireFromString("12.50"),
		Currency:              "usd",
		TargetType:            TargetGuardianship,
		TargetID:              &target,
		Recurring:             true,
		UserID:                &user,
		OccurredAt:            t0.Add(-time.Minute),
		Payload:               []byte(`{"id":"in_1"}`),
	}
}

func TestUnitRecordChargeSuccess(t *testing.T) {
	s, repo, pub := newTestService()
	ctx := context.Background()

	c := validCharge()
	d, err := s.RecordChargeSuccess(ctx, c)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, d.Status)
	require.Equal(t, "USD", d.Currency)
	require.Equal(t, "pi_123", *d.ProviderTransactionID)
	require.Nil(t, d.ProviderSubscriptionID)
	require.Nil(t, d.FailureReason)
	require.Equal(t, c.OccurredAt, d.DonatedAt)
	require.JSONEq(t, `{"id":"in_1"}`, string(d.Payload))
	require.Len(t, pub.subjects, 1)

	// retried callbacks append
	_, err = s.RecordChargeSuccess(ctx, c)
	require.NoError(t, err)
	require.Len(t, repo.rows, 2)
	require.NotEqual(t, repo.rows[0].ID, repo.rows[1].ID)
}

func TestUnitRecordChargeFailed(t *testing.T) {
	s, _, _ := newTestService()

	c := validCharge()
	c.ProviderTransactionID = ""
	c.FailureReason = "card_declined"
	c.OccurredAt = time.Time{}
	c.Anonymous = true

	d, err := s.RecordChargeFailed(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, d.Status)
	require.Nil(t, d.ProviderTransactionID)
	require.Equal(t, "card_declined", *d.FailureReason)
	require.Equal(t, t0, d.DonatedAt)
	require.Nil(t, d.UserID)
}

func TestUnitRecordChargeValidation(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate   func(*Charge)
		expected error
	}{
		"zero amount": {
			mutate:   func(c *Charge) { c.Amount = decimal.Zero },
			expected: domain.ErrInvalidArgument,
		},
		"missing transaction": {
			mutate:   func(c *Charge) { c.ProviderTransactionID = " " },
			expected: domain.ErrInvalidArgument,
		},
		"bad currency": {
			mutate:   func(c *Charge) { c.Currency = "" },
			expected: domain.ErrInvalidArgument,
		},
		"target without id": {
			mutate:   func(c *Charge) { c.TargetID = nil },
			expected: domain.ErrInvalidArgument,
		},
		"unknown target": {
			mutate:   func(c *Charge) { c.TargetType = "shelter" },
			expected: domain.ErrInvalidArgument,
		},
		"unknown provider": {
			mutate:   func(c *Charge) { c.Provider = "cash" },
			expected: domain.ErrNotFound,
		},
	} {
		t.Run(name, func(t *testing.T) {
			s, repo, _ := newTestService()
			c := validCharge()
			tc.mutate(&c)

			_, err := s.RecordChargeSuccess(context.Background(), c)
			require.ErrorIs(t, err, tc.expected)
			require.Empty(t, repo.rows)
		})
	}
}

func TestUnitRecordChargeUntargeted(t *testing.T) {
	s, _, _ := newTestService()

	c := validCharge()
	c.TargetType = ""
	c.Payload = []byte("not json")

	d, err := s.RecordChargeSuccess(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, TargetNone, d.TargetType)
	require.Nil(t, d.TargetID)
	require.Nil(t, d.Payload)
}

func TestUnitGetByTarget(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	c := validCharge()
	first, err := s.RecordChargeSuccess(ctx, c)
	require.NoError(t, err)

	c.OccurredAt = c.OccurredAt.Add(time.Hour)
	second, err := s.RecordChargeFailed(ctx, c)
	require.NoError(t, err)

	_, err = s.RecordChargeSuccess(ctx, validCharge())
	require.NoError(t, err)

	list, err := s.GetByTarget(ctx, TargetGuardianship, *c.TargetID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, second.ID, list[1].ID)

	got, err := s.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)

	_, err = s.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
