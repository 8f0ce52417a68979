package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

func TestUnitSubscriptionCancel(t *testing.T) {
	next := t0.AddDate(0, 1, 0)
	s := Subscription{Status: StatusActive, NextChargeAt: &next}

	require.True(t, s.Cancel(t0))
	require.Equal(t, StatusCanceled, s.Status)
	require.Equal(t, t0, *s.CanceledAt)
	require.Nil(t, s.NextChargeAt)

	require.False(t, s.Cancel(t0.Add(time.Hour)))
	require.Equal(t, t0, *s.CanceledAt)
}

func TestUnitChargeOverdue(t *testing.T) {
	next := t0
	for name, tc := range map[string]struct {
		sub      Subscription
		now      time.Time
		expected bool
	}{
		"within tolerance": {
			sub:      Subscription{Status: StatusActive, NextChargeAt: &next},
			now:      t0.Add(71 * time.Hour),
			expected: false,
		},
		"exactly at tolerance": {
			sub:      Subscription{Status: StatusActive, NextChargeAt: &next},
			now:      t0.Add(72 * time.Hour),
			expected: true,
		},
		"paused": {
			sub:      Subscription{Status: StatusPaused, NextChargeAt: &next},
			now:      t0.Add(100 * time.Hour),
			expected: false,
		},
		"no schedule": {
			sub:      Subscription{Status: StatusActive},
			now:      t0.Add(100 * time.Hour),
			expected: false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.sub.ChargeOverdue(tc.now, 72*time.Hour))
		})
	}
}

func TestUnitInterval(t *testing.T) {
	for name, tc := range map[string]struct {
		raw      string
		expected time.Time
	}{
		"day":   {raw: "day", expected: t0.AddDate(0, 0, 1)},
		"week":  {raw: "week", expected: t0.AddDate(0, 0, 7)},
		"month": {raw: "month", expected: t0.AddDate(0, 1, 0)},
		"year":  {raw: "year", expected: t0.AddDate(1, 0, 0)},
	} {
		t.Run(name, func(t *testing.T) {
			i, err := ParseInterval(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.expected, i.Next(t0))
		})
	}

	_, err := ParseInterval("fortnight")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUnitSubscriptionRegisterChargeIgnoresZeroTime(t *testing.T) {
	next := t0.AddDate(0, 1, 0)
	s := Subscription{Status: StatusActive, NextChargeAt: &next}

	require.False(t, s.RegisterCharge(time.Time{}, IntervalMonth))
	require.Nil(t, s.LastChargeAt)
	require.Equal(t, next, *s.NextChargeAt)

	require.True(t, s.RegisterCharge(next, IntervalMonth))
	require.Equal(t, next.AddDate(0, 1, 0), *s.NextChargeAt)
}
