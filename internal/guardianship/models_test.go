package guardianship

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

func TestUnitGuardianshipActivate(t *testing.T) {
	for name, tc := range map[string]struct {
		status  Status
		changed bool
		err     error
	}{
		"requires payment": {status: StatusRequiresPayment, changed: true},
		"active":           {status: StatusActive, changed: false},
		"completed":        {status: StatusCompleted, err: domain.ErrInvalidState},
	} {
		t.Run(name, func(t *testing.T) {
			deadline := t0
			g := &Guardianship{Status: tc.status, GraceUntil: &deadline}

			changed, err := g.Activate()
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.Equal(t, tc.status, g.Status)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.changed, changed)
			require.Equal(t, StatusActive, g.Status)
		})
	}
}

func TestUnitGuardianshipGraceExpired(t *testing.T) {
	deadline := t0.Add(time.Hour)

	for name, tc := range map[string]struct {
		g        Guardianship
		now      time.Time
		expected bool
	}{
		"before deadline": {
			g:   Guardianship{Status: StatusRequiresPayment, GraceUntil: &deadline},
			now: t0,
		},
		"at deadline": {
			g:        Guardianship{Status: StatusRequiresPayment, GraceUntil: &deadline},
			now:      deadline,
			expected: true,
		},
		"after deadline": {
			g:        Guardianship{Status: StatusRequiresPayment, GraceUntil: &deadline},
			now:      deadline.Add(time.Second),
			expected: true,
		},
		"active": {
			g:   Guardianship{Status: StatusActive},
			now: deadline.Add(time.Hour),
		},
		"no deadline": {
			g:   Guardianship{Status: StatusRequiresPayment},
			now: deadline.Add(time.Hour),
		},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.g.GraceExpired(tc.now))
		})
	}
}

func TestUnitGuardianshipCompleteIsTerminal(t *testing.T) {
	g := newGuardianship(uuid.New(), uuid.New(), t0, 3)

	require.True(t, g.Complete(t0))
	require.Nil(t, g.GraceUntil)
	require.False(t, g.Complete(t0.Add(time.Hour)))
	require.Equal(t, t0, *g.CompletedAt)

	require.ErrorIs(t, g.RequirePayment(t0, 3), domain.ErrInvalidState)
	require.Equal(t, StatusCompleted, g.Status)
}
