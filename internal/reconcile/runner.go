package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type GuardianshipSweeper interface {
	AutoCompleteExpired(ctx context.Context, utcNow time.Time) (int, error)
}

type SubscriptionSweeper interface {
	CancelExpired(ctx context.Context, utcNow time.Time) (int, error)
}

type Result struct {
	CompletedGuardianships int `json:"completed_guardianships"`
	CanceledSubscriptions  int `json:"canceled_subscriptions"`
}

// Runner executes both reconciliation sweeps for a given moment.
// Runs are safe to repeat and to overlap: each row is re-checked under its own lock.
type Runner struct {
	guardianships GuardianshipSweeper
	subscriptions SubscriptionSweeper
}

func NewRunner(g GuardianshipSweeper, s SubscriptionSweeper) *Runner {
	return &Runner{
		guardianships: g,
		subscriptions: s,
	}
}

func (r *Runner) Run(ctx context.Context, utcNow time.Time) (Result, error) {
	utcNow = utcNow.UTC()

	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cnt, err := r.guardianships.AutoCompleteExpired(gctx, utcNow)
		res.CompletedGuardianships = cnt
		if err != nil {
			return fmt.Errorf("auto complete guardianships: %w", err)
		}

		return nil
	})
	g.Go(func() error {
		cnt, err := r.subscriptions.CancelExpired(gctx, utcNow)
		res.CanceledSubscriptions = cnt
		if err != nil {
			return fmt.Errorf("cancel expired subscriptions: %w", err)
		}

		return nil
	})

	err := g.Wait()

	log.Info().
		Time("at", utcNow).
		Int("guardianships", res.CompletedGuardianships).
		Int("subscriptions", res.CanceledSubscriptions).
		Msg("reconciliation finished")

	return res, err
}
