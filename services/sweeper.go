package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sweepTimeout = 30 * time.Second

// Sweeper deletes expired QR token records. It runs on its own schedule so
// verification never waits on cleanup.
type Sweeper struct {
	tokens TokenStore
	now    func() time.Time
}

func NewSweeper(tokens TokenStore) *Sweeper {
	return &Sweeper{tokens: tokens, now: time.Now}
}

// SweepOnce deletes every token that expired before now.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteExpiredQRTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to sweep expired qr tokens")
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Swept expired QR tokens")
	}
	return deleted, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
			defer cancel()
			if _, err := s.SweepOnce(sweepCtx); err != nil {
				log.Error().Err(err).Msg("Expired token sweep failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	log.Info().Dur("interval", interval).Msg("Starting expired token sweeper")
	scheduler.Start()

	<-ctx.Done()
	return scheduler.Shutdown()
}
