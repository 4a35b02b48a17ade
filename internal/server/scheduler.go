package server

import (
	"context"
	"errors"
	"time"

	"github.com/orbitearn/valence-protocol/internal/forwarder"
	"github.com/orbitearn/valence-protocol/internal/splitter"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// RunSplitScheduler triggers a split run every interval until the context is
// canceled. Skips and failures are logged; the loop never stops on them.
func (s *Server) RunSplitScheduler(ctx context.Context, interval time.Duration) error {
	s.logger.Info().Dur("interval", interval).Msg("split scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.splitter.Split(ctx, s.processor)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				s.logger.Debug().Msg("scheduled split skipped: no policy configured")
			case errors.Is(err, splitter.ErrSplitInProgress):
				s.logger.Debug().Msg("scheduled split skipped: run in progress")
			case err != nil:
				s.logger.Error().Err(err).Msg("scheduled split failed")
			default:
				s.noteSplitRun()
				s.logger.Info().
					Str("run_id", res.RunID).
					Str("total", res.Total.Dec()).
					Int("transfers", len(res.Transfers)).
					Msg("scheduled split completed")
			}
		}
	}
}

// RunForwardScheduler triggers a forward run every interval until the
// context is canceled.
func (s *Server) RunForwardScheduler(ctx context.Context, interval time.Duration) error {
	s.logger.Info().Dur("interval", interval).Msg("forward scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.forwarder.Forward(ctx, s.processor)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				s.logger.Debug().Msg("scheduled forward skipped: no policy configured")
			case errors.Is(err, forwarder.ErrIntervalNotElapsed):
				s.logger.Debug().Msg("scheduled forward skipped: interval not elapsed")
			case errors.Is(err, forwarder.ErrForwardInProgress):
				s.logger.Debug().Msg("scheduled forward skipped: run in progress")
			case err != nil:
				s.logger.Error().Err(err).Msg("scheduled forward failed")
			default:
				s.noteForwardRun()
				s.logger.Info().
					Str("run_id", res.RunID).
					Str("total", res.Total.Dec()).
					Int("transfers", len(res.Moves)).
					Msg("scheduled forward completed")
			}
		}
	}
}
