// Package retention prunes old metric and alert rows from the backend store.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pruner deletes rows recorded before cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

type Service struct {
	repo          Pruner
	retentionDays int
	log           zerolog.Logger
	now           func() time.Time
}

func NewService(repo Pruner, days int, logger zerolog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{repo: repo, retentionDays: days, log: logger, now: time.Now}
}

// Run performs one cleanup pass.
func (s *Service) Run(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if err := s.repo.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Error().Err(err).Msg("retention cleanup failed")
		return err
	}
	s.log.Info().Time("cutoff", cutoff).Msg("retention cleanup completed")
	return nil
}

// Loop runs a cleanup immediately and then every interval until ctx ends.
// Failed passes are logged and retried on the next tick.
func (s *Service) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	_ = s.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = s.Run(ctx)
		}
	}
}
