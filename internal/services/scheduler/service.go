// -----------------------------------------------------------------------
// Scheduler - periodic maintenance sweeps over the task store
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
)

// Service runs the expired-record sweep on a cron schedule. Lazy eviction on
// read already hides expired tasks; the sweep reclaims their disk space.
type Service struct {
	store    interfaces.TaskStorage
	logger   arbor.ILogger
	schedule string
	cron     *cron.Cron
}

// NewService creates the maintenance scheduler
func NewService(store interfaces.TaskStorage, logger arbor.ILogger, schedule string) *Service {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	return &Service{
		store:    store,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep and starts the cron runner
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Eviction sweep scheduled")
	return nil
}

// Stop stops the cron runner and waits for a running sweep to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	removed, err := s.store.EvictExpired(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Eviction sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().
			Int("removed", removed).
			Dur("duration", time.Since(start)).
			Msg("Eviction sweep completed")
	}
}
