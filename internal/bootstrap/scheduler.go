package bootstrap

import (
	"fmt"

	"github.com/alem-hub/friendship-streaks/internal/infrastructure/scheduler"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
)

// NewScheduler registers the background jobs for svc. The integrity scan runs
// daily after the local day rolls over; the ranking warm-up runs on an
// interval when it is non-zero.
func NewScheduler(svc *Services, log *logger.Logger) (*scheduler.Scheduler, error) {
	cfg := svc.Config.Scheduler

	s := scheduler.NewScheduler(scheduler.Config{
		Logger:     log,
		Metrics:    svc.Metrics,
		Timezone:   svc.Config.App.Location,
		JobTimeout: cfg.JobTimeout,
	})

	hour, minute, err := cfg.IntegrityClock()
	if err != nil {
		return nil, err
	}
	integrity := jobs.NewIntegrityScanJob(svc.Integrity, svc.Metrics, log)
	daily := scheduler.DailySchedule{Hour: hour, Minute: minute, Location: svc.Config.App.Location}
	if err := s.Register(integrity, daily); err != nil {
		return nil, fmt.Errorf("register %s: %w", integrity.Name(), err)
	}

	if cfg.RankingWarmInterval > 0 {
		warmup := jobs.NewRankingWarmupJob(svc.Store, log, svc.Config.Ranking.DefaultLimit)
		if err := s.Register(warmup, scheduler.NewIntervalSchedule(cfg.RankingWarmInterval)); err != nil {
			return nil, fmt.Errorf("register %s: %w", warmup.Name(), err)
		}
	}
	return s, nil
}
