package jobs

import (
	"context"
	"fmt"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
)

// RankingWarmupJob loads the top of the ranking through the cached store so
// the first reader after an invalidation or a day rollover hits Redis.
type RankingWarmupJob struct {
	store  friendship.Store
	limits []int
	log    *logger.Logger
}

// NewRankingWarmupJob creates the job. Each limit is cached separately.
func NewRankingWarmupJob(store friendship.Store, log *logger.Logger, limits ...int) *RankingWarmupJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &RankingWarmupJob{
		store:  store,
		limits: limits,
		log:    log.With(logger.Component("ranking-warmup")),
	}
}

// Name implements scheduler.Job.
func (j *RankingWarmupJob) Name() string { return "ranking_warmup" }

// Description implements scheduler.Job.
func (j *RankingWarmupJob) Description() string {
	return "Prime the ranking cache for the configured limits"
}

// Run implements scheduler.Job.
func (j *RankingWarmupJob) Run(ctx context.Context) error {
	for _, limit := range j.limits {
		if limit <= 0 {
			continue
		}
		list, err := j.store.TopByStreak(ctx, limit)
		if err != nil {
			return fmt.Errorf("ranking warm-up (limit %d): %w", limit, err)
		}
		j.log.Debug("ranking warmed", logger.Int("limit", limit), logger.Int("entries", len(list)))
	}
	return nil
}
