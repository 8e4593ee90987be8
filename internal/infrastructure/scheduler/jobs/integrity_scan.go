// Package jobs contains the scheduled maintenance jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTEGRITY SCAN JOB
// ══════════════════════════════════════════════════════════════════════════════

// IntegrityScanJob periodically scans the store for pair invariant
// violations (duplicate pending requests, pending requests between friends,
// negative streaks) and reports them as warnings and gauges. It never
// repairs data.
type IntegrityScanJob struct {
	checker friendship.IntegrityChecker
	metrics *observability.Metrics
	log     *logger.Logger

	lastStats atomic.Pointer[IntegrityStats]
}

// IntegrityStats summarises one scan.
type IntegrityStats struct {
	ScannedAt time.Time
	Duration  time.Duration
	Issues    int
	ByKind    map[string]int
}

// NewIntegrityScanJob creates the job.
func NewIntegrityScanJob(checker friendship.IntegrityChecker, metrics *observability.Metrics, log *logger.Logger) *IntegrityScanJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &IntegrityScanJob{
		checker: checker,
		metrics: metrics,
		log:     log.With(logger.Component("integrity-scan")),
	}
}

// Name implements scheduler.Job.
func (j *IntegrityScanJob) Name() string { return "integrity_scan" }

// Description implements scheduler.Job.
func (j *IntegrityScanJob) Description() string {
	return "Scan friend requests and friendships for pair invariant violations"
}

// Run implements scheduler.Job.
func (j *IntegrityScanJob) Run(ctx context.Context) error {
	start := time.Now()
	issues, err := j.checker.CheckIntegrity(ctx)
	if err != nil {
		return fmt.Errorf("integrity scan: %w", err)
	}

	stats := &IntegrityStats{
		ScannedAt: start,
		Duration:  time.Since(start),
		Issues:    len(issues),
		ByKind: map[string]int{
			friendship.IssueDuplicatePending:      0,
			friendship.IssuePendingWithFriendship: 0,
			friendship.IssueNegativeStreak:        0,
		},
	}
	for _, issue := range issues {
		stats.ByKind[issue.Kind]++
		j.log.Warn("integrity issue",
			logger.String("kind", issue.Kind),
			logger.StudentID(issue.Pair.Low.String()),
			logger.FriendID(issue.Pair.High.String()),
			logger.Int("count", issue.Count),
			logger.String("detail", issue.Detail),
		)
	}
	j.metrics.SetIntegrityIssues(stats.ByKind)
	j.lastStats.Store(stats)
	return nil
}

// LastStats returns the result of the latest successful scan, or nil.
func (j *IntegrityScanJob) LastStats() *IntegrityStats {
	return j.lastStats.Load()
}
