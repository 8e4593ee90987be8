package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/memory"
)

type fakeChecker struct {
	issues []friendship.IntegrityIssue
	err    error
}

func (f fakeChecker) CheckIntegrity(context.Context) ([]friendship.IntegrityIssue, error) {
	return f.issues, f.err
}

func TestIntegrityScanJob(t *testing.T) {
	metrics := observability.NewMetrics()
	pair := shared.NewPair("a", "b")
	job := NewIntegrityScanJob(fakeChecker{issues: []friendship.IntegrityIssue{
		{Kind: friendship.IssueDuplicatePending, Pair: pair, Count: 2},
		{Kind: friendship.IssuePendingWithFriendship, Pair: pair, Count: 1},
	}}, metrics, nil)

	assert.Nil(t, job.LastStats())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Issues)
	assert.Equal(t, 1, stats.ByKind[friendship.IssueDuplicatePending])
	assert.Equal(t, 0, stats.ByKind[friendship.IssueNegativeStreak])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IntegrityIssues.WithLabelValues(friendship.IssueDuplicatePending)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.IntegrityIssues.WithLabelValues(friendship.IssueNegativeStreak)))
}

func TestIntegrityScanJob_StoreFailure(t *testing.T) {
	job := NewIntegrityScanJob(fakeChecker{err: errors.New("connection refused")}, nil, nil)
	assert.Error(t, job.Run(context.Background()))
	assert.Nil(t, job.LastStats())
}

type countingStore struct {
	friendship.Store
	limits []int
}

func (s *countingStore) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	s.limits = append(s.limits, limit)
	return s.Store.TopByStreak(ctx, limit)
}

func TestRankingWarmupJob(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	job := NewRankingWarmupJob(store, nil, 10, 0, 50)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{10, 50}, store.limits)
	assert.Equal(t, "ranking_warmup", job.Name())
}
