package observability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{shared.ErrSelfRequest, OutcomeInvalidArgument},
		{fmt.Errorf("send: %w", shared.ErrPendingRequestExist), OutcomeConflict},
		{shared.ErrRequestNotPending, OutcomeNotFound},
		{shared.ErrNotSameCohort, OutcomePreconditionFailed},
		{shared.StoreUnavailable("x", errors.New("conn reset")), OutcomeStoreUnavailable},
		{shared.ErrScheduleServiceFailed, OutcomeExternal},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "%v", tt.err)
	}
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics()
	m.ObserveOperation("registry", "SendRequest", time.Now(), nil)
	m.ObserveOperation("registry", "SendRequest", time.Now(), shared.ErrFriendshipExists)
	m.ObserveOperation("registry", "SendRequest", time.Now(), shared.ErrFriendshipExists)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("registry", "SendRequest", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("registry", "SendRequest", OutcomeConflict)))
}

func TestMetrics_PoolStats(t *testing.T) {
	m := NewMetrics()
	m.RegisterPoolStats(func() PoolStats { return PoolStats{TotalConns: 4, IdleConns: 3, AcquiredConns: 1, MaxConns: 10} })

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	found := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			found[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 4.0, found["friendship_streaks_db_pool_total_conns"])
	assert.Equal(t, 10.0, found["friendship_streaks_db_pool_max_conns"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("a", "b", time.Now(), nil)
		m.TrackStore("x")()
		m.RankingCache("hit")
		m.Notification("t", nil)
		m.BreakerState("n", 2)
	})
}
