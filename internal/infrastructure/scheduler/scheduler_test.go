package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(Config{Tick: 5 * time.Millisecond, Metrics: observability.NewMetrics()})
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "tick", infos[0].Name)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(2))
	require.NotNil(t, infos[0].LastResult)
	assert.True(t, infos[0].LastResult.Success)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.Register(&countingJob{name: "fails", err: boom}, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "fails")
	assert.ErrorIs(t, err, boom)
	assert.True(t, result.Manual)
	assert.False(t, result.Success)
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RegisterAndLifecycleErrors(t *testing.T) {
	s := newTestScheduler()
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)
	require.NoError(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Second)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Second)), ErrJobAlreadyExists)

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
}

func TestDailySchedule(t *testing.T) {
	loc := time.FixedZone("Asia/Almaty", 5*60*60)
	sched := DailySchedule{Hour: 0, Minute: 5, Location: loc}

	before := time.Date(2024, 3, 1, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 5, 0, 0, loc), sched.Next(before))

	at := time.Date(2024, 3, 2, 0, 5, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 5, 0, 0, loc), sched.Next(at))

	// 19:30 UTC on Mar 1 is already Mar 2 in Almaty.
	utc := time.Date(2024, 3, 1, 19, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 5, 0, 0, loc), sched.Next(utc))

	assert.Equal(t, "@daily 00:05 Asia/Almaty", sched.String())
	assert.Equal(t, "@every 1m0s", NewIntervalSchedule(time.Minute).String())
}
