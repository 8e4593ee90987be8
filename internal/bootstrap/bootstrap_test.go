package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/config"
	"github.com/alem-hub/friendship-streaks/internal/application/query"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:           config.AppConfig{Version: "test", Location: time.UTC},
		Storage:       config.StorageConfig{Driver: config.StorageDriverMemory},
		Redis:         config.RedisConfig{Disabled: true},
		Notifications: config.NotificationsConfig{Driver: config.NotifyDriverNone, Timeout: time.Second},
		Ranking:       config.RankingConfig{DefaultLimit: 10, CacheTTL: time.Minute},
		Features:      config.NewFeatureFlags(),
	}
}

var clock = timeutil.FixedClock{At: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}

func TestBuild_MemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, err := Build(ctx, memoryConfig(), nil, Options{Clock: clock})
	require.NoError(t, err)
	defer svc.Close()

	assert.Nil(t, svc.Migrator)
	assert.True(t, svc.Health.Check(ctx).Ready)

	req, err := svc.Registry.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	f, err := svc.Registry.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)

	_, err = svc.Engine.RecordAttendance(ctx, f.ID, timeutil.NewDate(2024, 3, 4))
	require.NoError(t, err)

	ranking, err := svc.Aggregator.GlobalRanking(ctx, query.DefaultRankingLimit)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, 1, ranking[0].StreakCount)

	issues, err := svc.Integrity.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestBuild_RedisBackedCacheAndNotifications(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Redis = config.RedisConfig{URL: "redis://" + mr.Addr()}
	cfg.Notifications.Driver = config.NotifyDriverRedis

	ctx := context.Background()
	svc, err := Build(ctx, cfg, nil, Options{Clock: clock})
	require.NoError(t, err)
	defer svc.Close()

	status := svc.Health.Check(ctx)
	assert.True(t, status.Ready)
	assert.Contains(t, status.Checks, "redis")

	req, err := svc.Registry.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Registry.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)

	_, err = svc.Aggregator.GlobalRanking(ctx, 5)
	require.NoError(t, err)

	var cached bool
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "ranking:") && strings.HasSuffix(key, ":top:5") {
			cached = true
		}
	}
	assert.True(t, cached, "ranking should be cached, keys: %v", mr.Keys())
}

func TestBuild_RedisDriverWithoutRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.Notifications.Driver = config.NotifyDriverRedis

	_, err := Build(context.Background(), cfg, nil, Options{})
	assert.ErrorContains(t, err, "redis driver selected")
}

func TestBuild_UnreachableRedisDisablesCache(t *testing.T) {
	cfg := memoryConfig()
	cfg.Redis = config.RedisConfig{URL: "redis://127.0.0.1:1"}

	svc, err := Build(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer svc.Close()

	assert.NotContains(t, svc.Health.Check(context.Background()).Checks, "redis")
}

func TestNewScheduler(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Scheduler = config.SchedulerConfig{Enabled: true, IntegrityAt: "00:05", RankingWarmInterval: time.Minute}

	svc, err := Build(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	defer svc.Close()

	s, err := NewScheduler(svc, nil)
	require.NoError(t, err)

	names := []string{}
	for _, info := range s.ListJobs() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"integrity_scan", "ranking_warmup"}, names)

	result, err := s.RunNow(ctx, "integrity_scan")
	require.NoError(t, err)
	assert.True(t, result.Success)

	cfg.Scheduler.RankingWarmInterval = 0
	s, err = NewScheduler(svc, nil)
	require.NoError(t, err)
	assert.Len(t, s.ListJobs(), 1)

	cfg.Scheduler.IntegrityAt = "noon"
	_, err = NewScheduler(svc, nil)
	assert.ErrorContains(t, err, "SCHEDULER_INTEGRITY_AT")
}

func TestBuild_NotificationFailureLoggedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := memoryConfig()
	cfg.Notifications = config.NotificationsConfig{Driver: config.NotifyDriverHTTP, BaseURL: srv.URL, Timeout: time.Second}

	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: logger.LevelWarn, Format: "json"})

	ctx := context.Background()
	svc, err := Build(ctx, cfg, log, Options{Clock: clock})
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Registry.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, strings.Count(buf.String(), `"message":"notification`), buf.String())
}
