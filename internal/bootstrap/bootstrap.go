// Package bootstrap builds the service graph shared by cmd/server and
// cmd/streakctl from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alem-hub/friendship-streaks/config"
	"github.com/alem-hub/friendship-streaks/internal/application/command"
	"github.com/alem-hub/friendship-streaks/internal/application/query"
	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/apiclient"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/notify"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/turns"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/users"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/service"
	"github.com/alem-hub/friendship-streaks/internal/interface/http/handlers"
	"github.com/alem-hub/friendship-streaks/pkg/circuitbreaker"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// Options tweak how the graph is built.
type Options struct {
	// SkipMigrations disables DB_AUTO_MIGRATE for this build.
	SkipMigrations bool
	// Clock overrides the system clock.
	Clock timeutil.Clock
}

// baseStore is what the postgres and memory stores both provide.
type baseStore interface {
	friendship.Store
	friendship.IntegrityChecker
	Ping(ctx context.Context) error
}

// Services is the wired application.
type Services struct {
	Config  *config.Config
	Metrics *observability.Metrics
	Health  *handlers.CompositeHealthChecker

	// Store is the decorated store the application layer uses.
	Store friendship.Store
	// Integrity scans the undecorated store.
	Integrity friendship.IntegrityChecker
	// Migrator is nil for the memory driver.
	Migrator *postgres.Migrator

	Registry   *command.Registry
	Engine     *command.StreakEngine
	Aggregator *query.Aggregator

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Build connects to the configured backends and wires the application.
// On error every resource acquired so far is released.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (_ *Services, err error) {
	if log == nil {
		log = logger.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	s := &Services{
		Config:  cfg,
		Metrics: observability.NewMetrics(),
		Health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Store
	// ─────────────────────────────────────────────────────────────────────────
	base, err := s.openStore(ctx, cfg, log, opts)
	if err != nil {
		return nil, err
	}
	s.Integrity = base
	s.Health.AddCheck("store", handlers.NewPingCheck(base))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	cache := s.openCache(ctx, cfg, log)
	if cache != nil {
		s.Health.AddCheck("redis", handlers.NewPingCheck(cache))
	}

	var store friendship.Store = service.NewInstrumentedStore(base, cfg.Database.QueryTimeout, s.Metrics)
	if cache != nil && cfg.Features.IsEnabled(config.FeatureRankingCache) {
		store = service.NewCachedStore(store, redis.NewRankingCache(cache, cfg.Ranking.CacheTTL), s.Metrics, log)
	}
	s.Store = store

	// ─────────────────────────────────────────────────────────────────────────
	// 3. External services
	// ─────────────────────────────────────────────────────────────────────────
	cohort, schedules := s.turnsClient(cfg, log)

	notifier, err := s.notifier(cfg, cache, log)
	if err != nil {
		return nil, err
	}

	var profiles query.ProfileLookup
	if cfg.Features.IsEnabled(config.FeatureEnrichNames) {
		profiles = s.profileLookup(cfg, cache, log)
	}
	if !cfg.Features.IsEnabled(config.FeatureEnrichSchedules) {
		schedules = nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Application layer
	// ─────────────────────────────────────────────────────────────────────────
	s.Registry = command.NewRegistry(command.RegistryDeps{
		Store:    store,
		Cohort:   cohort,
		Notifier: notifier,
		IDs:      service.NewIDGenerator(),
		Clock:    clock,
		Metrics:  s.Metrics,
		Logger:   log,
	})
	s.Engine = command.NewStreakEngine(command.StreakEngineDeps{
		Store:    store,
		Clock:    clock,
		Location: cfg.App.Location,
		Metrics:  s.Metrics,
		Logger:   log,
	})
	s.Aggregator = query.NewAggregator(query.AggregatorDeps{
		Store:             store,
		Profiles:          profiles,
		Schedules:         schedules,
		Clock:             clock,
		Location:          cfg.App.Location,
		LookupConcurrency: cfg.Ranking.LookupConcurrency,
		LookupTimeout:     cfg.Ranking.LookupTimeout,
		Metrics:           s.Metrics,
		Logger:            log,
	})

	return s, nil
}

func (s *Services) openStore(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (baseStore, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	log.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	s.closers = append(s.closers, func() {
		log.Info("closing database connection")
		conn.Close()
	})

	s.Metrics.RegisterPoolStats(func() observability.PoolStats {
		st := conn.Stats()
		return observability.PoolStats{
			TotalConns:    st.TotalConns,
			IdleConns:     st.IdleConns,
			AcquiredConns: st.AcquiredConns,
			MaxConns:      st.MaxConns,
		}
	})

	s.Migrator = postgres.NewMigrator(conn)
	if cfg.Database.AutoMigrate && !opts.SkipMigrations {
		applied, err := s.Migrator.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info("migrations applied", logger.Int("count", applied))
	}

	return postgres.NewFriendshipStore(conn), nil
}

// openCache connects to Redis. A connection failure disables caching
// instead of failing startup.
func (s *Services) openCache(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Cache {
	if cfg.Redis.Disabled {
		return nil
	}

	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Warn("invalid REDIS_URL, caching disabled", logger.Err(err))
			return nil
		}
		client := goredis.NewClient(opts)
		cache := redis.NewCacheFromClient(client)
		if err := cache.Ping(ctx); err != nil {
			_ = client.Close()
			log.Warn("redis unavailable, caching disabled", logger.Err(err))
			return nil
		}
		s.closers = append(s.closers, func() { _ = cache.Close() })
		return cache
	}

	rc := redis.DefaultConfig()
	rc.Addr = cfg.Redis.Addr()
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		log.Warn("redis unavailable, caching disabled", logger.Err(err))
		return nil
	}
	s.closers = append(s.closers, func() { _ = cache.Close() })
	return cache
}

func (s *Services) turnsClient(cfg *config.Config, log *logger.Logger) (friendship.CohortValidator, friendship.ScheduleProvider) {
	if cfg.Turns.BaseURL == "" {
		log.Warn("TURNS_MANAGEMENT_URL not set, every pair counts as same cohort")
		stub := turns.AlwaysSameCohort{}
		return stub, stub
	}
	api := apiclient.New(apiclient.Config{
		Name:                 "turns",
		BaseURL:              cfg.Turns.BaseURL,
		Timeout:              cfg.Turns.RequestTimeout,
		MaxAttempts:          cfg.Turns.MaxRetries,
		BreakerThreshold:     cfg.Turns.CircuitBreakerThreshold,
		BreakerTimeout:       cfg.Turns.CircuitBreakerTimeout,
		OnBreakerStateChange: s.recordBreaker,
	}, nil, log)
	client := turns.NewClient(api)
	return client, client
}

func (s *Services) notifier(cfg *config.Config, cache *redis.Cache, log *logger.Logger) (friendship.Notifier, error) {
	var sink friendship.Notifier
	switch cfg.Notifications.Driver {
	case config.NotifyDriverHTTP:
		sink = notify.NewHTTPNotifier(apiclient.New(apiclient.Config{
			Name:                 "notifications",
			BaseURL:              cfg.Notifications.BaseURL,
			Timeout:              cfg.Notifications.Timeout,
			MaxAttempts:          2,
			OnBreakerStateChange: s.recordBreaker,
		}, nil, log))
	case config.NotifyDriverRedis:
		if cache == nil {
			return nil, errors.New("notifications: redis driver selected but redis is unavailable")
		}
		sink = notify.NewRedisPublisher(cache)
	default:
		sink = notify.Noop{}
	}

	filtered := notify.NewFiltered(sink, cfg.Features.AllowsEvent)
	return service.NewNotificationService(filtered, cfg.Notifications.Timeout, s.Metrics), nil
}

func (s *Services) profileLookup(cfg *config.Config, cache *redis.Cache, log *logger.Logger) users.Lookup {
	var lookup users.Lookup = users.PlaceholderLookup{}
	if cfg.Users.BaseURL != "" {
		lookup = users.NewHTTPLookup(apiclient.New(apiclient.Config{
			Name:                 "users",
			BaseURL:              cfg.Users.BaseURL,
			Timeout:              cfg.Users.Timeout,
			MaxAttempts:          2,
			OnBreakerStateChange: s.recordBreaker,
		}, nil, log))
	}
	if cache != nil {
		lookup = users.NewCachedLookup(lookup, redis.NewNameCache(cache, cfg.Users.CacheTTL), log)
	}
	return lookup
}

// recordBreaker exports breaker transitions as 0 closed, 1 half-open, 2 open.
func (s *Services) recordBreaker(name string, _, to circuitbreaker.State) {
	value := 0
	switch to {
	case circuitbreaker.StateHalfOpen:
		value = 1
	case circuitbreaker.StateOpen:
		value = 2
	}
	s.Metrics.BreakerState(name, value)
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.Observability.LogFormat != "" {
		opts.Format = cfg.Observability.LogFormat
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
