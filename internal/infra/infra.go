package infra

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/mssql"
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/mysql"
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/postgres"
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/sqlite"
	"github.com/ruslano69/tdtp-steps/pkg/audit"
	"github.com/ruslano69/tdtp-steps/pkg/brokers"
	"github.com/ruslano69/tdtp-steps/pkg/catalog"
	"github.com/ruslano69/tdtp-steps/pkg/dispatch"
	"github.com/ruslano69/tdtp-steps/pkg/executor"
	"github.com/ruslano69/tdtp-steps/pkg/mercury"
	"github.com/ruslano69/tdtp-steps/pkg/resilience"
	"github.com/ruslano69/tdtp-steps/pkg/resultlog"
	"github.com/ruslano69/tdtp-steps/pkg/retry"
	"github.com/ruslano69/tdtp-steps/pkg/security"
)

// Infra holds all live infrastructure handles for the running service.
type Infra struct {
	Redis     *redis.Client
	Adapter   adapters.Adapter
	Catalog   *catalog.Cached
	Broker    brokers.MessageBroker
	Breaker   *resilience.CircuitBreaker
	Executor  *executor.Executor
	Results   *resultlog.RedisPublisher
	Publisher *dispatch.Publisher
	Audit     *audit.MultiAppender // nil when the audit trail is off

	// dev-mode internal instance; nil in production
	mini *miniredis.Miniredis
}

// Setup initialises Redis, the database, the catalog and the broker.
//   - dev=true: in-process miniredis, in-memory SQLite and memory broker
//     unless the config names others.
//   - dev=false: connects to the addresses from cfg.
func Setup(ctx context.Context, cfg *Config, dev bool) (*Infra, error) {
	inf := &Infra{}

	if dev {
		var err error
		inf.mini, err = miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("infra: miniredis: %w", err)
		}
		inf.Redis = redis.NewClient(&redis.Options{Addr: inf.mini.Addr()})
		if cfg.Database.Type == "" {
			cfg.Database = adapters.Config{Type: "sqlite", DSN: ":memory:"}
		}
		if cfg.Broker.Type == "" {
			cfg.Broker.Type = "memory"
		}
		log.Info().Str("redis", inf.mini.Addr()).Msg("dev: in-process miniredis started")
	} else {
		inf.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if err := inf.Redis.Ping(ctx).Err(); err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: redis ping: %w", err)
	}

	var err error
	inf.Adapter, err = adapters.New(ctx, cfg.Database)
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: database: %w", err)
	}

	var source catalog.Catalog
	if cfg.Catalog.StaticFile != "" {
		source, err = catalog.LoadStatic(cfg.Catalog.StaticFile)
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("infra: catalog: %w", err)
		}
	} else {
		source = catalog.NewSQL(inf.Adapter, cfg.Catalog.Protected)
	}
	inf.Catalog = catalog.NewCached(source, inf.Redis, cfg.Catalog.CacheTTL)

	retryer, err := retry.NewRetryer(cfg.Executor.Retry)
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: retry: %w", err)
	}
	inf.Results = resultlog.NewRedisPublisher(inf.Redis, cfg.Executor.ResultTTL)
	opts := []executor.Option{
		executor.WithRetry(retryer),
		executor.WithReporter(inf.Results),
		executor.WithInvalidator(inf.Catalog),
		executor.WithValidator(security.NewSQLValidator(!cfg.Executor.AllowUnsafeSQL)),
	}
	if cfg.Audit.Enabled() {
		inf.Audit, err = audit.New(cfg.Audit, log.Logger)
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("infra: audit: %w", err)
		}
		opts = append(opts, executor.WithReporter(audit.NewReporter(inf.Audit)))
	}
	inf.Executor = executor.New(inf.Adapter, opts...)

	inf.Broker, err = brokers.New(cfg.Broker)
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: broker: %w", err)
	}
	if err := inf.Broker.Connect(ctx); err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: broker connect: %w", err)
	}

	inf.Breaker, err = resilience.New(cfg.Breaker)
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: breaker: %w", err)
	}
	switch {
	case cfg.KeyService.Local():
		cfg.Dispatch.Keys = mercury.NewLocal()
	case cfg.KeyService.Enabled():
		cfg.Dispatch.Keys = mercury.NewClient(cfg.KeyService)
	}
	inf.Publisher = dispatch.NewPublisher(inf.Broker, inf.Breaker, cfg.Dispatch)

	log.Info().
		Str("database", cfg.Database.Type).
		Str("broker", inf.Broker.GetBrokerType()).
		Bool("static_catalog", cfg.Catalog.StaticFile != "").
		Bool("audit", inf.Audit != nil).
		Bool("key_service", cfg.Dispatch.Keys != nil).
		Msg("infrastructure ready")
	return inf, nil
}

// Close releases all infrastructure resources.
func (inf *Infra) Close() {
	if inf.Audit != nil {
		_ = inf.Audit.Close()
	}
	if inf.Broker != nil {
		_ = inf.Broker.Close()
	}
	if inf.Adapter != nil {
		_ = inf.Adapter.Close(context.Background())
	}
	if inf.Redis != nil {
		_ = inf.Redis.Close()
	}
	if inf.mini != nil {
		inf.mini.Close()
	}
}
