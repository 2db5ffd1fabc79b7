// stepsrv - HTTP service that compiles process steps into executable
// descriptors and runs or dispatches processes.
//
// Usage:
//
//	stepsrv [--dev] [--config path] [--addr :3100] [--consume] [--allow-root]
//
// Flags:
//
//	--dev      Start in dev mode: in-process miniredis, in-memory SQLite, memory broker
//	--config   Path to stepsrv.yaml (empty = defaults)
//	--addr     Override server.addr from config
//	--consume  Run dispatched processes from the broker (overrides consumer.enabled)
//	--allow-root  Start even when running as root/Administrator
//
// Environment:
//
//	STEPS_DATABASE_DSN    database DSN (if not set in config)
//	STEPS_ENCRYPTION_KEY  AES-256 envelope key, hex or base64 (if not set in config)
//	STEPS_REDIS_PASSWORD  Redis password (if not set in config)
//	STEPS_KEY_SERVICE_SECRET  HMAC secret shared with keysrv (if not set in config)
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/internal/api"
	"github.com/ruslano69/tdtp-steps/internal/infra"
	"github.com/ruslano69/tdtp-steps/pkg/dispatch"
	"github.com/ruslano69/tdtp-steps/pkg/process"
	"github.com/ruslano69/tdtp-steps/pkg/security"
)

func main() {
	dev := flag.Bool("dev", false, "dev mode: in-process miniredis + in-memory SQLite + memory broker")
	configPath := flag.String("config", "", "path to config file")
	addrOverride := flag.String("addr", "", "listen address override (e.g. :3100)")
	consume := flag.Bool("consume", false, "execute processes received from the broker")
	allowRoot := flag.Bool("allow-root", false, "start even when running as root/Administrator")
	flag.Parse()

	// Pretty console log; switch to JSON in production via log.Logger = zerolog.New(os.Stderr)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := security.CheckPrivileges(); err != nil {
		if !*allowRoot {
			log.Fatal().Err(err).Msg("privilege check failed, refusing to start (use --allow-root to override)")
		}
		log.Warn().Err(err).Msg("running with administrative privileges")
	}

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("config load failed")
	}
	if *addrOverride != "" {
		cfg.Server.Addr = *addrOverride
	}
	if *consume {
		cfg.Consumer.Enabled = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inf, err := infra.Setup(ctx, cfg, *dev)
	if err != nil {
		log.Fatal().Err(err).Msg("infrastructure setup failed")
	}
	defer inf.Close()

	if *dev {
		log.Warn().Msg("──────────────────────────────────────────────────────")
		log.Warn().Msg("  DEV MODE ACTIVE — miniredis + SQLite :memory:       ")
		log.Warn().Msg("  DO NOT use in production                             ")
		log.Warn().Msg("──────────────────────────────────────────────────────")
	}

	if cfg.Consumer.Enabled {
		consumer := dispatch.NewConsumer(inf.Broker, cfg.Dispatch, func(ctx context.Context, p *process.Process) error {
			_, err := inf.Executor.Run(ctx, p)
			return err
		})
		go consumer.Run(ctx, cfg.Consumer.Backoff)
		log.Info().Str("broker", inf.Broker.GetBrokerType()).Msg("consumer started")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(cfg, inf),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Bool("dev", *dev).
			Str("config", *configPath).
			Msg("stepsrv started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("stopped")
}
