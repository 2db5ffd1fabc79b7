// keysrv - key service for encrypted process envelopes.
//
// stepsrv binds a fresh AES-256 key to each dispatched process; the consumer
// retrieves it once and the key is deleted on read.
//
// Usage:
//
//	keysrv [--dev] [--addr :3000] [--redis localhost:6379] [--secret s] [--ttl 24h]
//
// Environment:
//
//	KEYSRV_REDIS_PASSWORD     Redis password
//	STEPS_KEY_SERVICE_SECRET  HMAC secret (if --secret is empty)
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/internal/keystore"
)

func main() {
	dev := flag.Bool("dev", false, "dev mode: in-process miniredis")
	addr := flag.String("addr", ":3000", "listen address")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address")
	secret := flag.String("secret", os.Getenv("STEPS_KEY_SERVICE_SECRET"), "HMAC secret shared with stepsrv")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of an unread key")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *secret == "" {
		log.Warn().Msg("no HMAC secret configured, clients cannot verify key bindings")
	}

	if *dev {
		mr, err := miniredis.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("miniredis start failed")
		}
		defer mr.Close()
		*redisAddr = mr.Addr()
		log.Warn().Str("redis", mr.Addr()).Msg("dev mode: keys live in process memory")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     *redisAddr,
		Password: os.Getenv("KEYSRV_REDIS_PASSWORD"),
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("redis", *redisAddr).Msg("redis ping failed")
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      keystore.NewRouter(keystore.New(rdb, *secret, *ttl)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", *addr).Dur("ttl", *ttl).Bool("dev", *dev).Msg("keysrv started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("stopped")
}
