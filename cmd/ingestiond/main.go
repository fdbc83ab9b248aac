package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/config"
	"github.com/f0rbit/media-timeline/internal/credential"
	"github.com/f0rbit/media-timeline/internal/logger"
	"github.com/f0rbit/media-timeline/internal/objectstore"
	"github.com/f0rbit/media-timeline/internal/observability"
	"github.com/f0rbit/media-timeline/internal/provider"
	"github.com/f0rbit/media-timeline/internal/ratepolicy"
	"github.com/f0rbit/media-timeline/internal/repo"
	"github.com/f0rbit/media-timeline/internal/router"
	"github.com/f0rbit/media-timeline/internal/scheduler"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("ingestion engine starting")

	ctx := context.Background()

	repository, err := repo.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init failed")
	}
	defer repository.Close()

	backend, closeBackend := newBlobBackend(cfg, log)
	if closeBackend != nil {
		defer closeBackend()
	}

	objects := objectstore.NewRegistry(backend, repository)
	providers := registerProviders(cfg, log)
	metrics := observability.NewMetrics(log)

	if cfg.KMSPassphrase == "" {
		log.Warn().Msg("TOKEN_ENCRYPTION_KEY is unset — credential decryption will fail for every account")
	}
	encryptionKey := credential.DeriveKey([]byte(cfg.KMSPassphrase), []byte(cfg.KMSSalt))

	schedCfg := scheduler.DefaultConfig()
	schedCfg.WorkerPoolSize = cfg.WorkerPoolSize
	schedCfg.InvocationTimeout = cfg.InvocationTimeout
	schedCfg.ProviderFetchTimeout = cfg.ProviderFetchTimeout
	schedCfg.RatePolicy = ratepolicy.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	schedCfg.EncryptionKey = encryptionKey

	sched := scheduler.New(repository, objects, providers, log, schedCfg)

	r := router.New(router.Deps{
		Config:      cfg,
		Logger:      log,
		Scheduler:   sched,
		Objects:     objects,
		Repo:        repository,
		Metrics:     metrics,
		GitHostName: schedCfg.GitHostName,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("ingestion engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("ingestion engine stopped gracefully")
	}
}

// newBlobBackend connects to Redis for the object store's blob backend,
// falling back to an in-memory backend (with a warning) so the process
// still starts in a degraded mode rather than crash-looping.
func newBlobBackend(cfg *config.Config, log zerolog.Logger) (objectstore.Backend, func()) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL — falling back to in-memory blob backend")
		return objectstore.NewMemoryBackend(), nil
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — falling back to in-memory blob backend")
		_ = client.Close()
		return objectstore.NewMemoryBackend(), nil
	}

	log.Info().Msg("redis connected")
	return objectstore.NewRedisBackend(client), func() { _ = client.Close() }
}

func registerProviders(cfg *config.Config, log zerolog.Logger) *provider.Registry {
	pool := provider.NewConnectionPool(provider.DefaultPoolConfig())

	registry := provider.NewRegistry()
	registry.Register(provider.NewGitHostAdapter(pool, cfg.GitHostBaseURL))
	registry.Register(provider.NewMicroblogAdapter(pool, cfg.MicroblogBaseURL))
	registry.Register(provider.NewVideoAdapter(pool, cfg.VideoBaseURL))
	registry.Register(provider.NewTaskTrackerAdapter(pool, cfg.TaskTrackerBaseURL))
	registry.Register(provider.NewAggregatorAdapter(pool, cfg.AggregatorBaseURL, cfg.AggregatorMaxPosts, cfg.AggregatorMaxComments))
	registry.Register(provider.NewMicroblogLongAdapter(pool, cfg.MicroblogLongBaseURL))

	log.Info().Msg("provider registration complete")
	return registry
}
