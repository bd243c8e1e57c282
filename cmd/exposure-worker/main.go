package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"profile-feed/internal/adapters/repo"
	"profile-feed/internal/domain"
	"profile-feed/internal/infra/config"
	"profile-feed/internal/infra/db"
	loginfra "profile-feed/internal/infra/log"
	"profile-feed/internal/infra/metrics"
	"profile-feed/internal/infra/queue"
	"profile-feed/internal/usecase/exposure"
)

func main() {
	cfg := config.Load()
	logger := loginfra.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("exposure-worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool, cfg.Definitions.CacheTTL)

	var jobs domain.ExposureQueue
	switch {
	case cfg.AMQP.URL != "":
		rabbit, err := queue.NewRabbitExposureQueue(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("exposure-worker: нет подключения к AMQP")
		}
		defer rabbit.Close()
		jobs = rabbit
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		jobs = queue.NewRedisExposureQueue(client, cfg.Queues.Exposure)
	default:
		logger.Fatal().Msg("exposure-worker: не настроена ни одна очередь (AMQP_URL или REDIS_ADDR)")
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	worker := exposure.NewWorker(jobs, repoAdapter, cfg.Exposure.MaxRetries,
		logger.With().Str("component", "exposure").Logger())

	var wg sync.WaitGroup
	for i := 0; i < cfg.Exposure.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("exposure-worker: воркер завершился с ошибкой")
			}
		}()
	}

	logger.Info().Int("workers", cfg.Exposure.Workers).Msg("exposure-worker: старт")
	<-ctx.Done()
	logger.Info().Msg("exposure-worker: остановка")
	wg.Wait()
}
