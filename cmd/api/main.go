package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"profile-feed/internal/adapters/httpapi"
	"profile-feed/internal/adapters/repo"
	"profile-feed/internal/domain"
	"profile-feed/internal/infra/cache"
	"profile-feed/internal/infra/config"
	"profile-feed/internal/infra/db"
	httpinfra "profile-feed/internal/infra/http"
	loginfra "profile-feed/internal/infra/log"
	"profile-feed/internal/infra/metrics"
	"profile-feed/internal/infra/queue"
	"profile-feed/internal/usecase/exposure"
	"profile-feed/internal/usecase/feed"
	"profile-feed/internal/usecase/filterplan"
	"profile-feed/internal/usecase/rank"
)

func main() {
	cfg := config.Load()
	logger := loginfra.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool, cfg.Definitions.CacheTTL)

	var resultCache domain.Cache
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		resultCache = cache.NewRedis(redisClient)
	}

	// Фиксация показов уходит в очередь, если она настроена; иначе пишем
	// в БД напрямую тем же батчевым апдейтом.
	var sink domain.ExposureSink = repoAdapter
	switch {
	case cfg.AMQP.URL != "":
		rabbit, err := queue.NewRabbitExposureQueue(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к AMQP")
		}
		defer rabbit.Close()
		sink = exposure.NewQueueSink(rabbit, domain.ExposureCauseFeed)
	case redisClient != nil:
		sink = exposure.NewQueueSink(queue.NewRedisExposureQueue(redisClient, cfg.Queues.Exposure), domain.ExposureCauseFeed)
	}

	engine := rank.NewEngine(rank.Config{
		RecencyWindowDays: cfg.Rank.RecencyWindowDays,
		BackPenalty:       cfg.Rank.BackPenalty,
	}, logger.With().Str("component", "rank").Logger())
	planner := filterplan.NewPlanner(repoAdapter, logger.With().Str("component", "filterplan").Logger())
	feedService := feed.NewService(repoAdapter, repoAdapter, planner, engine, sink, resultCache,
		cfg.Feed.ResultCacheTTL, cfg.Feed.MaxPageSize, logger.With().Str("component", "feed").Logger())

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	httpapi.NewHandler(feedService, logger.With().Str("component", "httpapi").Logger()).Register(server.Router)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: graceful shutdown не удался")
	}
}
