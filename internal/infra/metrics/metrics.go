package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Количество запросов ленты",
	})
	FilterRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filter_requests_total",
		Help: "Количество запросов фильтрованного поиска",
	})
	FeedBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время сборки страницы ленты",
		Buckets: prometheus.DefBuckets,
	})
	ResultCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "result_cache_total",
		Help: "Обращения к кэшу результатов поиска",
	}, []string{"outcome"})
	ExposureBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exposure_batch_size",
		Help:    "Размер батча фиксации показов",
		Buckets: []float64{1, 5, 10, 20, 50, 100},
	})
	ExposureErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exposure_errors_total",
		Help: "Ошибки фиксации показов",
	})
	ExposureJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exposure_jobs_total",
		Help: "Обработанные задачи фиксации показов",
	}, []string{"status"})
	DefinitionMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "definition_misses_total",
		Help: "Промахи справочников тарифов и усилений",
	}, []string{"kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedRequestsTotal,
		FilterRequestsTotal,
		FeedBuildSeconds,
		ResultCacheTotal,
		ExposureBatchSize,
		ExposureErrorsTotal,
		ExposureJobsTotal,
		DefinitionMissesTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncFeedRequest увеличивает счётчик запросов ленты.
func IncFeedRequest() {
	FeedRequestsTotal.Inc()
}

// IncFilterRequest увеличивает счётчик запросов поиска.
func IncFilterRequest() {
	FilterRequestsTotal.Inc()
}

// IncResultCache фиксирует попадание или промах кэша результатов.
func IncResultCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	ResultCacheTotal.WithLabelValues(outcome).Inc()
}

// ObserveExposureBatch записывает размер батча показов.
func ObserveExposureBatch(size int) {
	ExposureBatchSize.Observe(float64(size))
}

// IncExposureError увеличивает счётчик ошибок фиксации показов.
func IncExposureError() {
	ExposureErrorsTotal.Inc()
}

// IncExposureJob фиксирует исход обработки задачи показов.
func IncExposureJob(status string) {
	ExposureJobsTotal.WithLabelValues(status).Inc()
}

// IncDefinitionMiss фиксирует промах справочника указанного вида.
func IncDefinitionMiss(kind string) {
	DefinitionMissesTotal.WithLabelValues(kind).Inc()
}
