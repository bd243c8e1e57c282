package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL   string `envconfig:"AMQP_URL"`
		Queue string `envconfig:"AMQP_EXPOSURE_QUEUE" default:"exposure_jobs"`
	} `envconfig:""`

	Queues struct {
		Exposure string `envconfig:"EXPOSURE_QUEUE_KEY" default:"exposure_jobs"`
	} `envconfig:""`

	Rank struct {
		// Штраф должен превышать сумму ранга варианта, бонусов и окна
		// свежести, иначе правило back теряет безусловность.
		RecencyWindowDays float64 `envconfig:"RANK_RECENCY_WINDOW_DAYS" default:"100"`
		BackPenalty       float64 `envconfig:"RANK_BACK_PENALTY" default:"1000"`
	} `envconfig:""`

	Feed struct {
		MaxPageSize    int           `envconfig:"FEED_MAX_PAGE_SIZE" default:"100"`
		ResultCacheTTL time.Duration `envconfig:"FEED_RESULT_CACHE_TTL" default:"30s"`
	} `envconfig:""`

	Definitions struct {
		CacheTTL time.Duration `envconfig:"DEFINITIONS_CACHE_TTL" default:"5m"`
	} `envconfig:""`

	Exposure struct {
		Workers    int `envconfig:"EXPOSURE_WORKERS" default:"2"`
		MaxRetries int `envconfig:"EXPOSURE_MAX_RETRIES" default:"3"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
