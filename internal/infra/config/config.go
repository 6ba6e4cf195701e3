package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL" validate:"omitempty,url"`
		// WebhookSecret передаётся в setWebhook и сверяется с заголовком каждого апдейта.
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET" validate:"required_with=WebhookURL,max=256"`
		Debug      bool   `envconfig:"TG_DEBUG" default:"false"`
		WebAppURL  string `envconfig:"TG_WEBAPP_URL" validate:"omitempty,url"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	TMDB struct {
		APIKey   string        `envconfig:"TMDB_API_KEY"`
		BaseURL  string        `envconfig:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3" validate:"url"`
		Language string        `envconfig:"TMDB_LANGUAGE" default:"ru-RU"`
		Timeout  time.Duration `envconfig:"TMDB_TIMEOUT" default:"10s"`
		CacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"24h"`
		// SearchLimit ограничивает выдачу поиска.
		SearchLimit int `envconfig:"SEARCH_LIMIT" default:"20" validate:"min=0"`
	} `envconfig:""`

	Feed struct {
		FetchLimit  int           `envconfig:"FEED_FETCH_LIMIT" default:"50" validate:"min=1"`
		PageSize    int           `envconfig:"FEED_PAGE_SIZE" default:"5" validate:"min=1"`
		SnapshotTTL time.Duration `envconfig:"FEED_SNAPSHOT_TTL" default:"30m"`
		Missing     string        `envconfig:"FEED_MISSING" default:"drop" validate:"oneof=drop placeholder"`
	} `envconfig:""`

	Ranking struct {
		Limit           int    `envconfig:"RANKING_LIMIT" default:"20" validate:"min=1"`
		Missing         string `envconfig:"RANKING_MISSING" default:"placeholder" validate:"oneof=drop placeholder"`
		InterestMissing string `envconfig:"INTEREST_MISSING" default:"drop" validate:"oneof=drop placeholder"`
	} `envconfig:""`

	Lookups struct {
		Timeout     time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"3s"`
		FanoutLimit int           `envconfig:"FANOUT_LIMIT" default:"8" validate:"min=1"`
	} `envconfig:""`

	Notify struct {
		Backend  string `envconfig:"NOTIFY_BACKEND" default:"redis" validate:"oneof=redis rabbitmq memory"`
		Channel  string `envconfig:"NOTIFY_CHANNEL" default:"activity_changed"`
		Exchange string `envconfig:"NOTIFY_EXCHANGE" default:"showtrack.changes"`
	} `envconfig:""`

	HTTP struct {
		RateLimit      int           `envconfig:"HTTP_RATE_LIMIT" default:"120" validate:"min=0"`
		AllowedOrigins []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
		InitDataMaxAge time.Duration `envconfig:"INIT_DATA_MAX_AGE" default:"24h"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает и проверяет конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("проверка конфига: %w", err)
	}
	return cfg, nil
}
