package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	CronSecret  string `envconfig:"CRON_SECRET"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"45s"`
	} `envconfig:""`

	Unsplash struct {
		AccessKey string `envconfig:"UNSPLASH_ACCESS_KEY"`
		BaseURL   string `envconfig:"UNSPLASH_BASE_URL"`
	} `envconfig:""`

	Search struct {
		APIKey   string `envconfig:"SEARCH_API_KEY"`
		EngineID string `envconfig:"SEARCH_ENGINE_ID"`
		BaseURL  string `envconfig:"SEARCH_BASE_URL"`
	} `envconfig:""`

	Expo struct {
		AccessToken string `envconfig:"EXPO_ACCESS_TOKEN"`
		BaseURL     string `envconfig:"EXPO_BASE_URL"`
		ChunkSize   int    `envconfig:"EXPO_CHUNK_SIZE" default:"100"`
	} `envconfig:""`

	Push struct {
		TZ          string        `envconfig:"PUSH_TZ" default:"Asia/Kolkata"`
		WindowStart int           `envconfig:"PUSH_WINDOW_START_HOUR" default:"8"`
		WindowEnd   int           `envconfig:"PUSH_WINDOW_END_HOUR" default:"1"`
		SlotCount   int           `envconfig:"PUSH_SLOT_COUNT" default:"30"`
		StaleAfter  time.Duration `envconfig:"PUSH_STALE_AFTER" default:"10m"`
	} `envconfig:""`

	Generation struct {
		BatchSize     int    `envconfig:"GENERATION_BATCH_SIZE" default:"5"`
		Category      string `envconfig:"GENERATION_CATEGORY"`
		ExcludeRecent int    `envconfig:"GENERATION_EXCLUDE_RECENT" default:"50"`
	} `envconfig:""`

	Enrichment struct {
		BatchLimit int           `envconfig:"ENRICH_BATCH_LIMIT" default:"10"`
		GroupSize  int           `envconfig:"ENRICH_GROUP_SIZE" default:"3"`
		GroupPause time.Duration `envconfig:"ENRICH_GROUP_PAUSE" default:"1s"`
	} `envconfig:""`

	Feed struct {
		PageSize int           `envconfig:"FEED_PAGE_SIZE" default:"20"`
		CacheTTL time.Duration `envconfig:"FEED_CACHE_TTL" default:"30s"`
	} `envconfig:""`

	Alerts struct {
		BotToken string `envconfig:"ALERT_TG_BOT_TOKEN"`
		ChatID   int64  `envconfig:"ALERT_TG_CHAT_ID"`
	} `envconfig:""`

	Scheduler struct {
		Tick          time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
		GenerateEvery time.Duration `envconfig:"SCHEDULER_GENERATE_EVERY" default:"6h"`
		EnrichEvery   time.Duration `envconfig:"SCHEDULER_ENRICH_EVERY" default:"10m"`
	} `envconfig:""`

	Queues struct {
		Enrich string `envconfig:"ENRICH_QUEUE_NAME" default:"tip_enrichment"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Файл .env, если он есть, читается первым.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("не удалось прочитать .env: %v", err)
	}
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// SlotConfig собирает настройки окна рассылки.
func (c AppConfig) SlotConfig() (slot.Config, error) {
	loc, err := time.LoadLocation(c.Push.TZ)
	if err != nil {
		return slot.Config{}, fmt.Errorf("config: load location %q: %w", c.Push.TZ, err)
	}
	cfg := slot.Config{
		Location:  loc,
		StartHour: c.Push.WindowStart,
		EndHour:   c.Push.WindowEnd,
		SlotCount: c.Push.SlotCount,
	}
	if err := cfg.Validate(); err != nil {
		return slot.Config{}, err
	}
	return cfg, nil
}
