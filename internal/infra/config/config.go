package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Instagram struct {
		VerifyToken     string        `envconfig:"IG_VERIFY_TOKEN"`
		GraphBaseURL    string        `envconfig:"IG_GRAPH_BASE_URL" default:"https://graph.instagram.com/v21.0"`
		FacebookBaseURL string        `envconfig:"FB_GRAPH_BASE_URL" default:"https://graph.facebook.com/v21.0"`
		SendTimeout     time.Duration `envconfig:"IG_SEND_TIMEOUT" default:"10s"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Webhook struct {
		DedupTTL time.Duration `envconfig:"WEBHOOK_DEDUP_TTL" default:"10m"`
	} `envconfig:""`

	Limits struct {
		ActivityPage   int `envconfig:"ACTIVITY_PAGE_LIMIT" default:"100"`
		ContentHistory int `envconfig:"CONTENT_HISTORY_LIMIT" default:"50"`
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
