package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	CardrailBaseURL       string `env:"CARDRAIL_BASE_URL" envDefault:"http://mock-provider:8081/cardrail"`
	CardrailAPIKey        string `env:"CARDRAIL_API_KEY,required"`
	CardrailWebhookSecret string `env:"CARDRAIL_WEBHOOK_SECRET,required"`

	WalletBaseURL       string `env:"WALLET_BASE_URL" envDefault:"http://mock-provider:8081/wallet"`
	WalletClientID      string `env:"WALLET_CLIENT_ID,required"`
	WalletClientSecret  string `env:"WALLET_CLIENT_SECRET,required"`
	WalletWebhookSecret string `env:"WALLET_WEBHOOK_SECRET,required"`

	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"200ms"`
	RetryJitter      float64       `env:"RETRY_JITTER" envDefault:"0.2"`

	NotificationPollInterval time.Duration `env:"NOTIFICATION_POLL_INTERVAL" envDefault:"2s"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
