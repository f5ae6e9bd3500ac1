package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	// FCMServerKey empty means deliveries run against the failing no-op
	// provider, which keeps local development working without credentials.
	FCMServerKey string `env:"FCM_SERVER_KEY"`
	FCMEndpoint  string `env:"FCM_ENDPOINT"`

	APIPort                int    `env:"API_PORT,default=8080"`
	LogLevel               string `env:"LOG_LEVEL,default=info"`
	ProviderTimeoutSeconds int    `env:"PROVIDER_TIMEOUT_SECONDS,default=10"`
	RateLimitPerSec        int    `env:"RATE_LIMIT_PER_SEC,default=100"`

	DailyDealHour             int    `env:"DAILY_DEAL_HOUR,default=18"`
	CampaignTimezone          string `env:"CAMPAIGN_TIMEZONE,default=UTC"`
	BehavioralIntervalMinutes int    `env:"BEHAVIORAL_INTERVAL_MINUTES,default=60"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DailyDealHour < 0 || cfg.DailyDealHour > 23 {
		return nil, fmt.Errorf("DAILY_DEAL_HOUR must be between 0 and 23, got %d", cfg.DailyDealHour)
	}
	if cfg.BehavioralIntervalMinutes <= 0 {
		return nil, fmt.Errorf("BEHAVIORAL_INTERVAL_MINUTES must be positive, got %d", cfg.BehavioralIntervalMinutes)
	}
	return &cfg, nil
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) BehavioralInterval() time.Duration {
	return time.Duration(c.BehavioralIntervalMinutes) * time.Minute
}
