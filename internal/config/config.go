package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

const (
	RealtimeBackendRedis    = "redis"
	RealtimeBackendPostgres = "postgres"
)

// Config centraliza la configuración del daemon.
type Config struct {
	HTTPPort            string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	RealtimeBackend     string `env:"REALTIME_BACKEND" envDefault:"postgres"`
	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	SignInMaxAttempts   int    `env:"SIGNIN_MAX_ATTEMPTS" envDefault:"5"`
	SignInWindowMinutes int    `env:"SIGNIN_WINDOW_MINUTES" envDefault:"10"`
	LedgerBaseURL       string `env:"LEDGER_BASE_URL"`
	LedgerTimeoutSecs   int    `env:"LEDGER_TIMEOUT_SECONDS" envDefault:"15"`
	AlertBuffer         int    `env:"ALERT_BUFFER" envDefault:"32"`
	EventBuffer         int    `env:"EVENT_BUFFER" envDefault:"64"`
	HapticsEnabled      bool   `env:"HAPTICS_ENABLED" envDefault:"false"`
	SMTPHost            string `env:"SMTP_HOST"`
	SMTPPort            int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser            string `env:"SMTP_USER"`
	SMTPPass            string `env:"SMTP_PASS"`
	SMTPFrom            string `env:"SMTP_FROM"`
	SMTPFromName        string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS          bool   `env:"SMTP_USE_TLS" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.RealtimeBackend = strings.ToLower(strings.TrimSpace(c.RealtimeBackend))
	switch c.RealtimeBackend {
	case RealtimeBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REALTIME_BACKEND=redis requires REDIS_ADDR")
		}
	case RealtimeBackendPostgres:
	default:
		return fmt.Errorf("unknown REALTIME_BACKEND %q", c.RealtimeBackend)
	}
	if c.AlertBuffer <= 0 {
		c.AlertBuffer = 32
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return nil
}
