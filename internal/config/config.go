// Package config содержит логику чтения конфигурации сервиса заказов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса заказов.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	StripeAPIKey        string `env:"STRIPE_API_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	FrontendURL         string `env:"FRONTEND_URL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envStripeAPIKey := cfg.StripeAPIKey
	envStripeWebhookSecret := cfg.StripeWebhookSecret
	envFrontendURL := cfg.FrontendURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.StripeAPIKey, "k", "", "payment processor secret key")
	flag.StringVar(&cfg.StripeWebhookSecret, "w", "", "payment processor webhook signing secret")
	flag.StringVar(&cfg.FrontendURL, "f", "http://localhost:3000", "storefront base URL for payment redirects")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envStripeAPIKey != "" {
		cfg.StripeAPIKey = envStripeAPIKey
	}
	if envStripeWebhookSecret != "" {
		cfg.StripeWebhookSecret = envStripeWebhookSecret
	}
	if envFrontendURL != "" {
		cfg.FrontendURL = envFrontendURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
