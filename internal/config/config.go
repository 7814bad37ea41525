package config

import (
	"errors"
	"os"

	"github.com/hashicorp/go-multierror"
)

type Config struct {
	Port string

	DatabaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	CheckoutSuccessURL string
	CheckoutCancelURL  string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	SentryDSN string
}

func New() (*Config, error) {
	cfg := &Config{
		Port:                os.Getenv("PORT"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   os.Getenv("CHECKOUT_CANCEL_URL"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            os.Getenv("SMTP_PORT"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           os.Getenv("EMAIL_FROM"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.CheckoutSuccessURL == "" {
		cfg.CheckoutSuccessURL = "https://purrductive.app/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if cfg.CheckoutCancelURL == "" {
		cfg.CheckoutCancelURL = "https://purrductive.app"
	}
	if cfg.EmailFrom == "" {
		cfg.EmailFrom = "licenses@purrductive.app"
	}

	// Report every missing variable at once instead of one per failed boot.
	var result *multierror.Error
	if cfg.DatabaseURL == "" {
		result = multierror.Append(result, errors.New("DATABASE_URL environment variable is required"))
	}
	if cfg.StripeSecretKey == "" {
		result = multierror.Append(result, errors.New("STRIPE_SECRET_KEY environment variable is required"))
	}
	if cfg.StripeWebhookSecret == "" {
		result = multierror.Append(result, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required"))
	}

	if cfg.SMTPConfigured() {
		if cfg.SMTPHost == "" || cfg.SMTPPort == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
			result = multierror.Append(result, errors.New("SMTP_HOST, SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD must all be set to enable email"))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SMTPConfigured reports whether any SMTP variable is set. Email sending is
// optional; leaving all four unset disables it.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" || c.SMTPPort != "" || c.SMTPUsername != "" || c.SMTPPassword != ""
}
