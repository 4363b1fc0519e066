// Package config loads service configuration from BOOKING_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every configuration key.
const Prefix = "BOOKING_"

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort       int           `env:"HTTP_PORT" envDefault:"8080"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"booking.db"`
	WebhookSecret  string        `env:"WEBHOOK_SECRET,required,notEmpty"`
	SettlementHold time.Duration `env:"SETTLEMENT_HOLD" envDefault:"72h"`
	FeeTTL         time.Duration `env:"FEE_TTL" envDefault:"15m"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	RelayInterval  time.Duration `env:"RELAY_INTERVAL" envDefault:"2s"`
	MaxRangeDays   int           `env:"MAX_RANGE_DAYS" envDefault:"62"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"booking.events"`

	OmisePublicKey string `env:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `env:"OMISE_SECRET_KEY"`

	// FeeFeatureAllowlist restricts booking fees to the listed businesses.
	// Empty enables fees for every business that requires one.
	FeeFeatureAllowlist []string `env:"FEE_FEATURE_ALLOWLIST" envSeparator:","`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses configuration values from environ instead of the process
// environment. Keys carry the BOOKING_ prefix.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.FeeFeatureAllowlist = compact(cfg.FeeFeatureAllowlist)
	return cfg, nil
}

// Validate reports every out-of-range value at once.
func (c Config) Validate() error {
	var invalid []string
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, Prefix+"HTTP_PORT")
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		invalid = append(invalid, Prefix+"SQLITE_PATH")
	}
	if n := len(c.WebhookSecret); n == 0 || n > 64 {
		invalid = append(invalid, Prefix+"WEBHOOK_SECRET")
	}
	if c.SettlementHold < 0 {
		invalid = append(invalid, Prefix+"SETTLEMENT_HOLD")
	}
	if c.FeeTTL <= 0 {
		invalid = append(invalid, Prefix+"FEE_TTL")
	}
	if c.SweepInterval <= 0 {
		invalid = append(invalid, Prefix+"SWEEP_INTERVAL")
	}
	if c.RelayInterval <= 0 {
		invalid = append(invalid, Prefix+"RELAY_INTERVAL")
	}
	if c.MaxRangeDays <= 0 {
		invalid = append(invalid, Prefix+"MAX_RANGE_DAYS")
	}
	if (c.OmisePublicKey == "") != (c.OmiseSecretKey == "") {
		invalid = append(invalid, Prefix+"OMISE_PUBLIC_KEY/"+Prefix+"OMISE_SECRET_KEY")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// GatewayConfigured reports whether Omise credentials are present.
func (c Config) GatewayConfigured() bool {
	return c.OmisePublicKey != "" && c.OmiseSecretKey != ""
}

// IsMissing reports whether err was caused by an unset required variable.
func IsMissing(err error) bool {
	return errors.Is(err, env.EnvVarIsNotSetError{}) || errors.Is(err, env.EmptyEnvVarError{})
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
