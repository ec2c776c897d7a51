package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer        string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL       string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience      string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey    string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
	MaxUploadBytes    int64    `mapstructure:"MAX_UPLOAD_BYTES"`
	MetricsPort       string   `mapstructure:"METRICS_PORT"`
	PerplexityAPIKey  string   `mapstructure:"PERPLEXITY_API_KEY"`
	PerplexityAPIURL  string   `mapstructure:"PERPLEXITY_API_URL"`
	PerplexityModel   string   `mapstructure:"PERPLEXITY_MODEL"`
	ExternalSourceURL string   `mapstructure:"EXTERNAL_SOURCE_URL"`
	AlertWebhookURLs  string   `mapstructure:"ALERT_WEBHOOK_URLS"`
	AlertWebhookKey   string   `mapstructure:"ALERT_WEBHOOK_SECRET"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MAX_UPLOAD_BYTES",
	"METRICS_PORT", "PERPLEXITY_API_KEY", "PERPLEXITY_API_URL", "PERPLEXITY_MODEL",
	"EXTERNAL_SOURCE_URL", "ALERT_WEBHOOK_URLS", "ALERT_WEBHOOK_SECRET",
}

// Load reads configuration from the environment and an optional .env file.
// DATABASE_URL is required.
func Load() (*Config, error) {
	cfg, err := LoadWithoutDatabase()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadWithoutDatabase is Load minus the DATABASE_URL requirement, for
// commands that never touch the store.
func LoadWithoutDatabase() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "4000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("PERPLEXITY_API_URL", "https://api.perplexity.ai/chat/completions")
	v.SetDefault("PERPLEXITY_MODEL", "sonar")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthIssuer == "" {
		log.Warn().Msg("development mode without AUTH_SIGNING_KEY or AUTH_ISSUER: unauthenticated requests run as admin")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer tokens are verified. Outside
// development this is always true once Validate has passed.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != "" || c.AuthIssuer != "" || c.AuthJWKSURL != ""
}

// ExtractionEnabled reports whether the LLM extraction pipeline can be used.
func (c *Config) ExtractionEnabled() bool {
	return c.PerplexityAPIKey != ""
}

// AlertEndpoints splits ALERT_WEBHOOK_URLS on commas, dropping blanks.
func (c *Config) AlertEndpoints() []string {
	var out []string
	for _, u := range strings.Split(c.AlertWebhookURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && !c.AuthEnabled() {
		return fmt.Errorf(
			"one of AUTH_SIGNING_KEY, AUTH_ISSUER or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.AuthEnabled() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL is required to verify tokens")
	}
	if c.IsProduction() && c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes in production, got %d", len(c.AuthSigningKey))
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if len(c.AlertEndpoints()) > 0 && c.AlertWebhookKey == "" {
		return fmt.Errorf("ALERT_WEBHOOK_SECRET is required when ALERT_WEBHOOK_URLS is set")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
