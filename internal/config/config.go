// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	URL             string        `json:"url"`
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"sslmode"`
	MaxConns        int32         `json:"max_conns"`
	MinConns        int32         `json:"min_conns"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime"`
}

// DSN returns DATABASE_URL when set, otherwise a URL assembled from the
// discrete DB_* settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type Config struct {
	Env      string         `json:"env"`
	Database DatabaseConfig `json:"database"`
	JWT      struct {
		Secret       string        `json:"secret"`
		Issuer       string        `json:"issuer"`
		ExpiryPeriod time.Duration `json:"expiry_period"`
	} `json:"jwt"`
	Auth struct {
		ServiceRoleKey  string `json:"service_role_key"`
		OnboardingToken string `json:"onboarding_token"`
	} `json:"auth"`
	Server struct {
		Port            string        `json:"port"`
		ReadTimeout     time.Duration `json:"read_timeout"`
		WriteTimeout    time.Duration `json:"write_timeout"`
		ShutdownTimeout time.Duration `json:"shutdown_timeout"`
		AllowedOrigins  []string      `json:"allowed_origins"`

		// TrustProxyHeaders takes the client address from X-Forwarded-For /
		// X-Real-IP. Enable only behind a proxy that sets them.
		TrustProxyHeaders bool `json:"trust_proxy_headers"`
	} `json:"server"`
	Sendgrid struct {
		APIKey string `json:"api_key"`
		From   string `json:"from"`
	} `json:"sendgrid"`
	SMTP  SMTPConfig `json:"smtp"`
	Redis struct {
		URL           string        `json:"url"`
		RateLimit     int           `json:"rate_limit"`
		RateLimitSpan time.Duration `json:"rate_limit_span"`
	} `json:"redis"`
	Telemetry struct {
		Endpoint    string `json:"endpoint"`
		ServiceName string `json:"service_name"`
		Version     string `json:"version"`
	} `json:"telemetry"`
	Invitations struct {
		SweepInterval time.Duration `json:"sweep_interval"`
	} `json:"invitations"`
	Cache struct {
		Size int           `json:"size"`
		TTL  time.Duration `json:"ttl"`
	} `json:"cache"`
	Permify struct {
		Host          string `json:"host"`
		Tenant        string `json:"tenant"`
		SchemaVersion string `json:"schema_version"`
	} `json:"permify"`
	LogLevel     string `json:"log_level"`
	LogAddSource bool   `json:"log_add_source"`
	BaseURL      string `json:"base_url"`
}

// Load reads configuration from the environment. In development a .env file
// in the working directory is loaded first; real environment variables win.
func Load() *Config {
	if getEnv("APP_ENV", "development") == "development" {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	cfg.Env = getEnv("APP_ENV", "development")

	// Database configuration
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnv("DB_PORT", "5432")
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "tenantkit")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 20))
	cfg.Database.MinConns = int32(getEnvInt("DB_MIN_CONNS", 2))
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour)

	// JWT configuration
	cfg.JWT.Secret = getEnv("JWT_SECRET", "your-secret-key")
	cfg.JWT.Issuer = getEnv("JWT_ISSUER", "tenantkit")
	cfg.JWT.ExpiryPeriod = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

	cfg.Auth.ServiceRoleKey = getEnv("SERVICE_ROLE_KEY", "")
	cfg.Auth.OnboardingToken = getEnv("ONBOARDING_TOKEN", "")

	// Sendgrid configuration
	cfg.Sendgrid.APIKey = getEnv("SENDGRID_API_KEY", "")
	cfg.Sendgrid.From = getEnv("SENDGRID_FROM", "")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.Port = getEnvInt("SMTP_PORT", 587)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", "")

	// Server configuration
	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.Server.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.Server.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)

	cfg.Redis.URL = getEnv("REDIS_URL", "")
	cfg.Redis.RateLimit = getEnvInt("RATE_LIMIT", 20)
	cfg.Redis.RateLimitSpan = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)

	cfg.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", "tenantkit")
	cfg.Telemetry.Version = getEnv("OTEL_SERVICE_VERSION", "dev")

	cfg.Invitations.SweepInterval = getEnvDuration("INVITATION_SWEEP_INTERVAL", 15*time.Minute)

	cfg.Cache.Size = getEnvInt("SETTINGS_CACHE_SIZE", 128)
	cfg.Cache.TTL = getEnvDuration("SETTINGS_CACHE_TTL", 5*time.Minute)

	cfg.Permify.Host = getEnv("PERMIFY_HOST", "")
	cfg.Permify.Tenant = getEnv("PERMIFY_TENANT", "t1")
	cfg.Permify.SchemaVersion = getEnv("PERMIFY_SCHEMA_VERSION", "")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogAddSource = getEnvBool("LOG_ADD_SOURCE", true)
	cfg.BaseURL = getEnv("BASE_URL", "http://localhost:3000")

	return cfg
}

// Validate reports settings that make the API unusable.
func (c *Config) Validate() error {
	if c.Env != "development" && c.JWT.Secret == "your-secret-key" {
		return fmt.Errorf("JWT_SECRET must be set outside development")
	}
	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog; unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
