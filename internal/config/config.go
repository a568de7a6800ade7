package config

import (
	"fmt"
	"time"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/ratelimit"
	pkgconfig "github.com/utafrali/authservice/pkg/config"
	"github.com/utafrali/authservice/pkg/database"
	"github.com/utafrali/authservice/pkg/kafka"
	"github.com/utafrali/authservice/pkg/middleware"
	"github.com/utafrali/authservice/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Refresh token session policies.
const (
	PolicyMulti  = "multi"
	PolicySingle = "single"
)

// Permission sources for the permission guard.
const (
	PermissionSourceStore  = "store"
	PermissionSourceClaims = "claims"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// PostgreSQL. DATABASE_URL wins over the individual fields.
	DatabaseURL        string        `env:"DATABASE_URL"`
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"auth"`
	PostgresPass       string        `env:"POSTGRES_PASSWORD" envDefault:"auth_secret"`
	PostgresDB         string        `env:"POSTGRES_DB" envDefault:"auth"`
	PostgresSSL        string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns   int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresMinConns   int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations      bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis backs the login throttle.
	RedisURL      string `env:"REDIS_URL"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Login throttle
	LoginThrottleEnabled bool          `env:"LOGIN_THROTTLE_ENABLED" envDefault:"true"`
	LoginMaxAttempts     int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow          time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	LoginThrottlePerIP   bool          `env:"LOGIN_THROTTLE_PER_IP" envDefault:"false"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"authservice"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Sessions and authorization
	RefreshTokenPolicy string `env:"REFRESH_TOKEN_POLICY" envDefault:"multi"`
	PermissionSource   string `env:"PERMISSION_SOURCE" envDefault:"store"`
	DefaultRole        string `env:"DEFAULT_ROLE" envDefault:"user"`
	BcryptCost         int    `env:"BCRYPT_COST" envDefault:"10"`
	RefreshCookieName  string `env:"REFRESH_COOKIE_NAME" envDefault:"refresh_token"`

	// Tracing
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`

	// pprof is served only to these networks.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, vars); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.RefreshTokenPolicy {
	case PolicyMulti, PolicySingle:
	default:
		return fmt.Errorf("REFRESH_TOKEN_POLICY must be %q or %q, got %q", PolicyMulti, PolicySingle, c.RefreshTokenPolicy)
	}
	switch c.PermissionSource {
	case PermissionSourceStore, PermissionSourceClaims:
	default:
		return fmt.Errorf("PERMISSION_SOURCE must be %q or %q, got %q", PermissionSourceStore, PermissionSourceClaims, c.PermissionSource)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.LoginThrottleEnabled && (c.LoginMaxAttempts < 1 || c.LoginWindow <= 0) {
		return fmt.Errorf("login throttle needs LOGIN_MAX_ATTEMPTS >= 1 and a positive LOGIN_WINDOW")
	}

	// In non-development environments, require explicitly set, strong JWT secrets.
	if c.Environment != "development" {
		if err := checkSecret("JWT_SECRET", c.JWTSecret, c.Environment); err != nil {
			return err
		}
		if c.JWTRefreshSecret != "" {
			if err := checkSecret("JWT_REFRESH_SECRET", c.JWTRefreshSecret, c.Environment); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkSecret(name, secret, environment string) error {
	if secret == defaultJWTSecret {
		return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, environment)
	}
	if len(secret) < 32 {
		return fmt.Errorf("%s must be at least 32 characters long, got %d", name, len(secret))
	}
	return nil
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.URL = c.DatabaseURL
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.PostgresMaxConns
	pg.MinConns = c.PostgresMinConns
	return pg
}

// Redis returns the Redis client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		URL:      c.RedisURL,
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// LoginThrottle returns the login limiter settings.
func (c *Config) LoginThrottle() ratelimit.Config {
	return ratelimit.Config{
		MaxAttempts: c.LoginMaxAttempts,
		Window:      c.LoginWindow,
		PerIP:       c.LoginThrottlePerIP,
	}
}

// JWT returns the token manager settings.
func (c *Config) JWT() auth.Config {
	return auth.Config{
		Issuer:        c.JWTIssuer,
		AccessSecret:  c.JWTSecret,
		RefreshSecret: c.JWTRefreshSecret,
		AccessTTL:     c.JWTAccessExpiry,
		RefreshTTL:    c.JWTRefreshExpiry,
	}
}

// Kafka returns the producer settings.
func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.DefaultProducerConfig(c.KafkaBrokers)
}

// Tracing returns the tracer settings.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:        c.TracingEnabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		SampleRate:     c.TracingSampleRate,
	}
}

// CORS returns the CORS middleware settings.
func (c *Config) CORS() middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = c.CORSAllowedOrigins
	cors.AllowCredentials = c.CORSAllowCredentials
	return cors
}
