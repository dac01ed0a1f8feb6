package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Billing   BillingConfig
	Gate      GateConfig
	Reconcile ReconcileConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FrontendURL     string
	Environment     string
	StaticDir       string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// AuthConfig contains session cookie configuration
type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	// Access tokens expiring within this window are re-issued.
	RefreshWindow     time.Duration
	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	CookieSecure      bool
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// BillingConfig contains billing provider configuration
type BillingConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	// SuccessURL must contain the {CHECKOUT_SESSION_ID} placeholder.
	SuccessURL  string
	CancelURL   string
	CallTimeout time.Duration
	// ExposeProviderErrors passes provider messages through to API callers.
	ExposeProviderErrors bool
	CheckoutGuardTTL     time.Duration
	// PricePlans maps provider price ids to plan labels.
	PricePlans map[string]string
}

// GateConfig contains access gate route configuration
type GateConfig struct {
	AuthPrefixes      []string
	ProtectedPrefixes []string
	SignInPath        string
	DashboardPath     string
}

// ReconcileConfig contains periodic entitlement refresh configuration
type ReconcileConfig struct {
	Enabled        bool
	Schedule       string
	StalenessBound time.Duration
	BatchSize      int
}

// CheckoutSessionPlaceholder is substituted by the billing provider with the
// id of the completed checkout session.
const CheckoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	env := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
			Environment:     env,
			StaticDir:       getEnv("SERVER_STATIC_DIR", ""),
			RateLimitRPS:    getEnvAsFloat("SERVER_RATE_LIMIT_RPS", 50),
			RateLimitBurst:  getEnvAsInt("SERVER_RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "bizdesk"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./bizdesk.db"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", DefaultJWTSecret),
			AccessTokenExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			RefreshWindow:      getEnvAsDuration("SESSION_REFRESH_WINDOW", 5*time.Minute),
			AccessCookieName:   getEnv("SESSION_ACCESS_COOKIE", "bd_access"),
			RefreshCookieName:  getEnv("SESSION_REFRESH_COOKIE", "bd_refresh"),
			CookieDomain:       getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure:       getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Billing: BillingConfig{
			StripeAPIKey:         getEnv("STRIPE_API_KEY", ""),
			StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:           getEnv("BILLING_SUCCESS_URL", "http://localhost:3000/dashboard?session_id="+CheckoutSessionPlaceholder),
			CancelURL:            getEnv("BILLING_CANCEL_URL", "http://localhost:3000/pricing"),
			CallTimeout:          getEnvAsDuration("BILLING_TIMEOUT", 10*time.Second),
			ExposeProviderErrors: getEnvAsBool("BILLING_EXPOSE_PROVIDER_ERRORS", env != "production"),
			CheckoutGuardTTL:     getEnvAsDuration("BILLING_CHECKOUT_GUARD_TTL", 30*time.Second),
			PricePlans:           getEnvAsMap("BILLING_PRICE_PLANS", nil),
		},
		Gate: GateConfig{
			AuthPrefixes:      getEnvAsSlice("GATE_AUTH_PREFIXES", []string{"/signin", "/signup"}),
			ProtectedPrefixes: getEnvAsSlice("GATE_PROTECTED_PREFIXES", []string{"/dashboard"}),
			SignInPath:        getEnv("GATE_SIGNIN_PATH", "/signin"),
			DashboardPath:     getEnv("GATE_DASHBOARD_PATH", "/dashboard"),
		},
		Reconcile: ReconcileConfig{
			Enabled:        getEnvAsBool("RECONCILE_ENABLED", true),
			Schedule:       getEnv("RECONCILE_SCHEDULE", "@every 15m"),
			StalenessBound: getEnvAsDuration("RECONCILE_STALENESS_BOUND", 6*time.Hour),
			BatchSize:      getEnvAsInt("RECONCILE_BATCH_SIZE", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultJWTSecret is the development-only session signing secret
const DefaultJWTSecret = "dev-session-secret"

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.IsProduction() && c.Auth.JWTSecret == DefaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must not use the default value in production")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if !strings.Contains(c.Billing.SuccessURL, CheckoutSessionPlaceholder) {
		return fmt.Errorf("BILLING_SUCCESS_URL must contain %s", CheckoutSessionPlaceholder)
	}
	if c.Billing.CancelURL == "" {
		return fmt.Errorf("BILLING_CANCEL_URL must be set")
	}
	if c.Billing.CallTimeout <= 0 {
		return fmt.Errorf("BILLING_TIMEOUT must be positive")
	}

	if c.Gate.SignInPath == "" || c.Gate.DashboardPath == "" {
		return fmt.Errorf("gate signin and dashboard paths must be set")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads a comma separated list
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsMap reads "k1=v1,k2=v2"
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(valueStr, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
