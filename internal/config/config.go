package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Links    LinkConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret            string
	AccessTokenExpiry    time.Duration
	CleanupInterval      time.Duration
	LockoutMaxAttempts   int
	LockoutDuration      time.Duration
	LoginHistoryTTL      time.Duration
	AuditRetentionDays   int
	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
}

type LinkConfig struct {
	CodeTTL             time.Duration
	QRTokenTTL          time.Duration
	VerificationURLBase string
}

type EmailConfig struct {
	Provider    string // "ses" or "log"
	AWSRegion   string
	FromAddress string
	SendTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "osnovci:"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
			LockoutMaxAttempts:   getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:      getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			LoginHistoryTTL:      getEnvAsDuration("LOGIN_HISTORY_TTL", 30*24*time.Hour),
			AuditRetentionDays:   getEnvAsInt("AUDIT_RETENTION_DAYS", 365),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 500),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		Links: LinkConfig{
			CodeTTL:             getEnvAsDuration("LINK_CODE_TTL", 24*time.Hour),
			QRTokenTTL:          getEnvAsDuration("LINK_QR_TTL", 10*time.Minute),
			VerificationURLBase: getEnv("LINK_VERIFICATION_URL_BASE", "http://localhost:3000"),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", defaultEmailProvider(env)),
			SendTimeout: getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
			AWSRegion:   getEnv("AWS_REGION", "eu-central-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@osnovci.local"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, errMissingDBPassword
	}

	if cfg.Auth.LockoutMaxAttempts < 1 {
		return nil, fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1 (got %d)", cfg.Auth.LockoutMaxAttempts)
	}

	if cfg.Auth.LockoutDuration <= 0 {
		return nil, fmt.Errorf("LOCKOUT_DURATION must be positive")
	}

	if cfg.Email.Provider != "ses" && cfg.Email.Provider != "log" {
		return nil, fmt.Errorf("EMAIL_PROVIDER must be \"ses\" or \"log\" (got %q)", cfg.Email.Provider)
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

var errMissingDBPassword = fmt.Errorf("DB_PASSWORD is required")

// LoadDatabase reads only the database settings. Used by the migrate command,
// which does not need the API secrets.
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := loadDatabaseConfig()
	if cfg.Password == "" {
		return nil, errMissingDBPassword
	}
	return &cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "osnovci"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultEmailProvider(env string) string {
	if env == "production" {
		return "ses"
	}
	return "log"
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
