package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Portal   PortalConfig
	Billing  BillingConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	PublicBaseURL      string // used to build portal links in emails
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret            string
	ExpireHours       int // staff sessions
	PortalExpireHours int // owner portal sessions
}

// AWSConfig holds AWS credentials and the documents bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Endpoint             string // optional, for S3-compatible stores
	DocumentsBucket      string
	PresignExpireMinutes int
}

// StripeConfig for subscription billing. An empty SecretKey runs billing offline.
type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	PortalReturnURL string
	// PriceTiers maps a Stripe price id to a tier name, from STRIPE_PRICE_TIERS="price_a=starter,price_b=pro".
	PriceTiers map[string]string
}

// EmailConfig for SMTP. An empty SMTPHost disables sending.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
}

// PortalConfig holds owner portal invitation settings.
type PortalConfig struct {
	InviteExpireHours int
}

// BillingConfig holds tier cache and sync settings.
type BillingConfig struct {
	TierCacheSize int
	TierCacheTTL  time.Duration
	SyncSchedule  string // cron spec for the worker's subscription sync
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	MetricsPort string // "off" disables the worker's /metrics listener
}

// MetricsEnabled reports whether the worker should serve /metrics.
func (c WorkerConfig) MetricsEnabled() bool {
	return c.MetricsPort != "" && c.MetricsPort != "off"
}

// Enabled reports whether an SMTP relay is configured.
func (c EmailConfig) Enabled() bool { return c.SMTPHost != "" }

// Enabled reports whether Stripe credentials are configured.
func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cacheTTL, err := time.ParseDuration(getEnv("TIER_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("TIER_CACHE_TTL: %w", err)
	}
	priceTiers, err := parsePriceTiers(getEnv("STRIPE_PRICE_TIERS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "stratum"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours:       getEnvInt("JWT_EXPIRE_HOURS", 24),
			PortalExpireHours: getEnvInt("JWT_PORTAL_EXPIRE_HOURS", 12),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "ap-southeast-2"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			DocumentsBucket:      getEnv("AWS_S3_DOCUMENTS_BUCKET", "stratum-documents"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Stripe: StripeConfig{
			SecretKey:       getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:   getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PortalReturnURL: getEnv("STRIPE_PORTAL_RETURN_URL", "http://localhost:3000/settings/billing"),
			PriceTiers:      priceTiers,
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Stratum"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
		},
		Portal: PortalConfig{
			InviteExpireHours: getEnvInt("PORTAL_INVITE_EXPIRE_HOURS", 72),
		},
		Billing: BillingConfig{
			TierCacheSize: getEnvInt("TIER_CACHE_SIZE", 1024),
			TierCacheTTL:  cacheTTL,
			SyncSchedule:  getEnv("BILLING_SYNC_SCHEDULE", "@every 6h"),
		},
		Worker: WorkerConfig{
			MetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		},
	}
	return cfg, nil
}

func parsePriceTiers(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitTrim(s, ",") {
		price, tier, ok := strings.Cut(pair, "=")
		price, tier = strings.TrimSpace(price), strings.TrimSpace(tier)
		if !ok || price == "" || tier == "" {
			return nil, fmt.Errorf("STRIPE_PRICE_TIERS: malformed entry %q", pair)
		}
		out[price] = tier
	}
	return out, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
