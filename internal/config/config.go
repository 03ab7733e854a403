package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BrianStatesThat/thepepassport/internal/models"
)

// Row store backends.
const (
	RowStorePostgres = "postgres"
	RowStoreMongo    = "mongo"
	RowStoreMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	RunMode string // set via flag, not env

	// Row store
	RowStore                 string
	DatabaseURL              string
	DatabaseApplyCredentials bool
	MongoURI                 string
	MongoDbName              string
	MemoryFixture            string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret       string // verifies access tokens and signs X-C-T tokens
	CaptchaTokenTTL time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string
	AllowedOrigin  string

	// Cloudflare
	CloudflareTurnstileSecretKey string
	CloudflareSiteVerifyURL      string

	// Email
	SmtpHost             string
	SmtpPort             int
	SmtpUsername         string
	SmtpPassword         string
	SmtpFromAddress      string
	EnquiryNotifyAddress string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	SitemapS3Key       string
	SitemapPublishCron string

	// Site
	AppName              string
	SiteURL              string
	StoragePublicBaseURL string
	GetCacheTTL          time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
	RouteRateLimits         []models.RouteRateLimit
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{RunMode: runMode}
	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.RowStore = strings.ToLower(getEnv("ROW_STORE", RowStorePostgres))
	switch cfg.RowStore {
	case RowStorePostgres:
		if cfg.DatabaseURL, err = getRequiredEnv("DATABASE_URL"); err != nil {
			return nil, err
		}
	case RowStoreMongo:
		if cfg.MongoURI, err = getRequiredEnv("MONGO_URI"); err != nil {
			return nil, err
		}
	case RowStoreMemory:
	default:
		return nil, fmt.Errorf("invalid ROW_STORE %q: expected postgres, mongo or memory", cfg.RowStore)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "thepepassport")
	cfg.MemoryFixture = getEnv("MEMORY_FIXTURE", "fixtures/demo.yaml")

	cfg.DatabaseApplyCredentials, err = strconv.ParseBool(getEnv("DATABASE_APPLY_CREDENTIALS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_APPLY_CREDENTIALS: %w", err)
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	captchaTTLSeconds, err := strconv.ParseInt(getEnv("CAPTCHA_TOKEN_TTL", "1200"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTCHA_TOKEN_TTL: %w", err)
	}
	cfg.CaptchaTokenTTL = time.Duration(captchaTTLSeconds) * time.Second

	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", "*")
	cfg.CloudflareTurnstileSecretKey = getEnv("CLOUDFLARE_TURNSTILE_SECRET_KEY", "")
	cfg.CloudflareSiteVerifyURL = getEnv("CLOUDFLARE_SITEVERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@thepepassport.co.za")
	cfg.EnquiryNotifyAddress = getEnv("ENQUIRY_NOTIFY_ADDRESS", "hello@thepepassport.co.za")
	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "af-south-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.SitemapS3Key = getEnv("SITEMAP_S3_KEY", "sitemap.xml")
	cfg.SitemapPublishCron = getEnv("SITEMAP_PUBLISH_CRON", "@every 1h")

	cfg.AppName = getEnv("APP_NAME", "The PE Passport")
	cfg.SiteURL = strings.TrimRight(getEnv("SITE_URL", "https://thepepassport.co.za"), "/")
	cfg.StoragePublicBaseURL = strings.TrimRight(getEnv("STORAGE_PUBLIC_BASE_URL", ""), "/")

	getCacheTTLSeconds, err := strconv.ParseInt(getEnv("GET_CACHE_TTL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GET_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.GetCacheTTL = time.Duration(getCacheTTLSeconds) * time.Second

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}
	if path := getEnv("RATE_LIMITS_FILE", ""); path != "" {
		cfg.RouteRateLimits, err = LoadRouteRateLimits(path)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadRouteRateLimits reads per-route bucket overrides from a YAML file.
func LoadRouteRateLimits(path string) ([]models.RouteRateLimit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMITS_FILE: %w", err)
	}
	return ParseRouteRateLimits(data)
}

func ParseRouteRateLimits(data []byte) ([]models.RouteRateLimit, error) {
	var doc struct {
		Routes []models.RouteRateLimit `yaml:"routes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid rate limits: %w", err)
	}
	for _, r := range doc.Routes {
		if strings.TrimSpace(r.Route) == "" {
			return nil, fmt.Errorf("invalid rate limits: route is required")
		}
	}
	return doc.Routes, nil
}
