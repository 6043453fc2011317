package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mailroom/pkg/apperr"
)

// generateWorkerID creates a unique worker ID using hostname and PID.
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "mailroom"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// Object storage (attachments)
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// IMAP (inbound mailbox)
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPMailbox  string
	PollInterval time.Duration

	// SMTP (outbound, feature-flagged)
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	OutboundEnabled bool

	// OpenAI classification
	OpenAIAPIKey         string
	LLMModel             string
	LLMMaxTokens         int
	LLMTimeout           time.Duration
	AITokensPerHour      int      // hourly token ceiling for the resource guard
	AIMaxConcurrent      int      // concurrent in-flight AI calls
	AIBreakerThreshold   int      // consecutive failures before the breaker opens
	AIBreakerCooldown    time.Duration
	AIFallbackCategories []string // keyword-fallback categories while the breaker is open

	// Routing
	ReviewThreshold float64

	// OCR
	OCRLanguages []string

	// Worker
	WorkerID        string
	WorkerCount     int
	WorkerQueueSize int
	JobMaxRetries   int
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		S3Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "mailroom-attachments"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 90*time.Second),

		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 465),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
		OutboundEnabled: getEnvBool("OUTBOUND_ENABLED", false),

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:       getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTimeout:         getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		AITokensPerHour:    getEnvInt("AI_TOKENS_PER_HOUR", 200000),
		AIMaxConcurrent:    getEnvInt("AI_MAX_CONCURRENT", 4),
		AIBreakerThreshold: getEnvInt("AI_BREAKER_THRESHOLD", 5),
		AIBreakerCooldown:  getEnvDuration("AI_BREAKER_COOLDOWN", 60*time.Second),
		AIFallbackCategories: getEnvSlice("AI_FALLBACK_CATEGORIES",
			[]string{"complaint", "inquiry", "purchase_order"}),

		ReviewThreshold: getEnvFloat("REVIEW_THRESHOLD", 0.8),

		OCRLanguages: getEnvSlice("OCR_LANGUAGES", []string{"ces", "eng"}),

		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:     getEnvInt("WORKER_COUNT", 8),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 500),
		JobMaxRetries:   getEnvInt("JOB_MAX_RETRIES", 3),
	}

	if cfg.DatabaseURL == "" {
		return nil, apperr.Config("DATABASE_URL is required")
	}
	if cfg.IMAPHost == "" {
		return nil, apperr.Config("IMAP_HOST is required")
	}
	// Without Redis the stage dispatcher has nowhere to publish routing
	// plans and the guard counters are process-local. Acceptable on a
	// laptop, not in production.
	if cfg.IsProduction() && cfg.RedisURL == "" {
		return nil, apperr.Config("REDIS_URL is required in production")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
