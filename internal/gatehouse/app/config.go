package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Domain         string   // Required: issuer claim for tokens (the application's own domain)
	AllowedOrigins []string // Required: origins tokens may be issued to / presented from

	AccessTokenAlgorithm  string        // Optional: signing algorithm for access tokens (HS256/384/512, RS256/384/512) (default: HS256)
	AccessTokenSecret     string        // HMAC secret for access tokens (HMAC algorithms)
	AccessTokenKeyFile    string        // PEM private key path (RSA algorithms)
	AccessTokenTTL        time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTokenAlgorithm string        // Optional: signing algorithm for refresh tokens (default: HS512)
	RefreshTokenSecret    string        // HMAC secret for refresh tokens
	RefreshTokenKeyFile   string        // PEM private key path (RSA algorithms)
	RefreshTokenTTL       time.Duration // Optional: refresh token lifetime (default: 168h)

	FingerprintAlgorithm string // Optional: HMAC hash for session fingerprints (sha256, sha512) (default: sha256)
	MasterKey            string // Required: key material sealing per-account authorization keys

	DatabaseFile string // Optional: path to SQLite database file (default: ./gatehouse.db)
	RedisAddr    string // Optional: Redis address for cache and queue (default: localhost:6379)

	RateLimitStrategy     string        // Optional: "sliding" or "growing" (default: sliding)
	RateLimitRequests     int           // Optional: permitted requests per window (default: 100)
	RateLimitWindow       time.Duration // Optional: window size (default: 1m)
	RateLimitMaxDoublings int           // Optional: growth cap for the growing strategy (default: 5)

	SMTPAddr      string  // Optional: SMTP relay (host:port); empty disables the mail worker
	SMTPFrom      string  // Optional: From address for outbound mail
	MailQueueName string  // Optional: Redis list the mail queue lives on (default: gatehouse:mail)
	MailPerSecond float64 // Optional: outbound mail throttle (default: 1)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	SecureCookies       bool          // Set the Secure attribute on the context cookie (default: true outside dev)
}

func LoadConfig() Config {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Domain:         os.Getenv("GATEHOUSE_DOMAIN"),
		AllowedOrigins: splitList(os.Getenv("GATEHOUSE_ALLOWED_ORIGINS")),

		AccessTokenAlgorithm:  getEnvOrDefault("GATEHOUSE_ACCESS_TOKEN_ALGORITHM", "HS256"),
		AccessTokenSecret:     os.Getenv("GATEHOUSE_ACCESS_TOKEN_SECRET"),
		AccessTokenKeyFile:    os.Getenv("GATEHOUSE_ACCESS_TOKEN_KEY_FILE"),
		AccessTokenTTL:        getEnvDurationOrDefault("GATEHOUSE_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenAlgorithm: getEnvOrDefault("GATEHOUSE_REFRESH_TOKEN_ALGORITHM", "HS512"),
		RefreshTokenSecret:    os.Getenv("GATEHOUSE_REFRESH_TOKEN_SECRET"),
		RefreshTokenKeyFile:   os.Getenv("GATEHOUSE_REFRESH_TOKEN_KEY_FILE"),
		RefreshTokenTTL:       getEnvDurationOrDefault("GATEHOUSE_REFRESH_TOKEN_TTL", 7*24*time.Hour),

		FingerprintAlgorithm: getEnvOrDefault("GATEHOUSE_FINGERPRINT_ALGORITHM", "sha256"),
		MasterKey:            os.Getenv("GATEHOUSE_MASTER_KEY"),

		DatabaseFile: getEnvOrDefault("GATEHOUSE_DATABASE_FILE", "gatehouse.db"),
		RedisAddr:    getEnvOrDefault("GATEHOUSE_REDIS_ADDR", "localhost:6379"),

		RateLimitStrategy:     getEnvOrDefault("RATELIMIT_STRATEGY", "sliding"),
		RateLimitRequests:     getEnvIntOrDefault("RATELIMIT_REQUESTS", 100),
		RateLimitWindow:       getEnvDurationOrDefault("RATELIMIT_WINDOW", time.Minute),
		RateLimitMaxDoublings: getEnvIntOrDefault("RATELIMIT_MAX_DOUBLINGS", 5),

		SMTPAddr:      os.Getenv("SMTP_ADDR"),
		SMTPFrom:      getEnvOrDefault("SMTP_FROM", "no-reply@localhost"),
		MailQueueName: getEnvOrDefault("MAIL_QUEUE", "gatehouse:mail"),
		MailPerSecond: getEnvFloatOrDefault("MAIL_PER_SECOND", 1),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	cfg.SecureCookies = cfg.Env != "dev"
	if v := os.Getenv("GATEHOUSE_SECURE_COOKIES"); v != "" {
		cfg.SecureCookies = v == "true" || v == "1"
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
		return floatValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Duration syntax first (e.g. "1h", "30m", "90s").
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Fall back to integer seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
