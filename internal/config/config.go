package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port       string
	Env        string
	LogLevel   string
	LogFile    string
	AppVersion string

	// Records persistence
	DatabaseURL    string
	RecordsBackend string

	// Local store (Redis)
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	LocalKeyPrefix string

	// Remote records API used by the client-side workspace
	RemoteBaseURL             string
	RemoteToken               string
	RemoteTimeout             time.Duration
	RemoteRetryCount          int
	ConnectivityCheckInterval time.Duration

	// HTTP surface
	CORSAllowedOrigins []string
	APIJWTSecret       string
	ImportRateLimit    float64
	ImportRateBurst    int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BackupBucket        string

	// Email digest
	EmailProvider   string
	SendGridAPIKey  string
	EmailFrom       string
	EmailFromName   string
	DigestRecipient string
	DigestSchedule  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
		AppVersion: getEnv("APP_VERSION", "2.0"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RecordsBackend: strings.ToLower(strings.TrimSpace(getEnv("RECORDS_BACKEND", "postgres"))),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		LocalKeyPrefix: getEnv("LOCAL_KEY_PREFIX", "practice"),

		RemoteBaseURL:             strings.TrimRight(getEnv("REMOTE_BASE_URL", ""), "/"),
		RemoteToken:               getEnv("REMOTE_TOKEN", ""),
		RemoteTimeout:             getEnvAsDuration("REMOTE_TIMEOUT", 10*time.Second),
		RemoteRetryCount:          getEnvAsInt("REMOTE_RETRY_COUNT", 2),
		ConnectivityCheckInterval: getEnvAsDuration("CONNECTIVITY_CHECK_INTERVAL", 30*time.Second),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		APIJWTSecret:       getEnv("API_JWT_SECRET", ""),
		ImportRateLimit:    getEnvAsFloat("IMPORT_RATE_LIMIT", 1),
		ImportRateBurst:    getEnvAsInt("IMPORT_RATE_BURST", 5),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BackupBucket:        getEnv("BACKUP_BUCKET", ""),

		EmailProvider:   strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:       getEnv("EMAIL_FROM", ""),
		EmailFromName:   getEnv("EMAIL_FROM_NAME", "Practice Records"),
		DigestRecipient: getEnv("DIGEST_RECIPIENT", ""),
		DigestSchedule:  getEnv("DIGEST_SCHEDULE", ""),
	}
}

// UsePostgres reports whether the records repository should be backed by Postgres.
func (c *Config) UsePostgres() bool {
	return c.RecordsBackend != "memory" && strings.TrimSpace(c.DatabaseURL) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
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
