package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	PostgresURI string
	RedisURI    string

	// QueueDisabled switches the job queue to the in-memory implementation.
	// Jobs do not survive a restart in that mode.
	QueueDisabled     bool
	WorkerConcurrency int
	PublishMaxRetry   int
	RetryBaseDelay    time.Duration

	SweepInterval      time.Duration
	SweepRetryInterval time.Duration

	ScheduleHorizonDays int
	BusinessHoursStart  int
	BusinessHoursEnd    int
	TargetPublishDelay  time.Duration

	PlatformBaseURL  string
	PlatformTokenURL string
	PlatformClientID string
	PlatformSecret   string
	PlatformTimeout  time.Duration

	R2        R2
	SecretKey string
	APIKey    string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI:         getEnv("POSTGRES_URI", ""),
		RedisURI:            getEnv("REDIS_URI", "localhost:6379"),
		QueueDisabled:       getEnvBool("QUEUE_DISABLED", false),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 5),
		PublishMaxRetry:     getEnvInt("PUBLISH_MAX_ATTEMPTS", 3),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", 30*time.Second),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepRetryInterval:  getEnvDuration("SWEEP_RETRY_INTERVAL", time.Minute),
		ScheduleHorizonDays: getEnvInt("SCHEDULE_HORIZON_DAYS", 182),
		BusinessHoursStart:  getEnvInt("BUSINESS_HOURS_START", 8),
		BusinessHoursEnd:    getEnvInt("BUSINESS_HOURS_END", 22),
		TargetPublishDelay:  getEnvDuration("TARGET_PUBLISH_DELAY", 2*time.Second),
		PlatformBaseURL:     getEnv("PLATFORM_BASE_URL", ""),
		PlatformTokenURL:    getEnv("PLATFORM_TOKEN_URL", ""),
		PlatformClientID:    getEnv("PLATFORM_CLIENT_ID", ""),
		PlatformSecret:      getEnv("PLATFORM_CLIENT_SECRET", ""),
		PlatformTimeout:     getEnvDuration("PLATFORM_TIMEOUT", 30*time.Second),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey: getEnv("SECRET_KEY", ""),
		APIKey:    getEnv("API_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
