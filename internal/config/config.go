// Package config provides configuration loading and validation for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration. It is built once at process start
// and passed into each component constructor; business logic never reads the
// environment directly.
type Config struct {
	// AWS
	AWSRegion  string
	BucketName string

	// Entity store (the external CRUD REST service for questions/answers)
	EntityStoreURL string

	// Server
	ServerPort    int
	CleanupAPIKey string
	SNSTopicARN   string

	// Transcription
	DefaultLanguage string
	CleanupDays     int

	Polling Polling
	Fetch   FetchRetry
}

// Polling configures the status poller.
type Polling struct {
	MaxRetries           int           // total poll attempts before giving up
	BackoffBase          time.Duration // first delay between polls
	BackoffMax           time.Duration // cap on the backoff delay
	BackoffMultiplier    float64       // exponential growth factor
	StatusUpdateInterval int           // notify caller every N polls
	NetworkMaxRetries    int           // transport-failure retries per poll
	NetworkRetryDelay    time.Duration // fixed delay between transport retries
}

// FetchRetry configures the eventual-consistency retry loop for reading
// transcript JSON out of S3 shortly after the engine deposits it.
type FetchRetry struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// Load loads configuration from environment variables, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		AWSRegion:      getEnvString("AWS_REGION", "eu-central-1"),
		BucketName:     getEnvString("BUCKET_NAME", "reson-assets"),
		EntityStoreURL: getEnvString("ENTITY_STORE_URL", "http://localhost:3001/reson-api"),
		ServerPort:     getEnvInt("SERVER_PORT", 8080),
		CleanupAPIKey:  getEnvString("TRANSCRIPTION_CLEANUP_API_KEY", ""),
		SNSTopicARN:    getEnvString("TRANSCRIPTION_SNS_TOPIC_ARN", ""),

		DefaultLanguage: getEnvString("TRANSCRIPTION_LANGUAGE", "en-US"),
		CleanupDays:     getEnvInt("TRANSCRIPTION_CLEANUP_DAYS", 30),

		Polling: Polling{
			MaxRetries:           getEnvInt("TRANSCRIPTION_MAX_RETRIES", 60),
			BackoffBase:          getEnvDuration("TRANSCRIPTION_BACKOFF_BASE", 5*time.Second),
			BackoffMax:           getEnvDuration("TRANSCRIPTION_BACKOFF_MAX", 30*time.Second),
			BackoffMultiplier:    getEnvFloat("TRANSCRIPTION_BACKOFF_MULTIPLIER", 1.2),
			StatusUpdateInterval: getEnvInt("TRANSCRIPTION_STATUS_UPDATE_INTERVAL", 12),
			NetworkMaxRetries:    getEnvInt("TRANSCRIPTION_NETWORK_MAX_RETRIES", 3),
			NetworkRetryDelay:    getEnvDuration("TRANSCRIPTION_NETWORK_RETRY_DELAY", 5*time.Second),
		},

		Fetch: FetchRetry{
			MaxRetries:   getEnvInt("TRANSCRIPT_FETCH_MAX_RETRIES", 5),
			InitialDelay: getEnvDuration("TRANSCRIPT_FETCH_INITIAL_DELAY", 2*time.Second),
		},
	}
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.AWSRegion == "" {
		return fmt.Errorf("config error: AWS_REGION must not be empty")
	}
	if c.BucketName == "" {
		return fmt.Errorf("config error: BUCKET_NAME must not be empty")
	}
	if c.EntityStoreURL == "" {
		return fmt.Errorf("config error: ENTITY_STORE_URL must not be empty")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config error: SERVER_PORT out of range: %d", c.ServerPort)
	}
	if c.Polling.MaxRetries <= 0 {
		return fmt.Errorf("config error: TRANSCRIPTION_MAX_RETRIES must be positive")
	}
	if c.Polling.BackoffMultiplier < 1.0 {
		return fmt.Errorf("config error: TRANSCRIPTION_BACKOFF_MULTIPLIER must be >= 1.0")
	}
	if c.Polling.BackoffBase <= 0 || c.Polling.BackoffMax < c.Polling.BackoffBase {
		return fmt.Errorf("config error: backoff base/max misconfigured")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("config error: TRANSCRIPT_FETCH_MAX_RETRIES must be non-negative")
	}
	if c.CleanupDays <= 0 {
		return fmt.Errorf("config error: TRANSCRIPTION_CLEANUP_DAYS must be positive")
	}
	return nil
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as a float with a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
