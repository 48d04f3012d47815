package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Contains(t, cfg.PostgresURL, "localhost:5432")
	assert.Contains(t, cfg.NATSURL, "localhost:4222")
	assert.Contains(t, cfg.RedisURL, "localhost:6379")
	assert.Equal(t, "http://localhost:9002", cfg.S3Endpoint)
	assert.Equal(t, "minioadmin", cfg.S3AccessKey)
	assert.Equal(t, "minioadmin", cfg.S3SecretKey)
	assert.Equal(t, "gsa-blackboard", cfg.S3Bucket)
	assert.False(t, cfg.S3UseSSL)
	assert.True(t, cfg.S3SkipBucketVerification)
	assert.Equal(t, 1000, cfg.QueueMaxLength)
	assert.Equal(t, 3, cfg.MaxMessageTries)
	assert.Equal(t, 1800, cfg.MaxWorkerTimeoutSec)
	assert.Equal(t, 900, cfg.LoadingMaxTimeoutSec)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomEnvVars(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("POSTGRES_URL", "postgres://custom:custom@db:5432/app")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("REDIS_URL", "redis://redis:6379/1")
	t.Setenv("S3_ENDPOINT", "https://s3.amazonaws.com")
	t.Setenv("S3_ACCESS_KEY", "AKIA123")
	t.Setenv("S3_SECRET_KEY", "secret123")
	t.Setenv("S3_BUCKET", "prod-gsa")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("S3_SKIP_BUCKET_VERIFICATION", "false")
	t.Setenv("RABBIT_MAX_QUEUE_LENGTH", "50")
	t.Setenv("MAX_MESSAGE_TRIES", "5")
	t.Setenv("MAX_WORKER_TIMEOUT", "120")
	t.Setenv("LOADING_MAX_TIMEOUT", "60")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.APIPort)
	assert.Equal(t, "postgres://custom:custom@db:5432/app", cfg.PostgresURL)
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.Equal(t, "redis://redis:6379/1", cfg.RedisURL)
	assert.Equal(t, "https://s3.amazonaws.com", cfg.S3Endpoint)
	assert.Equal(t, "AKIA123", cfg.S3AccessKey)
	assert.Equal(t, "secret123", cfg.S3SecretKey)
	assert.Equal(t, "prod-gsa", cfg.S3Bucket)
	assert.True(t, cfg.S3UseSSL)
	assert.False(t, cfg.S3SkipBucketVerification)
	assert.Equal(t, 50, cfg.QueueMaxLength)
	assert.Equal(t, 5, cfg.MaxMessageTries)
	assert.Equal(t, 120, cfg.MaxWorkerTimeoutSec)
	assert.Equal(t, 60, cfg.LoadingMaxTimeoutSec)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Validate_MissingPostgresURL(t *testing.T) {
	cfg := &Config{PostgresURL: "", NATSURL: "nats://localhost:4222", RedisURL: "redis://localhost:6379", QueueMaxLength: 1}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL is required")
}

func TestLoad_Validate_MissingNATSURL(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost:5432/db", NATSURL: "", RedisURL: "redis://localhost:6379", QueueMaxLength: 1}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS_URL is required")
}

func TestLoad_Validate_MissingRedisURL(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost:5432/db", NATSURL: "nats://localhost:4222", RedisURL: "", QueueMaxLength: 1}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL is required")
}

func TestLoad_Validate_NonPositiveQueueLength(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost:5432/db", NATSURL: "nats://localhost:4222", RedisURL: "redis://localhost:6379", QueueMaxLength: 0}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RABBIT_MAX_QUEUE_LENGTH")
}

func TestLoad_Validate_AllPresent(t *testing.T) {
	cfg := &Config{
		PostgresURL:    "postgres://localhost:5432/db",
		NATSURL:        "nats://localhost:4222",
		RedisURL:       "redis://localhost:6379",
		QueueMaxLength: 100,
	}
	err := cfg.validate()
	require.NoError(t, err)
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"staging", false},
		{"production", false},
		{"", false},
		{"dev", false},
	}

	for _, tc := range tests {
		t.Run(tc.env, func(t *testing.T) {
			cfg := &Config{Environment: tc.env}
			assert.Equal(t, tc.want, cfg.IsDevelopment())
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Run("returns env value when set", func(t *testing.T) {
		t.Setenv("TEST_GET_ENV_KEY", "custom_value")
		assert.Equal(t, "custom_value", getEnv("TEST_GET_ENV_KEY", "fallback"))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_GET_ENV_KEY_MISSING")
		assert.Equal(t, "fallback", getEnv("TEST_GET_ENV_KEY_MISSING", "fallback"))
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("returns parsed int when valid", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY", "42")
		assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 99))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_INT_KEY_MISSING")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_MISSING", 99))
	})

	t.Run("returns fallback when invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY_BAD", "not-a-number")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_BAD", 99))
	})
}

func TestGetEnvBool(t *testing.T) {
	t.Run("returns true when set to true", func(t *testing.T) {
		t.Setenv("TEST_BOOL_KEY", "true")
		assert.True(t, getEnvBool("TEST_BOOL_KEY", false))
	})

	t.Run("returns false when set to false", func(t *testing.T) {
		t.Setenv("TEST_BOOL_KEY", "false")
		assert.False(t, getEnvBool("TEST_BOOL_KEY", true))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_BOOL_KEY_MISSING")
		assert.True(t, getEnvBool("TEST_BOOL_KEY_MISSING", true))
	})
}
