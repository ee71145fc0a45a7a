// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	LogLevel           string
	GoogleCloudProject string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64

	CAKeyPath         string
	CACertPath        string
	CAKeyKMSEncrypted bool
	KMSKeyName        string

	NonceBackend       string
	NonceSweepInterval time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	NotifyWebhookURL  string
	NotifyWebhookAuth string
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "pki-ca-service"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),

		CAKeyPath:         getEnv("CA_KEY_PATH", "ca.key"),
		CACertPath:        getEnv("CA_CERT_PATH", "ca.crt"),
		CAKeyKMSEncrypted: getEnvBool("CA_KEY_KMS_ENCRYPTED", false),
		KMSKeyName:        os.Getenv("KMS_KEY_NAME"),

		NonceBackend:       getEnv("NONCE_BACKEND", "memory"),
		NonceSweepInterval: getEnvDuration("NONCE_SWEEP_INTERVAL", time.Minute),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		NotifyWebhookURL:  os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookAuth: os.Getenv("NOTIFY_WEBHOOK_AUTH"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if i, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return i
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultVal
}
