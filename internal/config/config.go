package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr       string
	HealthAddr     string
	PostgresDSN    string
	LogLevel       string
	APIKey         string
	MaxUploadBytes int

	TemporalAddress   string
	TemporalNamespace string
	TaskQueue         string

	BlobBackend string
	EvidenceDir string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3UseSSL    bool

	PackageDir   string
	InboxDir     string
	InboxWorkers int

	SourcesConfig string
	PolicyDir     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LeaseTTL      time.Duration

	NotifyChannel      string
	NotifyAlertChannel string

	DueLimit           int
	EvidenceWindowDays int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:           envDefault("HTTP_ADDR", ":8080"),
		HealthAddr:         envDefault("HEALTH_ADDR", ":8090"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		LogLevel:           envDefault("LOG_LEVEL", "info"),
		APIKey:             os.Getenv("API_KEY"),
		MaxUploadBytes:     envIntDefault("MAX_UPLOAD_BYTES", 64<<20),
		TemporalAddress:    envDefault("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:  envDefault("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:          envDefault("TEMPORAL_TASK_QUEUE", "grc-compliance"),
		BlobBackend:        envDefault("BLOB_BACKEND", "fs"),
		EvidenceDir:        envDefault("EVIDENCE_DIR", "./data/evidence"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           envDefault("S3_BUCKET", "grc-evidence"),
		S3Prefix:           os.Getenv("S3_PREFIX"),
		S3UseSSL:           envBoolDefault("S3_USE_SSL", true),
		PackageDir:         envDefault("PACKAGE_DIR", "./data/packages"),
		InboxDir:           os.Getenv("INBOX_DIR"),
		InboxWorkers:       envIntDefault("INBOX_WORKERS", 2),
		SourcesConfig:      envDefault("SOURCES_CONFIG", "./config/sources.yaml"),
		PolicyDir:          os.Getenv("POLICY_DIR"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envIntDefault("REDIS_DB", 0),
		LeaseTTL:           envDurationDefault("LEASE_TTL", 45*time.Minute),
		NotifyChannel:      envDefault("NOTIFY_CHANNEL", "compliance"),
		NotifyAlertChannel: envDefault("NOTIFY_ALERT_CHANNEL", "compliance-alerts"),
		DueLimit:           envIntDefault("DUE_LIMIT", 100),
		EvidenceWindowDays: envIntDefault("EVIDENCE_WINDOW_DAYS", 90),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
