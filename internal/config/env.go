package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
	Port            string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	WebEnabled      bool
}

// SessionConfig defines where session state lives and for how long.
type SessionConfig struct {
	Backend       string // "memory"|"redis"
	TTL           time.Duration
	SweepInterval time.Duration
	RedisURL      string
	LockTTL       time.Duration
}

// SourceConfig controls loading PDFs by reference.
type SourceConfig struct {
	AllowFile     bool
	AllowHTTP     bool
	HTTPTimeout   time.Duration
	Region        string
	AccessKey     string
	SecretKey     string
	S3Endpoint    string
	DefaultBucket string
}

// PDFConfig tunes the PDF engine.
type PDFConfig struct {
	Validation string // "relaxed"|"strict"
}

// PreviewConfig tunes page preview rendering.
type PreviewConfig struct {
	DPI     int
	Quality int
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Server   ServerConfig
	Sessions SessionConfig
	Source   SourceConfig
	PDF      PDFConfig
	Preview  PreviewConfig
}

// FromEnv loads configuration from environment with sensible defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfrange.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfrange",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadBytes:  int64(parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100)) << 20,
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		WebEnabled:      parseBool(getEnv("WEB_ENABLED", "true")),
	}

	cfg.Sessions = SessionConfig{
		Backend:       strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		TTL:           parseDuration(getEnv("SESSION_TTL", "30m"), 30*time.Minute),
		SweepInterval: parseDuration(getEnv("SESSION_SWEEP_INTERVAL", "1m"), time.Minute),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		LockTTL:       parseDuration(getEnv("SESSION_LOCK_TTL", "2m"), 2*time.Minute),
	}

	cfg.Source = SourceConfig{
		AllowFile:     parseBool(getEnv("SOURCE_ALLOW_FILE", "false")),
		AllowHTTP:     parseBool(getEnv("SOURCE_ALLOW_HTTP", "false")),
		HTTPTimeout:   parseDuration(getEnv("SOURCE_HTTP_TIMEOUT", "30s"), 30*time.Second),
		Region:        getEnv("AWS_REGION", ""),
		AccessKey:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		DefaultBucket: getEnv("AWS_S3_BUCKET", ""),
	}

	cfg.PDF = PDFConfig{
		Validation: strings.ToLower(getEnv("PDF_VALIDATION", "relaxed")),
	}

	cfg.Preview = PreviewConfig{
		DPI:     parseInt(getEnv("PREVIEW_DPI", "72"), 72),
		Quality: parseInt(getEnv("PREVIEW_QUALITY", "80"), 80),
	}
	if cfg.Preview.Quality < 1 || cfg.Preview.Quality > 100 {
		cfg.Preview.Quality = 80
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
