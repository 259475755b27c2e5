package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Confirm modes decide whether a valid submission reserves the telescope
// right away or waits in draft for an explicit confirm call.
const (
	ConfirmImmediate = "immediate"
	ConfirmExplicit  = "explicit"
)

// Image store backends.
const (
	ImageStoreFS = "fs"
	ImageStoreS3 = "s3"
)

// Config holds all configuration for the Chronos server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Scheduling SchedulingConfig
	Celestrak  CelestrakConfig
	Images     ImageConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	MaxUploadBytes     int64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type SchedulingConfig struct {
	ConfirmMode  string
	PlanCacheTTL time.Duration
}

type CelestrakConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type ImageConfig struct {
	Backend string
	FS      FSConfig
	S3      S3Config
}

type FSConfig struct {
	Root          string
	PublicBaseURL string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible services such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	UsePathStyle    bool
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("CHRONOS_PORT", 8080),
			Env:                envString("CHRONOS_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			MaxUploadBytes:     int64(envInt("MAX_UPLOAD_MB", 32)) << 20,
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scheduling: SchedulingConfig{
			ConfirmMode:  envString("CHRONOS_CONFIRM_MODE", ConfirmImmediate),
			PlanCacheTTL: envDuration("PLAN_CACHE_TTL", 30*time.Second),
		},
		Celestrak: CelestrakConfig{
			BaseURL:  envString("CELESTRAK_BASE_URL", "https://celestrak.org"),
			Timeout:  envDurationSecs("CELESTRAK_TIMEOUT_SECS", 10*time.Second),
			CacheTTL: envDuration("CELESTRAK_CACHE_TTL", 2*time.Hour),
		},
		Images: ImageConfig{
			Backend: envString("IMAGE_STORE", ImageStoreFS),
			FS: FSConfig{
				Root:          envString("IMAGE_ROOT", "./data/images"),
				PublicBaseURL: envString("IMAGE_PUBLIC_BASE_URL", "/images"),
			},
			S3: S3Config{
				Bucket:          os.Getenv("S3_BUCKET"),
				Region:          envString("S3_REGION", "us-east-1"),
				Endpoint:        os.Getenv("S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
				PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
				UsePathStyle:    envBool("S3_USE_PATH_STYLE", false),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch c.Scheduling.ConfirmMode {
	case ConfirmImmediate, ConfirmExplicit:
	default:
		return fmt.Errorf("CHRONOS_CONFIRM_MODE must be one of immediate, explicit; got %q", c.Scheduling.ConfirmMode)
	}

	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Server.RateLimitPerMinute)
	}

	if !strings.HasPrefix(c.Celestrak.BaseURL, "http://") && !strings.HasPrefix(c.Celestrak.BaseURL, "https://") {
		return fmt.Errorf("CELESTRAK_BASE_URL must start with http:// or https://, got %q", c.Celestrak.BaseURL)
	}

	switch c.Images.Backend {
	case ImageStoreFS:
		if c.Images.FS.Root == "" {
			return fmt.Errorf("IMAGE_ROOT is required when IMAGE_STORE is fs")
		}
	case ImageStoreS3:
		if c.Images.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when IMAGE_STORE is s3")
		}
	default:
		return fmt.Errorf("IMAGE_STORE must be one of fs, s3; got %q", c.Images.Backend)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
