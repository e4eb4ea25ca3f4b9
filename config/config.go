package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Zoom     ZoomConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the recordings archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// ZoomConfig holds server-to-server OAuth credentials for the Zoom API.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	UserID       string // account user whose cloud recordings are listed; "me" for the app owner
	APIBaseURL   string
	OAuthURL     string
	TimeoutSec   int
}

// Configured reports whether credentials are present.
func (c ZoomConfig) Configured() bool {
	return c.AccountID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// SyncConfig controls the recording synchronization job.
type SyncConfig struct {
	Enabled             bool
	IntervalMinutes     int
	StartupDelaySec     int
	ScheduledWindowDays int
	ManualWindowDays    int
	ManualTimeoutMin    int
	DefaultInstructor   string
	ManualFilter        string // "strict" or "loose"
	Lock                string // "local" or "redis"
	LockTTLMinutes      int
	ArchiveEnabled      bool
}

// Interval returns the scheduled cadence.
func (c SyncConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// StartupDelay returns the delay before the first scheduled pass.
func (c SyncConfig) StartupDelay() time.Duration {
	if c.StartupDelaySec < 0 {
		return 0
	}
	return time.Duration(c.StartupDelaySec) * time.Second
}

// ManualTimeout bounds an on-demand pass started over HTTP.
func (c SyncConfig) ManualTimeout() time.Duration {
	if c.ManualTimeoutMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.ManualTimeoutMin) * time.Minute
}

// LockTTL returns the lease duration used by the redis lock.
func (c SyncConfig) LockTTL() time.Duration {
	if c.LockTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lms"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "lms-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Zoom: ZoomConfig{
			AccountID:    getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:     getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret: getEnv("ZOOM_CLIENT_SECRET", ""),
			UserID:       getEnv("ZOOM_USER_ID", "me"),
			APIBaseURL:   strings.TrimRight(getEnv("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"), "/"),
			OAuthURL:     getEnv("ZOOM_OAUTH_URL", "https://zoom.us/oauth/token"),
			TimeoutSec:   getEnvInt("ZOOM_TIMEOUT_SEC", 30),
		},
		Sync: SyncConfig{
			Enabled:             getEnvBool("SYNC_ENABLED", true),
			IntervalMinutes:     getEnvInt("SYNC_INTERVAL_MIN", 60),
			StartupDelaySec:     getEnvInt("SYNC_STARTUP_DELAY_SEC", 10),
			ScheduledWindowDays: getEnvInt("SYNC_SCHEDULED_WINDOW_DAYS", 7),
			ManualWindowDays:    getEnvInt("SYNC_MANUAL_WINDOW_DAYS", 30),
			ManualTimeoutMin:    getEnvInt("SYNC_MANUAL_TIMEOUT_MIN", 15),
			DefaultInstructor:   getEnv("SYNC_DEFAULT_INSTRUCTOR", "Instructor"),
			ManualFilter:        strings.ToLower(getEnv("SYNC_MANUAL_FILTER", "strict")),
			Lock:                strings.ToLower(getEnv("SYNC_LOCK", "redis")),
			LockTTLMinutes:      getEnvInt("SYNC_LOCK_TTL_MIN", 30),
			ArchiveEnabled:      getEnvBool("SYNC_ARCHIVE_ENABLED", false),
		},
	}
	if cfg.Sync.ManualFilter != "strict" && cfg.Sync.ManualFilter != "loose" {
		return nil, fmt.Errorf("SYNC_MANUAL_FILTER must be strict or loose, got %q", cfg.Sync.ManualFilter)
	}
	if cfg.Sync.Lock != "local" && cfg.Sync.Lock != "redis" {
		return nil, fmt.Errorf("SYNC_LOCK must be local or redis, got %q", cfg.Sync.Lock)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
