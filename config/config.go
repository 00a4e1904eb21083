package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Local storage
	LocalStorageType string
	LocalStoragePath string
	DataSourceName   string

	// Remote storage
	RemoteStorageType string
	S3BucketName      string
	SupabaseURL       string
	SupabaseKey       string
	SupabaseBucket    string
	RedisAddr         string
	RedisPassword     string
	HostingDomain     string

	// Remote call watchdog
	RemoteCallTimeout time.Duration
	RemoteProbeURL    string

	// Auth
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	OIDCIssuerURL      string
	OIDCClientID       string
	OIDCClientSecret   string
	OIDCRedirectURL    string

	// AI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AICredits     int

	// Project
	AutosaveDelay time.Duration
	PollInterval  time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	cfg := &Config{
		LocalStorageType: getEnv("LOCAL_STORAGE_TYPE", "filesystem"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data"),
		DataSourceName:   getEnv("DATA_SOURCE_NAME", "studio.db"),

		RemoteStorageType: getEnv("REMOTE_STORAGE_TYPE", "memory"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		SupabaseURL:       getEnv("SUPABASE_URL", ""),
		SupabaseKey:       getEnv("SUPABASE_KEY", ""),
		SupabaseBucket:    getEnv("SUPABASE_BUCKET", "studio"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		HostingDomain:     getEnv("HOSTING_DOMAIN", "studio.localhost"),

		RemoteProbeURL: getEnv("REMOTE_PROBE_URL", ""),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubRedirectURL:  getEnv("GITHUB_REDIRECT_URL", ""),
		OIDCIssuerURL:      getEnv("OIDC_ISSUER_URL", ""),
		OIDCClientID:       getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:   getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:    getEnv("OIDC_REDIRECT_URL", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
	}

	var err error
	if cfg.RemoteCallTimeout, err = getDuration("REMOTE_CALL_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.AutosaveDelay, err = getDuration("AUTOSAVE_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("AUTH_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.AICredits, err = getInt("AI_CREDITS", 10); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LocalStorageType {
	case "memory", "filesystem", "sqlite":
	default:
		return fmt.Errorf("unknown LOCAL_STORAGE_TYPE %q", c.LocalStorageType)
	}

	switch c.RemoteStorageType {
	case "memory":
	case "s3":
		if c.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required for s3 remote storage")
		}
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for supabase remote storage")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis remote storage")
		}
	default:
		return fmt.Errorf("unknown REMOTE_STORAGE_TYPE %q", c.RemoteStorageType)
	}

	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("AUTOSAVE_DELAY must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
