package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the cove server. Core components
// receive the values they need as explicit parameters; nothing reads the
// environment after Load returns.
type Config struct {
	Port        string
	BaseURL     string
	UploadDir   string
	TLSCertFile string
	TLSKeyFile  string

	// Keys maps username -> API key. Loaded once, immutable afterwards.
	Keys map[string]string

	FileSizeLimit      int64
	LargeFileSizeLimit int64
	RandomSuffixLength int

	ExtensionCheck    bool
	AllowedExtensions []string

	UploadRateLimit  int
	DeleteRateLimit  int
	RateLimitWindow  time.Duration
	RequestTimeout   time.Duration
	ProgressIdleMax  time.Duration
	ProgressSweepInt time.Duration
}

// defaultExtensions covers the media types the service is expected to host.
var defaultExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".ico", ".svg",
	".mp4", ".webm", ".mov", ".mkv", ".avi",
	".txt", ".pdf", ".zip",
}

// Load reads configuration from the environment, applying defaults.
// A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars always win.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		Keys: parseKeyMap(os.Getenv("API_KEYS")),

		FileSizeLimit:      getEnvInt64("FILE_SIZE_LIMIT", 100*1024*1024),          // 100 MiB
		LargeFileSizeLimit: getEnvInt64("LARGE_FILE_SIZE_LIMIT", 5*1024*1024*1024), // 5 GiB
		RandomSuffixLength: getEnvInt("RANDOM_SUFFIX_LENGTH", 8),

		ExtensionCheck:    getEnvBool("EXTENSION_CHECK", true),
		AllowedExtensions: parseExtensions(os.Getenv("ALLOWED_EXTENSIONS")),

		UploadRateLimit:  getEnvInt("UPLOAD_RATE_LIMIT", 50),
		DeleteRateLimit:  getEnvInt("DELETE_RATE_LIMIT", 100),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 30*time.Minute),
		ProgressIdleMax:  getEnvDuration("PROGRESS_IDLE_MAX", 1*time.Hour),
		ProgressSweepInt: getEnvDuration("PROGRESS_SWEEP_INTERVAL", 10*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate catches unrecoverable misconfiguration at boot.
func (c *Config) validate() error {
	if len(c.Keys) == 0 {
		return fmt.Errorf("no API keys configured (set API_KEYS as user:key pairs)")
	}
	for user, key := range c.Keys {
		if len(key) < 10 {
			return fmt.Errorf("API key for user %q is shorter than 10 characters", user)
		}
	}
	if c.FileSizeLimit <= 0 || c.LargeFileSizeLimit <= 0 {
		return fmt.Errorf("file size limits must be positive")
	}
	if c.LargeFileSizeLimit < c.FileSizeLimit {
		return fmt.Errorf("LARGE_FILE_SIZE_LIMIT must be >= FILE_SIZE_LIMIT")
	}
	if c.RandomSuffixLength < 1 {
		return fmt.Errorf("RANDOM_SUFFIX_LENGTH must be at least 1")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// parseKeyMap parses "alice:key1,bob:key2" into {alice: key1, bob: key2}.
// Malformed pairs are skipped.
func parseKeyMap(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, key, ok := strings.Cut(pair, ":")
		user = strings.TrimSpace(user)
		key = strings.TrimSpace(key)
		if !ok || user == "" || key == "" {
			continue
		}
		keys[user] = key
	}
	return keys
}

// parseExtensions parses a comma-separated extension list, normalizing
// to lower case with a leading dot. Empty input yields the default set.
func parseExtensions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultExtensions
	}
	var out []string
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
