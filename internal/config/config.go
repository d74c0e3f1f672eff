// Package config provides configuration management for the portal scanner.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// DefaultLoginURL is the portal login surface scanned when PORTAL_LOGIN_URL is unset.
const DefaultLoginURL = "https://dijital.gib.gov.tr/internetVergiDairesiGiris"

// DefaultUserAgent mimics a desktop Chrome build.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all configuration for the scanner.
type Config struct {
	// Server settings
	Port     int
	BaseURL  string
	LogLevel string

	// Database
	DatabasePath string

	// Portal settings
	LoginURL  string
	UserAgent string

	// Browser settings
	ChromePath      string
	BrowserHeadless bool
	NavTimeout      time.Duration
	FormTimeout     time.Duration
	FormRetryWait   time.Duration
	RowsTimeout     time.Duration

	// CAPTCHA solver settings
	GeminiAPIKey     string
	GeminiModel      string
	TwoCaptchaAPIKey string

	// Scan pacing
	DelayMin          time.Duration
	DelayMax          time.Duration
	BatchSize         int
	BatchPauseMin     time.Duration
	BatchPauseMax     time.Duration
	MaxCaptchaRetries int
	MaxPages          int
	EventBuffer       int

	// Credits
	CreditGateEnabled bool

	// Document storage. StorageBucket selects S3; otherwise documents go to StorageDir.
	StorageDir       string
	StorageBucket    string
	StorageEndpoint  string
	StorageRegion    string
	StorageAccessKey string
	StorageSecretKey string

	// Authentication
	APISecret            string // HMAC secret for signed headers
	JWTSecret            string // HS256 secret for bearer tokens
	AllowUnauthenticated bool

	// Encryption (derived from ENCRYPTION_SECRET)
	EncryptionKey []byte

	// Webhooks
	WebhookURL string

	// Scheduler
	ScheduleTimezone       string
	PopulationPollInterval time.Duration

	// HTTP
	CORSOrigins  []string
	RateLimitRPM int
}

// Load creates a Config from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvInt("PORT", 8090),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8090"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabasePath: getEnv("DATABASE_PATH", "portalscan.db"),

		LoginURL:  getEnv("PORTAL_LOGIN_URL", DefaultLoginURL),
		UserAgent: getEnv("PORTAL_USER_AGENT", DefaultUserAgent),

		ChromePath:      getEnv("CHROME_PATH", ""),
		BrowserHeadless: getEnvBool("BROWSER_HEADLESS", true),
		NavTimeout:      getEnvDuration("BROWSER_NAV_TIMEOUT", 30*time.Second),
		FormTimeout:     getEnvDuration("BROWSER_FORM_TIMEOUT", 5*time.Second),
		FormRetryWait:   getEnvDuration("BROWSER_FORM_RETRY_WAIT", 15*time.Second),
		RowsTimeout:     getEnvDuration("BROWSER_ROWS_TIMEOUT", 10*time.Second),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		TwoCaptchaAPIKey: getEnv("TWOCAPTCHA_API_KEY", ""),

		DelayMin:          getEnvDuration("SCAN_DELAY_MIN", 5*time.Second),
		DelayMax:          getEnvDuration("SCAN_DELAY_MAX", 15*time.Second),
		BatchSize:         getEnvInt("SCAN_BATCH_SIZE", 10),
		BatchPauseMin:     getEnvDuration("SCAN_BATCH_PAUSE_MIN", 60*time.Second),
		BatchPauseMax:     getEnvDuration("SCAN_BATCH_PAUSE_MAX", 120*time.Second),
		MaxCaptchaRetries: getEnvInt("SCAN_MAX_CAPTCHA_RETRIES", 3),
		MaxPages:          getEnvInt("SCAN_MAX_PAGES", 20),
		EventBuffer:       getEnvInt("SCAN_EVENT_BUFFER", 256),

		CreditGateEnabled: getEnvBool("CREDIT_GATE_ENABLED", false),

		StorageDir:       getEnv("STORAGE_DIR", "documents"),
		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StorageRegion:    getEnv("STORAGE_REGION", "auto"),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", ""),

		APISecret:            getEnv("API_SECRET", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		AllowUnauthenticated: getEnvBool("ALLOW_UNAUTHENTICATED", false),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		ScheduleTimezone:       getEnv("SCHEDULE_TIMEZONE", "Local"),
		PopulationPollInterval: getEnvDuration("POPULATION_POLL_INTERVAL", time.Minute),

		CORSOrigins:  getEnvSlice("CORS_ORIGINS", []string{"*"}),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 120),
	}

	secret := getEnv("ENCRYPTION_SECRET", "")
	if secret == "" {
		return nil, errors.New("ENCRYPTION_SECRET is required to protect portal credentials")
	}
	cfg.EncryptionKey = DeriveKey(secret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the pacing and retry settings for impossible combinations.
func (c *Config) Validate() error {
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("invalid inter-entity delay range [%s, %s]", c.DelayMin, c.DelayMax)
	}
	if c.BatchPauseMin < 0 || c.BatchPauseMax < c.BatchPauseMin {
		return fmt.Errorf("invalid batch pause range [%s, %s]", c.BatchPauseMin, c.BatchPauseMax)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("SCAN_BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	if c.MaxCaptchaRetries < 1 {
		return fmt.Errorf("SCAN_MAX_CAPTCHA_RETRIES must be at least 1, got %d", c.MaxCaptchaRetries)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("SCAN_MAX_PAGES must be at least 1, got %d", c.MaxPages)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("SCAN_EVENT_BUFFER must be at least 1, got %d", c.EventBuffer)
	}
	return nil
}

// Location resolves ScheduleTimezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	if c.ScheduleTimezone == "" || c.ScheduleTimezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// S3Enabled reports whether documents should be written to object storage.
func (c *Config) S3Enabled() bool {
	return c.StorageBucket != ""
}

// DeriveKey stretches a secret into a 32-byte AES-256 key with HKDF-SHA256.
func DeriveKey(secret string) []byte {
	salt := []byte("portalscan-credential-key-v1")
	info := []byte("aes-256-gcm-credentials")

	r := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
