package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Supported remote image providers.
const (
	ProviderImageFX = "imagefx"
	ProviderOpenAI  = "openai"
)

// DefaultImageFXURL is the ImageFX generation endpoint.
const DefaultImageFXURL = "https://aisandbox-pa.googleapis.com/v1:runImageFx"

// Config holds all configuration values for a batch run.
type Config struct {
	// Files
	SettingsPath  string // YAML settings holding the token list
	PromptsFile   string // prompt ledger, one prompt per line
	OutputDir     string // where generated images are written
	HistoryDBPath string // SQLite run history; empty disables it
	LogFile       string

	// Batch behaviour
	WorkerCount      int
	RequestDelay     time.Duration // pause between prompts of the same worker
	AspectRatio      string
	BreakerThreshold int // consecutive API-error prompts before a worker stops

	// Remote API
	Provider         string
	ImageFXURL       string
	ImageFXModel     string
	OpenAIBaseURL    string
	OpenAIImageModel string
	HTTPTimeout      time.Duration

	// Runtime
	LogLevel             string
	DevMode              bool
	AllowSelfSignedCerts bool
}

// LoadConfig reads configuration from the environment with defaults that
// work for a local run against ImageFX. Token secrets are not read here;
// they live in the settings file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SettingsPath:  GetEnvOrDefault("SETTINGS_PATH", "settings.yaml"),
		PromptsFile:   GetEnvOrDefault("PROMPTS_FILE", "prompts.txt"),
		OutputDir:     GetEnvOrDefault("OUTPUT_DIR", "./images"),
		HistoryDBPath: GetEnvOrDefault("HISTORY_DB_PATH", "history.db"),
		LogFile:       GetEnvOrDefault("LOG_FILE", "batchgen.log"),

		// 3 workers with a 2s inter-prompt delay stays under the per-account
		// quota most free-tier tokens get.
		WorkerCount:      ParseIntEnv("WORKER_COUNT", 3),
		RequestDelay:     ParseSecondsEnv("REQUEST_DELAY_SECONDS", 2*time.Second),
		AspectRatio:      GetEnvOrDefault("ASPECT_RATIO", "LANDSCAPE"),
		BreakerThreshold: ParseIntEnv("BREAKER_THRESHOLD", 3),

		Provider:         strings.ToLower(GetEnvOrDefault("IMAGE_PROVIDER", ProviderImageFX)),
		ImageFXURL:       GetEnvOrDefault("IMAGEFX_API_URL", DefaultImageFXURL),
		ImageFXModel:     GetEnvOrDefault("IMAGEFX_MODEL", "IMAGEN_3_1"),
		OpenAIBaseURL:    GetEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIImageModel: GetEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),
		HTTPTimeout:      ParseSecondsEnv("HTTP_TIMEOUT", 120*time.Second),

		LogLevel:             os.Getenv("LOG_LEVEL"),
		DevMode:              ParseBoolEnv("DEV_MODE", false),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
	}

	// HISTORY_DB_PATH="" explicitly disables history.
	if value, ok := os.LookupEnv("HISTORY_DB_PATH"); ok && strings.TrimSpace(value) == "" {
		cfg.HistoryDBPath = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. It returns a *ConfigError.
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return ErrInvalidConfig("WORKER_COUNT", fmt.Sprintf("must be at least 1, got %d", c.WorkerCount))
	}
	if c.BreakerThreshold < 1 {
		return ErrInvalidConfig("BREAKER_THRESHOLD", fmt.Sprintf("must be at least 1, got %d", c.BreakerThreshold))
	}
	if c.RequestDelay < 0 {
		return ErrInvalidConfig("REQUEST_DELAY_SECONDS", "must not be negative")
	}
	switch c.Provider {
	case ProviderImageFX, ProviderOpenAI:
	default:
		return ErrInvalidConfig("IMAGE_PROVIDER", fmt.Sprintf("unknown provider %q (use %s or %s)", c.Provider, ProviderImageFX, ProviderOpenAI))
	}
	if c.PromptsFile == "" {
		return ErrInvalidConfig("PROMPTS_FILE", "must not be empty")
	}
	if c.OutputDir == "" {
		return ErrInvalidConfig("OUTPUT_DIR", "must not be empty")
	}
	return nil
}

// GetHTTPClient returns an HTTP client honouring AllowSelfSignedCerts.
// A zero timeout means no client-side timeout.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
