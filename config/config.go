package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "analysis-worker"
	EnvFileName = "config.env"
)

// Completion backends supported for the two AI stages.
const (
	BackendOpenRouter = "openrouter"
	BackendGemini     = "gemini"
)

// Config holds all process configuration, read once at startup.
type Config struct {
	// DBPath is the SQLite database file holding items, analyses and the
	// job queue.
	DBPath string

	// Backend selects the completion backend: "openrouter" or "gemini".
	Backend string

	// OpenRouter-compatible completion API settings.
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	ConditionModel    string
	PricingModel      string

	// GeminiAPIKey is used when Backend is "gemini".
	GeminiAPIKey string

	// Google Custom Search credentials for the web-signal source.
	GoogleAPIKey         string
	GoogleSearchEngineID string

	// BlobGatewayURL is the base URL of the blob gateway. When empty,
	// BlobDir selects a local filesystem store instead.
	BlobGatewayURL string
	BlobDir        string

	// WorkerCount is the number of concurrent pipeline workers.
	WorkerCount int

	// PollInterval is the queue polling interval per worker.
	PollInterval time.Duration
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// Load reads configuration from the environment and validates required keys.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:               getenvDefault("ANALYSIS_DB_PATH", "analysis.db"),
		Backend:              getenvDefault("AI_BACKEND", BackendOpenRouter),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:    getenvDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		ConditionModel:       getenvDefault("CONDITION_MODEL", "google/gemini-2.5-flash"),
		PricingModel:         getenvDefault("PRICING_MODEL", "google/gemini-2.5-flash"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GoogleAPIKey:         os.Getenv("GOOGLE_API_KEY"),
		GoogleSearchEngineID: os.Getenv("GOOGLE_SEARCH_ENGINE_ID"),
		BlobGatewayURL:       os.Getenv("BLOB_GATEWAY_URL"),
		BlobDir:              getenvDefault("BLOB_DIR", "blobs"),
		WorkerCount:          2,
		PollInterval:         time.Second,
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("WORKER_COUNT must be a positive integer, got %q", v)
		}
		cfg.WorkerCount = n
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("POLL_INTERVAL is not a valid duration: %w", err)
		}
		cfg.PollInterval = d
	}

	var missing []string
	switch cfg.Backend {
	case BackendOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			missing = append(missing, "OPENROUTER_API_KEY")
		}
	case BackendGemini:
		if cfg.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	default:
		return nil, fmt.Errorf("unknown AI_BACKEND %q (use %s or %s)", cfg.Backend, BackendOpenRouter, BackendGemini)
	}
	if cfg.GoogleAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if cfg.GoogleSearchEngineID == "" {
		missing = append(missing, "GOOGLE_SEARCH_ENGINE_ID")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
