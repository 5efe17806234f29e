package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
)

type Config struct {
	DBPath         string
	HistoryPath    string
	HistoryBackend string
	OutputDir      string
	CategoriesPath string
	LogLevel       string

	PruneMinConfidence      float64
	PruneConservative       bool
	PruneConservativeMargin float64
	PruneLearnedCadences    bool

	EnhanceEnabled              bool
	GeminiAPIKey                string
	GeminiModel                 string
	EnhanceUncertaintyThreshold float64
	EnhanceSensitiveCategories  []string
	EnhanceWorkers              int
	EnhanceMaxRetries           int
	EnhanceRetryBackoffMs       int
	EnhanceTimeoutMs            int
	EnhanceRequestsPerSecond    float64

	SlotsLimit int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:         getEnv("DB_PATH", filepath.Join(cwd, "data", "copilot.db")),
		HistoryPath:    getEnv("HISTORY_PATH", filepath.Join(cwd, "data", "purchase-history.json")),
		HistoryBackend: strings.ToLower(getEnv("HISTORY_BACKEND", "json")),
		OutputDir:      getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		CategoriesPath: getEnv("CATEGORIES_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		PruneMinConfidence:      getEnvFloat("PRUNE_MIN_CONFIDENCE", 0.7),
		PruneConservative:       getEnvBool("PRUNE_CONSERVATIVE", true),
		PruneConservativeMargin: getEnvFloat("PRUNE_CONSERVATIVE_MARGIN", 0.15),
		PruneLearnedCadences:    getEnvBool("PRUNE_LEARNED_CADENCES", true),

		EnhanceEnabled:              getEnvBool("ENHANCE_ENABLED", false),
		GeminiAPIKey:                getEnv("GEMINI_API_KEY", ""),
		GeminiModel:                 getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		EnhanceUncertaintyThreshold: getEnvFloat("ENHANCE_UNCERTAINTY_THRESHOLD", 0.6),
		EnhanceSensitiveCategories:  getEnvList("ENHANCE_SENSITIVE_CATEGORIES", []string{"baby", "pharmacy"}),
		EnhanceWorkers:              getEnvInt("ENHANCE_WORKERS", 3),
		EnhanceMaxRetries:           getEnvInt("ENHANCE_MAX_RETRIES", 2),
		EnhanceRetryBackoffMs:       getEnvInt("ENHANCE_RETRY_BACKOFF_MS", 250),
		EnhanceTimeoutMs:            getEnvInt("ENHANCE_TIMEOUT_MS", 20000),
		EnhanceRequestsPerSecond:    getEnvFloat("ENHANCE_RPS", 2),

		SlotsLimit: getEnvInt("SLOTS_LIMIT", 5),
	}

	return cfg, nil
}

// Validate rejects configuration that would make a run compute on bad
// thresholds. All failures are input errors.
func (c Config) Validate() error {
	if err := unitInterval("PRUNE_MIN_CONFIDENCE", c.PruneMinConfidence); err != nil {
		return err
	}
	if err := unitInterval("PRUNE_CONSERVATIVE_MARGIN", c.PruneConservativeMargin); err != nil {
		return err
	}
	if err := unitInterval("ENHANCE_UNCERTAINTY_THRESHOLD", c.EnhanceUncertaintyThreshold); err != nil {
		return err
	}
	if c.EnhanceWorkers < 1 {
		return errs.Invalid("invalid_config", "ENHANCE_WORKERS must be >= 1, got %d", c.EnhanceWorkers)
	}
	if c.EnhanceMaxRetries < 0 || c.EnhanceMaxRetries > 5 {
		return errs.Invalid("invalid_config", "ENHANCE_MAX_RETRIES must be within [0,5], got %d", c.EnhanceMaxRetries)
	}
	if c.HistoryBackend != "json" && c.HistoryBackend != "sqlite" {
		return errs.Invalid("invalid_config", "HISTORY_BACKEND must be json or sqlite, got %q", c.HistoryBackend)
	}
	if c.EnhanceEnabled {
		if err := c.Require("GEMINI_API_KEY", c.GeminiAPIKey); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.Invalid("missing_config", "missing required env var: %s", name)
	}
	return nil
}

func unitInterval(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return errs.Invalid("invalid_config", "%s must be within [0,1], got %v", name, v)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) String() string {
	return fmt.Sprintf("history=%s(%s) minPrune=%.2f conservative=%v enhance=%v", c.HistoryBackend, c.HistoryPath, c.PruneMinConfidence, c.PruneConservative, c.EnhanceEnabled)
}
