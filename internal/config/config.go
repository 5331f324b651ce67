package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the pipeline depends on. Thresholds and
// windows are fields here, never literals in control flow.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	CatalogPath string

	ERP    ERPConfig
	Oracle OracleConfig
	Convo  ConvoConfig

	// Durable store DSN. Empty means in-memory stores (local/dev).
	PostgresDSN string
}

type ERPConfig struct {
	BaseURL string
	Timeout time.Duration
}

type OracleConfig struct {
	Model    string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
	CacheCap int

	// Project selection thresholds: accept silently above High, accept with
	// a note between Low and High, clarify below Low.
	ConfidenceHigh float64
	ConfidenceLow  float64

	// Most-recent turns forwarded as conversation context.
	HistoryWindow int
}

type ConvoConfig struct {
	BufferTTL        time.Duration
	SessionMemoryTTL time.Duration
	FlushDelay       time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		LogLevel:    firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		CatalogPath: firstNonEmpty(strings.TrimSpace(os.Getenv("CATALOG_PATH")), "data/capability_catalog.json"),
		ERP: ERPConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("ERP_BASE_URL")), "/"),
			Timeout: envDuration("ERP_API_TIMEOUT", 30*time.Second),
		},
		Oracle: OracleConfig{
			Model:          firstNonEmpty(strings.TrimSpace(os.Getenv("ORACLE_MODEL")), "gemini-2.5-flash"),
			APIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Timeout:        envDuration("ORACLE_TIMEOUT", 30*time.Second),
			CacheTTL:       envDuration("ORACLE_CACHE_TTL", 5*time.Minute),
			CacheCap:       envInt("ORACLE_CACHE_CAP", 256),
			ConfidenceHigh: envFloat("PROJECT_CONFIDENCE_HIGH", 0.7),
			ConfidenceLow:  envFloat("PROJECT_CONFIDENCE_LOW", 0.5),
			HistoryWindow:  envInt("HISTORY_WINDOW", 10),
		},
		Convo: ConvoConfig{
			BufferTTL:        envDuration("CHAT_BUFFER_TTL", time.Hour),
			SessionMemoryTTL: envDuration("SESSION_MEMORY_TTL", time.Hour),
			FlushDelay:       envDuration("CHAT_FLUSH_DELAY", 5*time.Second),
		},
		PostgresDSN: strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
	}, nil
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// Bare integers are taken as seconds.
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
