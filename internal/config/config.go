package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"content-batch/internal/models"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Engine    EngineConfig
	Generator GeneratorConfig
	Defaults  models.Settings
	Log       LogConfig
}

type ServerConfig struct {
	Port string
}

type StoreConfig struct {
	Backend string // "sqlite" or "file"
	DBPath  string
	DataDir string
}

type EngineConfig struct {
	InterItemDelay    time.Duration
	MaxItems          int
	MaxCallsPerMinute int
}

type GeneratorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file and the process environment.
// Missing variables fall back to defaults; malformed ones are errors.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	delay, err := durationEnv("INTER_ITEM_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}
	maxItems, err := intEnv("MAX_ITEMS", 50)
	if err != nil {
		return nil, err
	}
	maxCalls, err := intEnv("MAX_CALLS_PER_MINUTE", 0)
	if err != nil {
		return nil, err
	}
	timeout, err := durationEnv("GENERATOR_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: stringEnv("PORT", "8080"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(stringEnv("STORE_BACKEND", "sqlite")),
			DBPath:  stringEnv("DB_PATH", "batch.db"),
			DataDir: stringEnv("DATA_DIR", "data"),
		},
		Engine: EngineConfig{
			InterItemDelay:    delay,
			MaxItems:          maxItems,
			MaxCallsPerMinute: maxCalls,
		},
		Generator: GeneratorConfig{
			URL:     os.Getenv("GENERATOR_URL"),
			APIKey:  os.Getenv("GENERATOR_API_KEY"),
			Timeout: timeout,
		},
		Defaults: models.Settings{
			Provider: stringEnv("DEFAULT_PROVIDER", "openai"),
			Model:    stringEnv("DEFAULT_MODEL", "gpt-4o-mini"),
			Style:    stringEnv("DEFAULT_STYLE", "informative"),
			Length:   stringEnv("DEFAULT_LENGTH", "medium"),
		},
		Log: LogConfig{
			Level:  stringEnv("LOG_LEVEL", "INFO"),
			Format: stringEnv("LOG_FORMAT", "text"),
		},
	}

	if raw := os.Getenv("DEFAULT_TEMPERATURE"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing DEFAULT_TEMPERATURE: %w", err)
		}
		cfg.Defaults.Temperature = &t
	}

	if cfg.Store.Backend != "sqlite" && cfg.Store.Backend != "file" {
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
	if cfg.Engine.MaxItems <= 0 {
		return nil, fmt.Errorf("MAX_ITEMS must be positive, got %d", cfg.Engine.MaxItems)
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return v, nil
}

// durationEnv accepts Go durations ("1500ms") or plain seconds ("5")
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return d, nil
}
