package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultEnvFile = ".env"

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Ai        AIConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	CorsAllowedOrigins string
	LogFilePath        string
	TraceLogPath       string
	NatsURL            string
	RedisURL           string
	OtelEnabled        bool
	OtelEndpoint       string
}

type StorageConfig struct {
	Driver      string // "memory", "sqlite" or "redis"
	SQLitePath  string
	RedisPrefix string
}

type TelemetryConfig struct {
	ProcRoot        string
	CaptureInterval time.Duration
	CompactInterval time.Duration
	MaxRows         int
	PromptFilter    string // "full" or "top-n-by-cpu"
	TopN            int
	CPUThreshold    float64
	RelayEnabled    bool
}

type AIConfig struct {
	Backend          string // "local" or "remote"
	SystemPrompt     string
	Temperature      float64
	TopK             int
	MaxOutputTokens  int
	TimeoutSeconds   int
	RefreshInterval  time.Duration
	RetryInputLength int
	OllamaBaseURL    string
	OllamaModel      string
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiModel      string
	GeminiModels     []string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Load reads .env (if present) without overriding variables already set.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}
	return build()
}

// Reload re-reads path, letting its values override the environment.
func Reload(path string) (*Config, error) {
	if err := godotenv.Overload(path); err != nil {
		return nil, fmt.Errorf("reload %s: %w", path, err)
	}
	cfg := build()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build() *Config {
	geminiModel := getEnv("GEMINI_MODEL", "gemini-1.5-flash")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/procsight.log"),
			TraceLogPath:       getEnv("TRACE_LOG_PATH", "logs/chat_trace.log"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			OtelEnabled:        getEnv("OTEL_ENABLED", "false") == "true",
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Storage: StorageConfig{
			Driver:      getEnv("STORAGE_DRIVER", "memory"),
			SQLitePath:  getEnv("SQLITE_PATH", "data/procsight.db"),
			RedisPrefix: getEnv("REDIS_KEY_PREFIX", "procsight:"),
		},
		Telemetry: TelemetryConfig{
			ProcRoot:        getEnv("PROC_ROOT", "/proc"),
			CaptureInterval: getEnvAsDuration("CAPTURE_INTERVAL", 2*time.Second),
			CompactInterval: getEnvAsDuration("COMPACT_INTERVAL", 2*time.Minute),
			MaxRows:         getEnvAsInt("MAX_ROWS", 12),
			PromptFilter:    getEnv("PROMPT_FILTER", "full"),
			TopN:            getEnvAsInt("PROMPT_TOP_N", 5),
			CPUThreshold:    getEnvAsFloat("PROMPT_CPU_THRESHOLD", 0),
			RelayEnabled:    getEnv("TELEMETRY_RELAY_ENABLED", "false") == "true",
		},
		Ai: AIConfig{
			Backend:          getEnv("AI_BACKEND", "local"),
			SystemPrompt:     getEnv("AI_SYSTEM_PROMPT", ""),
			Temperature:      getEnvAsFloat("AI_TEMPERATURE", 1.0),
			TopK:             getEnvAsInt("AI_TOP_K", 3),
			MaxOutputTokens:  getEnvAsInt("AI_MAX_OUTPUT_TOKENS", 10),
			TimeoutSeconds:   getEnvAsInt("AI_TIMEOUT_SECONDS", 300),
			RefreshInterval:  getEnvAsDuration("AI_REFRESH_INTERVAL", 15*time.Minute),
			RetryInputLength: getEnvAsInt("AI_RETRY_INPUT_LENGTH", 50),
			OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:      getEnv("OLLAMA_MODEL", "llama3"),
			GeminiAPIKey:     getEnv("GOOGLE_GEMINI_API_KEY", ""),
			GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1"),
			GeminiModel:      geminiModel,
			GeminiModels:     getEnvAsList("GEMINI_MODELS", []string{geminiModel}),
		},
	}
}

// Validate rejects unknown drivers and clamps sampling settings into range.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Ai.Backend {
	case "local", "remote":
	default:
		return fmt.Errorf("config: unknown AI_BACKEND %q", c.Ai.Backend)
	}
	if c.Telemetry.CaptureInterval <= 0 || c.Telemetry.CompactInterval <= 0 {
		return fmt.Errorf("config: capture and compact intervals must be positive")
	}

	c.Ai.Temperature = clampFloat(c.Ai.Temperature, 0, 1)
	c.Ai.TopK = clampInt(c.Ai.TopK, 1, 8)
	if c.Telemetry.MaxRows < 0 {
		c.Telemetry.MaxRows = 0
	}
	if c.Ai.RetryInputLength <= 0 {
		c.Ai.RetryInputLength = 50
	}
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
