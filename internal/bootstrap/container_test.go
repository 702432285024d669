package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"procsight/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{
			Port:               "0",
			Environment:        "test",
			CorsAllowedOrigins: "*",
			LogFilePath:        filepath.Join(dir, "app.log"),
			TraceLogPath:       filepath.Join(dir, "trace.log"),
		},
		Storage: config.StorageConfig{Driver: "memory"},
		Telemetry: config.TelemetryConfig{
			ProcRoot:        dir,
			CaptureInterval: time.Second,
			CompactInterval: time.Minute,
			MaxRows:         12,
			PromptFilter:    "full",
		},
		Ai: config.AIConfig{
			Backend:          backend,
			Temperature:      1.0,
			TopK:             3,
			MaxOutputTokens:  10,
			TimeoutSeconds:   5,
			RefreshInterval:  time.Minute,
			RetryInputLength: 50,
			OllamaBaseURL:    "http://127.0.0.1:1",
			OllamaModel:      "llama3",
			GeminiBaseURL:    "http://127.0.0.1:1",
			GeminiModel:      "gemini-1.5-flash",
			GeminiModels:     []string{"gemini-1.5-flash"},
		},
	}
}

func TestNewContainerRemoteHasNoSession(t *testing.T) {
	c, err := NewContainer(testConfig(t, "remote"))
	require.NoError(t, err)
	defer c.Close(context.Background())

	assert.Nil(t, c.SessionManager)
	assert.Nil(t, c.Publisher)
	assert.Equal(t, "remote", c.Chat.BackendName())
	assert.NotNil(t, c.TelemetryController)
	assert.NotNil(t, c.StreamHandler)
}

func TestNewContainerLocalWiresSession(t *testing.T) {
	cfg := testConfig(t, "local")
	c, err := NewContainer(cfg)
	require.NoError(t, err)
	defer c.Close(context.Background())

	require.NotNil(t, c.SessionManager)
	assert.Equal(t, "local", c.Chat.BackendName())
	assert.Equal(t, SessionConfig(cfg, c.SessionManager.Config().SystemPrompt), c.SessionManager.Config())
}

func TestRedisDriverRequiresURL(t *testing.T) {
	cfg := testConfig(t, "remote")
	cfg.Storage.Driver = "redis"

	_, err := NewContainer(cfg)
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestSessionConfigClamps(t *testing.T) {
	cfg := testConfig(t, "local")
	cfg.Ai.Temperature = 3
	cfg.Ai.TopK = 20

	sc := SessionConfig(cfg, "sys")
	assert.Equal(t, 1.0, sc.Temperature)
	assert.Equal(t, 8, sc.TopK)
	assert.Equal(t, "sys", sc.SystemPrompt)
}
