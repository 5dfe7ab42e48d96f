package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var allEnvKeys = []string{
	"PORT",
	"PUBLIC_BASE_URL",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"POSTGRES_URL",
	"REDIS_URL",
	"TEMPORAL_ADDRESS",
	"TEMPORAL_TASK_QUEUE",
	"LLM_PROVIDER",
	"LLM_BASE_URL",
	"XAI_API_KEY",
	"OPENAI_API_KEY",
	"OPENROUTER_API_KEY",
	"TAVILY_API_KEY",
	"OPENWEATHER_API_KEY",
	"GOOGLE_MAPS_API_KEY",
	"MAPBOX_ACCESS_TOKEN",
	"TRIPADVISOR_API_KEY",
	"AVIATION_STACK_API_KEY",
	"PROMPTS_DIR",
	"PASS1_MAX_TOOL_STEPS",
	"SMOOTH_DELAY_MS",
	"PROVIDER_RATE_PER_SEC",
	"CACHE_TTL_SECONDS",
}

func isolate(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		if value, ok := os.LookupEnv(key); ok {
			t.Setenv(key, value)
			_ = os.Unsetenv(key)
		}
	}
	orig := loadDotEnv
	loadDotEnv = func() {}
	t.Cleanup(func() { loadDotEnv = orig })
	t.Chdir(t.TempDir())
}

func TestLoad_AllDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	require.Equal(t, "trip-planner", cfg.TemporalTaskQueue)
	require.Equal(t, "xai", cfg.LLMProvider)
	require.Equal(t, 1, cfg.Pass1MaxToolSteps)
	require.Equal(t, 15, cfg.SmoothDelayMS)
	require.Equal(t, 3600, cfg.CacheTTLSeconds)
	require.Empty(t, cfg.PostgresURL)
	require.Empty(t, cfg.TemporalAddress)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("TAVILY_API_KEY", "tvly-key")
	t.Setenv("AVIATION_STACK_API_KEY", "av-key")
	t.Setenv("PASS1_MAX_TOOL_STEPS", "3")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, "http://localhost:9090", cfg.PublicBaseURL)
	require.Equal(t, "tvly-key", cfg.TavilyAPIKey)
	require.Equal(t, "av-key", cfg.AviationStackKey)
	require.Equal(t, 3, cfg.Pass1MaxToolSteps)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("mapbox_access_token: pk.file\nsmooth_delay_ms: 0\n"), 0o600))
	t.Setenv("SMOOTH_DELAY_MS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "pk.file", cfg.MapboxAccessToken)
	require.Equal(t, 5, cfg.SmoothDelayMS)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("PASS1_MAX_TOOL_STEPS", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PASS1_MAX_TOOL_STEPS")
}
