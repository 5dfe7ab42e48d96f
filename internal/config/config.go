package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string
	PublicBaseURL      string
	LogLevel           string
	LogFormat          string
	PostgresURL        string
	RedisURL           string
	TemporalAddress    string
	TemporalTaskQueue  string
	LLMProvider        string
	LLMBaseURL         string
	XAIAPIKey          string
	OpenAIAPIKey       string
	OpenRouterAPIKey   string
	TavilyAPIKey       string
	OpenWeatherAPIKey  string
	GoogleMapsAPIKey   string
	MapboxAccessToken  string
	TripAdvisorAPIKey  string
	AviationStackKey   string
	PromptsDir         string
	Pass1MaxToolSteps  int
	SmoothDelayMS      int
	ProviderRatePerSec int
	CacheTTLSeconds    int
}

var defaults = map[string]any{
	"port":                   "8080",
	"log_level":              "info",
	"log_format":             "console",
	"temporal_task_queue":    "trip-planner",
	"llm_provider":           "xai",
	"pass1_max_tool_steps":   1,
	"smooth_delay_ms":        15,
	"provider_rate_per_sec":  10,
	"cache_ttl_seconds":      3600,
	"postgres_url":           "",
	"redis_url":              "",
	"temporal_address":       "",
	"public_base_url":        "",
	"llm_base_url":           "",
	"xai_api_key":            "",
	"openai_api_key":         "",
	"openrouter_api_key":     "",
	"tavily_api_key":         "",
	"openweather_api_key":    "",
	"google_maps_api_key":    "",
	"mapbox_access_token":    "",
	"tripadvisor_api_key":    "",
	"aviation_stack_api_key": "",
	"prompts_dir":            "",
}

var loadDotEnv = func() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// Load reads .env, an optional config.yaml and the process environment, in
// increasing order of precedence.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	port := v.GetString("port")
	cfg := Config{
		Port:               port,
		PublicBaseURL:      defaultIfEmpty(v.GetString("public_base_url"), "http://localhost:"+port),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		PostgresURL:        v.GetString("postgres_url"),
		RedisURL:           v.GetString("redis_url"),
		TemporalAddress:    v.GetString("temporal_address"),
		TemporalTaskQueue:  v.GetString("temporal_task_queue"),
		LLMProvider:        v.GetString("llm_provider"),
		LLMBaseURL:         v.GetString("llm_base_url"),
		XAIAPIKey:          v.GetString("xai_api_key"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		OpenRouterAPIKey:   v.GetString("openrouter_api_key"),
		TavilyAPIKey:       v.GetString("tavily_api_key"),
		OpenWeatherAPIKey:  v.GetString("openweather_api_key"),
		GoogleMapsAPIKey:   v.GetString("google_maps_api_key"),
		MapboxAccessToken:  v.GetString("mapbox_access_token"),
		TripAdvisorAPIKey:  v.GetString("tripadvisor_api_key"),
		AviationStackKey:   v.GetString("aviation_stack_api_key"),
		PromptsDir:         v.GetString("prompts_dir"),
		Pass1MaxToolSteps:  v.GetInt("pass1_max_tool_steps"),
		SmoothDelayMS:      v.GetInt("smooth_delay_ms"),
		ProviderRatePerSec: v.GetInt("provider_rate_per_sec"),
		CacheTTLSeconds:    v.GetInt("cache_ttl_seconds"),
	}
	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Pass1MaxToolSteps < 1 {
		return fmt.Errorf("PASS1_MAX_TOOL_STEPS must be at least 1, got %d", cfg.Pass1MaxToolSteps)
	}
	if cfg.SmoothDelayMS < 0 {
		return fmt.Errorf("SMOOTH_DELAY_MS must not be negative, got %d", cfg.SmoothDelayMS)
	}
	if cfg.ProviderRatePerSec < 1 {
		return fmt.Errorf("PROVIDER_RATE_PER_SEC must be at least 1, got %d", cfg.ProviderRatePerSec)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
