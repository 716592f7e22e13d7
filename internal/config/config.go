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

type AppConfig struct {
	// Weather provider credentials. Providers without a key are skipped,
	// except Open-Meteo which needs none.
	TomorrowAPIKey    string
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	DisableOpenMeteo  bool

	WeatherCacheTTL time.Duration
	HTTPTimeout     time.Duration
	// ProviderRPS is the per-provider outbound request budget (burst = ProviderBurst).
	ProviderRPS   float64
	ProviderBurst int

	DefaultForecastDays int
	MaxForecastDays     int

	// WarmInterval controls how often forecasts for Locations are refreshed.
	WarmInterval time.Duration
	Locations    []string

	ModelPath   string
	ModelLabels string
	ONNXLibPath string
	WarmModel   bool

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ChatModel     string

	// Conversation retention.
	ChatMaxHistory int           // max messages per session (0 = unlimited)
	ChatMaxIdle    time.Duration // idle time before a session is dropped (0 = never)

	MarketDataDir  string
	MarketDataFile string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.TomorrowAPIKey = os.Getenv("TOMORROW_API_KEY")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.DisableOpenMeteo = getenvBool("DISABLE_OPEN_METEO", false)

	if cfg.WeatherCacheTTL, err = getenvDuration("WEATHER_CACHE_TTL", "30m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ProviderRPS, err = getenvFloat("PROVIDER_RPS", 2); err != nil {
		return nil, err
	}
	cfg.ProviderBurst = getenvInt("PROVIDER_BURST", 4)

	cfg.DefaultForecastDays = getenvInt("FORECAST_DEFAULT_DAYS", 5)
	cfg.MaxForecastDays = getenvInt("FORECAST_MAX_DAYS", 7)
	if cfg.DefaultForecastDays <= 0 || cfg.MaxForecastDays < cfg.DefaultForecastDays {
		return nil, fmt.Errorf("invalid forecast horizon: default %d, max %d", cfg.DefaultForecastDays, cfg.MaxForecastDays)
	}

	// Warm-up interval: default 15 minutes.
	if cfg.WarmInterval, err = getenvDuration("WARM_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	cfg.Locations = splitList(os.Getenv("WEATHER_LOCATIONS"), ";")

	cfg.ModelPath = os.Getenv("MODEL_PATH")
	cfg.ModelLabels = os.Getenv("MODEL_LABELS")
	cfg.ONNXLibPath = os.Getenv("ONNXRUNTIME_LIB")
	cfg.WarmModel = getenvBool("MODEL_WARMUP", true)

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.ChatModel = getenvDefault("CHAT_MODEL", "gpt-4o-mini")

	cfg.ChatMaxHistory = getenvInt("CHAT_MAX_HISTORY", 40)
	if cfg.ChatMaxIdle, err = getenvDuration("CHAT_MAX_IDLE", "2h"); err != nil {
		return nil, err
	}

	cfg.MarketDataDir = getenvDefault("MARKET_DATA_DIR", "data")
	cfg.MarketDataFile = getenvDefault("MARKET_DATA_FILE", "market_prices.csv")

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// splitList splits a separated list, dropping blank entries. Locations use ';'
// because names such as "Pune, IN" contain commas.
func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		log.Printf("INFO: ignoring invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
