package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/forecast-controller/internal/controller"
	"github.com/i474232898/forecast-controller/internal/weather"
	"github.com/i474232898/forecast-controller/internal/weather/providers"
)

var validate = validator.New()

type AppConfig struct {
	WeatherAPIKey     string
	WeatherAPIBaseURL string `validate:"required,url"`

	// HTTPTimeout bounds each outbound request; FetchTimeout bounds a whole
	// fetch including retries (0 = no extra bound).
	HTTPTimeout  time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gte=0"`

	// Retries on transport failures, 429 and 5xx. The default is a single attempt.
	FetchMaxRetries int `validate:"gte=0"`

	// Outbound rate limit.
	RateLimitRPS   float64 `validate:"gt=0"`
	RateLimitBurst int     `validate:"gte=1"`

	DefaultQuery         weather.Query
	ErrorFallbackMessage string `validate:"required"`

	// AutoRefreshInterval reloads the last query periodically (0 = disabled).
	AutoRefreshInterval time.Duration `validate:"gte=0"`

	// In-memory transition history retention.
	HistoryMax    int           `validate:"gte=0"` // 0 = unlimited
	HistoryMaxAge time.Duration `validate:"gte=0"` // 0 = unlimited

	Port string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.WeatherAPIBaseURL = getenvDefault("WEATHERAPI_BASE_URL", providers.DefaultWeatherAPIBaseURL)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", "0s"); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries, err = getenvInt("FETCH_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getenvFloat("FETCH_RATE_LIMIT_RPS", 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getenvInt("FETCH_RATE_LIMIT_BURST", 3); err != nil {
		return nil, err
	}

	days, err := getenvInt("DEFAULT_DAYS", weather.DefaultDays)
	if err != nil {
		return nil, err
	}
	cfg.DefaultQuery = weather.Query{
		Location: strings.TrimSpace(getenvDefault("DEFAULT_LOCATION", weather.DefaultLocation)),
		Days:     days,
	}
	if err := cfg.DefaultQuery.Validate(); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_LOCATION/DEFAULT_DAYS: %w", err)
	}

	cfg.ErrorFallbackMessage = getenvDefault("ERROR_FALLBACK_MESSAGE", controller.DefaultErrorMessage)

	if cfg.AutoRefreshInterval, err = getenvDuration("AUTO_REFRESH_INTERVAL", "0s"); err != nil {
		return nil, err
	}

	// Store retention.
	if cfg.HistoryMax, err = getenvInt("HISTORY_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.HistoryMaxAge, err = getenvDuration("HISTORY_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
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
