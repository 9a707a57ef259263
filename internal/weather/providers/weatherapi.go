package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/forecast-controller/internal/weather"
	"github.com/sony/gobreaker"
)

// DefaultWeatherAPIBaseURL is the WeatherAPI.com v1 endpoint root.
const DefaultWeatherAPIBaseURL = "https://api.weatherapi.com/v1"

const forecastOp = "GET forecast.json"

// ErrMissingAPIKey is returned by Fetch when the source has no API key. It is
// a configuration error, not a NetworkError.
var ErrMissingAPIKey = errors.New("weatherapi api key is not configured")

// WeatherAPIConfig is the static configuration of a WeatherAPISource.
type WeatherAPIConfig struct {
	APIKey  string
	BaseURL string
	Backoff BackoffConfig
}

// WeatherAPISource implements weather.Source against WeatherAPI.com forecast.json.
type WeatherAPISource struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPISource(client *http.Client, cfg WeatherAPIConfig) *WeatherAPISource {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weatherapi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A rejected query (unknown place, bad key) or a request the caller
		// cancelled says nothing about provider health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *statusError
			return errors.As(err, &se) && !se.retryable()
		},
	})

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultWeatherAPIBaseURL
	}

	return &WeatherAPISource{
		name:    "weatherapi",
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: cfg.Backoff,
		},
		circuit: cb,
	}
}

func (p *WeatherAPISource) Name() string {
	return p.name
}

// Fetch performs one GET <base>/forecast.json?key=&q=&days= and decodes the
// payload. Transport and status failures come back as *weather.NetworkError,
// unparseable payloads as *weather.DecodeError.
func (p *WeatherAPISource) Fetch(ctx context.Context, q weather.Query) (weather.ForecastResult, error) {
	if err := q.Validate(); err != nil {
		return weather.ForecastResult{}, err
	}
	if p.apiKey == "" {
		return weather.ForecastResult{}, ErrMissingAPIKey
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", strings.TrimSpace(q.Location))
		values.Set("days", strconv.Itoa(q.Days))

		u := fmt.Sprintf("%s/forecast.json?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		if errors.Is(err, errNoHTTPClient) || errors.Is(err, errInvalidConfig) {
			return weather.ForecastResult{}, err
		}
		netErr := &weather.NetworkError{Op: forecastOp, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			netErr.StatusCode = se.code
		}
		return weather.ForecastResult{}, netErr
	}
	defer resp.Body.Close()

	var payload struct {
		Location *weather.Location `json:"location"`
		Current  *weather.Current  `json:"current"`
		Forecast *weather.Forecast `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ForecastResult{}, &weather.DecodeError{Err: err}
	}

	var missing []string
	if payload.Location == nil {
		missing = append(missing, "location")
	}
	if payload.Current == nil {
		missing = append(missing, "current")
	}
	if payload.Forecast == nil {
		missing = append(missing, "forecast")
	}
	if len(missing) > 0 {
		return weather.ForecastResult{}, &weather.DecodeError{
			Err: fmt.Errorf("missing %s", strings.Join(missing, ", ")),
		}
	}

	return weather.ForecastResult{
		Location: *payload.Location,
		Current:  *payload.Current,
		Forecast: *payload.Forecast,
	}, nil
}

var _ weather.Source = (*WeatherAPISource)(nil)
