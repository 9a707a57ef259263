package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/forecast-controller/internal/weather"
)

func fixtureResult(days, hours int, maxTemp float64) weather.ForecastResult {
	sunny := weather.Condition{Text: "Sunny", Icon: "//cdn.weatherapi.com/weather/64x64/day/113.png"}
	res := weather.ForecastResult{
		Location: weather.Location{Name: "Moscow", Region: "Moscow City", Country: "Russia", LocalTime: "2025-04-23 14:05"},
		Current:  weather.Current{TempC: 4.2, Condition: sunny, WindKph: 13.7, Humidity: 65},
	}
	for d := 0; d < days; d++ {
		day := weather.ForecastDay{
			Date: fmt.Sprintf("2025-04-%02d", 23+d),
			Day:  weather.Day{MaxTempC: maxTemp, MinTempC: -1.5, Condition: sunny},
		}
		for h := 0; h < hours; h++ {
			day.Hour = append(day.Hour, weather.Hour{
				Time:      fmt.Sprintf("%s %02d:00", day.Date, h),
				TempC:     float64(h) / 2,
				Condition: sunny,
			})
		}
		res.Forecast.ForecastDay = append(res.Forecast.ForecastDay, day)
	}
	return res
}

func newTestSource(t *testing.T, handler http.HandlerFunc, backoff BackoffConfig) *WeatherAPISource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWeatherAPISource(srv.Client(), WeatherAPIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Backoff: backoff,
	})
}

func TestWeatherAPISourceFetch(t *testing.T) {
	want := fixtureResult(3, 24, 5.0)

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		qs := r.URL.Query()
		if qs.Get("key") != "test-key" || qs.Get("q") != "55.7569,37.6151" || qs.Get("days") != "3" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}

		// Extra provider fields must be ignored.
		body, _ := json.Marshal(want)
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		raw["alerts"] = map[string]any{"alert": []any{}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(raw)
	}, BackoffConfig{})

	got, err := src.Fetch(context.Background(), weather.DefaultQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded result differs from payload:\n got %+v\nwant %+v", got, want)
	}
	if got.Days() != 3 || got.Forecast.ForecastDay[0].Day.MaxTempC != 5.0 || len(got.Forecast.ForecastDay[0].Hour) != 24 {
		t.Fatalf("unexpected forecast shape: %d days", got.Days())
	}
}

func TestWeatherAPISourceStatusError(t *testing.T) {
	var hits int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":1006,"message":"No matching location found."}}`))
	}, BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond})

	_, err := src.Fetch(context.Background(), weather.Query{Location: "Atlantis", Days: 3})

	var netErr *weather.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if netErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", netErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "No matching location found.") {
		t.Fatalf("expected provider message in %q", err.Error())
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("client errors must not be retried, got %d requests", n)
	}
}

func TestWeatherAPISourceRetriesServerErrors(t *testing.T) {
	var hits int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})

	_, err := src.Fetch(context.Background(), weather.DefaultQuery())

	var netErr *weather.NetworkError
	if !errors.As(err, &netErr) || netErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 NetworkError, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestWeatherAPISourceCircuitOpens(t *testing.T) {
	var hits int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, BackoffConfig{})

	for i := 0; i < 6; i++ {
		if _, err := src.Fetch(context.Background(), weather.DefaultQuery()); err == nil {
			t.Fatalf("expected error on attempt %d", i)
		}
	}

	_, err := src.Fetch(context.Background(), weather.DefaultQuery())
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	var netErr *weather.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("open circuit should surface as NetworkError, got %T", err)
	}
	if n := atomic.LoadInt32(&hits); n != 6 {
		t.Fatalf("open circuit must not reach the server, got %d requests", n)
	}
}

func TestWeatherAPISourceCancelledFetchesKeepCircuitClosed(t *testing.T) {
	var hits int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Query().Get("q") == "slow" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_ = json.NewEncoder(w).Encode(fixtureResult(1, 1, 5.0))
	}, BackoffConfig{})

	for i := 0; i < 7; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err := src.Fetch(ctx, weather.Query{Location: "slow", Days: 1})
		cancel()
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("fetch %d: expected context.Canceled, got %v", i, err)
		}
	}

	before := atomic.LoadInt32(&hits)
	res, err := src.Fetch(context.Background(), weather.DefaultQuery())
	if err != nil {
		t.Fatalf("fresh fetch after cancellations failed: %v", err)
	}
	if res.Days() != 1 {
		t.Fatalf("expected 1 day, got %d", res.Days())
	}
	if n := atomic.LoadInt32(&hits); n != before+1 {
		t.Fatalf("fresh fetch must reach the server, got %d new requests", n-before)
	}
}

func TestWeatherAPISourceDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"location": {"name": "Moscow"`, "decode forecast"},
		{"wrong type", `{"location": [], "current": {}, "forecast": {}}`, "decode forecast"},
		{"missing objects", `{"location": {"name": "Moscow"}}`, "missing current, forecast"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}, BackoffConfig{})

			_, err := src.Fetch(context.Background(), weather.DefaultQuery())

			var decErr *weather.DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecodeError, got %T %v", err, err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestWeatherAPISourceTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	src := NewWeatherAPISource(&http.Client{Timeout: time.Second}, WeatherAPIConfig{APIKey: "k", BaseURL: url})
	_, err := src.Fetch(context.Background(), weather.DefaultQuery())

	var netErr *weather.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if netErr.StatusCode != 0 {
		t.Fatalf("transport failure should carry no status, got %d", netErr.StatusCode)
	}
}

func TestWeatherAPISourceRejectsBeforeNetwork(t *testing.T) {
	var hits int32
	handler := func(w http.ResponseWriter, r *http.Request) { atomic.AddInt32(&hits, 1) }

	src := newTestSource(t, handler, BackoffConfig{})
	if _, err := src.Fetch(context.Background(), weather.Query{Location: "", Days: 3}); !errors.Is(err, weather.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}

	noKey := NewWeatherAPISource(http.DefaultClient, WeatherAPIConfig{BaseURL: "http://127.0.0.1:0"})
	if _, err := noKey.Fetch(context.Background(), weather.DefaultQuery()); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}

	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

type countingSource struct {
	calls int32
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Fetch(ctx context.Context, q weather.Query) (weather.ForecastResult, error) {
	atomic.AddInt32(&s.calls, 1)
	return weather.ForecastResult{}, nil
}

func TestRateLimitedSource(t *testing.T) {
	inner := &countingSource{}
	src := NewRateLimitedSource(inner, 0.001, 1)

	if src.Name() != "counting [Rate Limited]" {
		t.Fatalf("unexpected name %q", src.Name())
	}
	if _, err := src.Fetch(context.Background(), weather.DefaultQuery()); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := src.Fetch(ctx, weather.DefaultQuery())

	var netErr *weather.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError from limiter, got %v", err)
	}
	if n := atomic.LoadInt32(&inner.calls); n != 1 {
		t.Fatalf("limited call must not reach the source, got %d calls", n)
	}
}
