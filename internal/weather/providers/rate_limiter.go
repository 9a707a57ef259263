package providers

import (
	"context"
	"fmt"

	"github.com/i474232898/forecast-controller/internal/weather"

	"golang.org/x/time/rate"
)

// RateLimitedSource wraps a weather.Source with a token bucket so repeated
// retries cannot exceed the provider quota.
type RateLimitedSource struct {
	source  weather.Source
	limiter *rate.Limiter
	name    string
}

// NewRateLimitedSource creates a rate limited source.
// rps is the maximum requests per second (fractional for less than one per second),
// burst the maximum burst size.
func NewRateLimitedSource(source weather.Source, rps float64, burst int) *RateLimitedSource {
	return &RateLimitedSource{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    fmt.Sprintf("%s [Rate Limited]", source.Name()),
	}
}

// Fetch waits for limiter permission, then delegates.
func (r *RateLimitedSource) Fetch(ctx context.Context, q weather.Query) (weather.ForecastResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return weather.ForecastResult{}, &weather.NetworkError{Op: "rate limit wait", Err: err}
	}
	return r.source.Fetch(ctx, q)
}

func (r *RateLimitedSource) Name() string {
	return r.name
}

var _ weather.Source = (*RateLimitedSource)(nil)
