package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/forecast-controller/internal/controller"
	"github.com/i474232898/forecast-controller/internal/weather"
)

// Metrics holds the forecast controller's Prometheus collectors.
type Metrics struct {
	transitions *prometheus.CounterVec
	fetches     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Name:      "state_transitions_total",
			Help:      "Published controller state transitions by state.",
		}, []string{"state"}),
		fetches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forecast",
			Name:      "fetch_duration_seconds",
			Help:      "Forecast source call latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "outcome"}),
	}
	reg.MustRegister(m.transitions, m.fetches)
	return m
}

// Observe counts a transition; it has the controller.Observer signature.
func (m *Metrics) Observe(s controller.State) {
	m.transitions.WithLabelValues(s.Kind().String()).Inc()
}

// InstrumentSource times every Fetch of src.
func (m *Metrics) InstrumentSource(src weather.Source) weather.Source {
	return &instrumentedSource{source: src, metrics: m}
}

type instrumentedSource struct {
	source  weather.Source
	metrics *Metrics
}

func (s *instrumentedSource) Name() string { return s.source.Name() }

func (s *instrumentedSource) Fetch(ctx context.Context, q weather.Query) (weather.ForecastResult, error) {
	start := time.Now()
	res, err := s.source.Fetch(ctx, q)
	s.metrics.fetches.WithLabelValues(s.source.Name(), outcome(err)).Observe(time.Since(start).Seconds())
	return res, err
}

func outcome(err error) string {
	var (
		netErr *weather.NetworkError
		decErr *weather.DecodeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &decErr):
		return "decode_error"
	case errors.As(err, &netErr):
		return "network_error"
	case errors.Is(err, weather.ErrInvalidQuery):
		return "invalid_query"
	default:
		return "error"
	}
}
