package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/forecast-controller/internal/api/http"
	"github.com/i474232898/forecast-controller/internal/config"
	"github.com/i474232898/forecast-controller/internal/controller"
	"github.com/i474232898/forecast-controller/internal/metrics"
	"github.com/i474232898/forecast-controller/internal/scheduler"
	"github.com/i474232898/forecast-controller/internal/store"
	"github.com/i474232898/forecast-controller/internal/weather/providers"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.WeatherAPIKey == "" {
		log.Warn("WEATHERAPI_API_KEY is not set; every fetch will fail")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Remote source with resilience (backoff + circuit breaker), rate limited
	// and instrumented.
	remote := providers.NewWeatherAPISource(httpClient, providers.WeatherAPIConfig{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherAPIBaseURL,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.FetchMaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	})
	src := m.InstrumentSource(providers.NewRateLimitedSource(remote, cfg.RateLimitRPS, cfg.RateLimitBurst))

	history := store.NewMemoryStore(cfg.HistoryMax, cfg.HistoryMaxAge)

	ctrl := controller.New(src,
		controller.WithDefaultQuery(cfg.DefaultQuery),
		controller.WithLogger(log),
		controller.WithFallbackMessage(cfg.ErrorFallbackMessage),
		controller.WithFetchTimeout(cfg.FetchTimeout),
		controller.WithObserver(history.Observe),
		controller.WithObserver(m.Observe),
	)
	defer ctrl.Close()

	// Periodic reload of the last query.
	sched := scheduler.New(ctrl, cfg.AutoRefreshInterval, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "forecast-controller",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "forecast-controller",
			"state":   ctrl.CurrentState().Kind().String(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpapi.RegisterRoutes(app, ctrl, history)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
