package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/time/rate"

	httpapi "github.com/i474232898/agri-assist/internal/api/http"
	"github.com/i474232898/agri-assist/internal/assistant"
	"github.com/i474232898/agri-assist/internal/classifier"
	"github.com/i474232898/agri-assist/internal/config"
	"github.com/i474232898/agri-assist/internal/market"
	"github.com/i474232898/agri-assist/internal/metrics"
	"github.com/i474232898/agri-assist/internal/scheduler"
	"github.com/i474232898/agri-assist/internal/store"
	"github.com/i474232898/agri-assist/internal/weather"
	"github.com/i474232898/agri-assist/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	m := metrics.New()
	providers.ObserveBreakers(m)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	limiter := func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst)
	}

	// Providers with resilience (rate limit + backoff + circuit breaker), in failover order.
	var provs []weather.Provider
	if cfg.TomorrowAPIKey != "" {
		provs = append(provs, providers.NewTomorrowProvider(httpClient, cfg.TomorrowAPIKey, limiter()))
	}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, limiter()))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, limiter()))
	}
	// Open-Meteo needs no key and geocodes through its own API.
	if !cfg.DisableOpenMeteo {
		provs = append(provs, providers.NewOpenMeteoProvider(httpClient, limiter()))
	}
	if len(provs) == 0 {
		log.Printf("INFO: no weather providers configured; forecasts will fail")
	}

	forecasts := weather.NewService(provs, cfg.WeatherCacheTTL, cfg.HTTPTimeout, m, m)

	labels, err := classifier.LoadLabels(cfg.ModelLabels)
	if err != nil {
		log.Fatalf("failed to load model labels: %v", err)
	}
	detector := classifier.NewHandle(classifier.ONNXLoader(cfg.ModelPath, cfg.ONNXLibPath), labels, m)
	defer detector.Close()
	if cfg.WarmModel && cfg.ModelPath != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := detector.Load(ctx); err != nil {
				log.Printf("ERROR: model warm-up failed: %v", err)
			}
		}()
	}

	conversations := store.NewMemoryStore(cfg.ChatMaxHistory, cfg.ChatMaxIdle)
	chat := assistant.New(assistant.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ChatModel,
	}, conversations, m)

	prices := market.NewLoader(cfg.MarketDataDir, m)

	// Scheduler that keeps forecasts warm and drops stale state.
	sched := scheduler.New(cfg.Locations, cfg.DefaultForecastDays, cfg.WarmInterval, 30*time.Second, forecasts, conversations)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "agri-assist",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		BodyLimit:             classifier.MaxImageBytes + 1<<20,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(m.Middleware())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Weather:     forecasts,
		Classifier:  detector,
		Assistant:   chat,
		Market:      prices,
		MarketFile:  cfg.MarketDataFile,
		Metrics:     m.Handler(),
		DefaultDays: cfg.DefaultForecastDays,
		MaxDays:     cfg.MaxForecastDays,
	})

	go func() {
		log.Printf("INFO: listening on :%s with %d weather providers", cfg.Port, len(provs))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
