// Package main provides the quantity calculation API service entry point.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pharmetric/rxcalc/internal/adapters/ai"
	"github.com/pharmetric/rxcalc/internal/adapters/ndc"
	"github.com/pharmetric/rxcalc/internal/adapters/rxnorm"
	"github.com/pharmetric/rxcalc/internal/api/handlers"
	"github.com/pharmetric/rxcalc/internal/api/middleware"
	"github.com/pharmetric/rxcalc/internal/calc"
	"github.com/pharmetric/rxcalc/internal/config"
	"github.com/pharmetric/rxcalc/internal/domain/dosing"
	"github.com/pharmetric/rxcalc/internal/observability/metrics"
	"github.com/pharmetric/rxcalc/internal/observability/tracing"
	"github.com/pharmetric/rxcalc/pkg/cache"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
	"github.com/pharmetric/rxcalc/pkg/httpretry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not up yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()

	// Tracing
	tp, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    "rxcalc-api",
		ServiceVersion: "1.0.0",
		Environment:    getEnvName(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
	})
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	// Metrics
	m := metrics.New(nil)

	// Shared lookup cache
	var lookupCache *cache.Cache
	if cfg.CacheEnabled {
		lookupCache = cache.New(cfg.CacheMaxSize, cfg.CacheTTL, logger)
	}

	// Circuit breakers, one per upstream
	hook := m.BreakerStateHook()
	aiBreaker := circuitbreaker.New(circuitbreaker.AIDefaults("ai"), logger, hook)
	rxnormBreaker := circuitbreaker.New(circuitbreaker.CatalogDefaults("rxnorm"), logger, hook)
	ndcBreaker := circuitbreaker.New(circuitbreaker.CatalogDefaults("ndc"), logger, hook)

	retryClient := httpretry.New(httpretry.Config{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    cfg.ExternalTimeout,
	}, logger)

	// AI adapters share one model configuration.
	aiCfg := ai.DefaultConfig(cfg.AnthropicAPIKey)
	if cfg.AnthropicModel != "" {
		aiCfg.Model = cfg.AnthropicModel
	}
	aiCfg.Temperature = cfg.AITemperature
	aiCfg.MaxTokens = int64(cfg.AIMaxTokens)
	aiCfg.MaxRetries = cfg.AIMaxRetries

	parser := ai.NewParser(aiCfg, aiBreaker, logger)
	selector := ai.NewSelector(aiCfg, aiBreaker, logger)
	advisor := ai.NewAdvisor(aiCfg, aiBreaker, logger)

	normalizer := rxnorm.New(rxnorm.Options{
		BaseURL: cfg.RxNormBaseURL,
		Cache:   lookupCache,
		Breaker: rxnormBreaker,
		Retry:   retryClient,
		Observe: m.AdapterTimer("rxnorm"),
		Logger:  logger,
	})
	catalogClient := ndc.New(ndc.Options{
		BaseURL: cfg.FDABaseURL,
		Limit:   cfg.FDAResultLimit,
		Cache:   lookupCache,
		Breaker: ndcBreaker,
		Retry:   retryClient,
		Observe: m.AdapterTimer("ndc"),
		Logger:  logger,
	})

	calculator, err := calc.New(calc.Deps{
		Parser:         parser,
		Normalizer:     normalizer,
		Catalog:        catalogClient,
		Selector:       selector,
		DosingPolicy:   dosing.Policy{PRNPerDay: float64(cfg.PRNDefaultMaxPerDay)},
		StrengthPolicy: calc.StrengthPolicy(cfg.StrengthPolicy),
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("calculator init failed", zap.Error(err))
	}

	calcHandler := handlers.NewCalculationHandler(calculator, advisor, m, logger)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("rxcalc-api"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		// The service holds no local state; readiness equals liveness.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitEnabled {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMin, cfg.RateLimitBurst, logger))
		}
		r.Mount("/calculations", calcHandler.Routes())
	})

	// LLM-backed calculations can take tens of seconds end to end.
	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting calculation API",
		zap.String("addr", cfg.ListenAddr()),
		zap.String("strength_policy", cfg.StrengthPolicy),
		zap.Bool("cache_enabled", cfg.CacheEnabled))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func getEnvName() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
