package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sales-analytics/internal/app"
	"sales-analytics/internal/config"
	"sales-analytics/internal/dataset"
	"sales-analytics/internal/handlers"
	"sales-analytics/internal/middleware"
	"sales-analytics/internal/observability"
	"sales-analytics/internal/server"
	"sales-analytics/internal/services"
	"sales-analytics/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	cacheMaxAge    = "public, max-age=300"
	limiterSweep   = time.Minute
	limiterMaxIdle = 5 * time.Minute
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard().Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", handlers.Version,
		"addr", cfg.Address(),
		"dataset_source", cfg.Dataset.Source,
	)

	src, closeSource, err := newSource(context.Background(), cfg.Dataset)
	if err != nil {
		logger.Error("failed to open dataset source", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Dataset.LoadTimeout)
	state := app.Bootstrap(ctx, src, services.NewTrainer(cfg.Model, logger), logger)
	cancel()

	if state.Degraded() {
		logger.Warn("serving in degraded mode",
			"dataset_error", state.DatasetErr,
			"model_error", state.ModelErr,
		)
	}

	handler, limiter, err := newHandler(cfg, state, logger)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepLimiters(sweepCtx, limiter, logger)
	gracefulServer.RegisterShutdownHook("rate-limiter", func(ctx context.Context) error {
		stopSweep()
		return nil
	})
	gracefulServer.RegisterShutdownHook("dataset-source", func(ctx context.Context) error {
		closeSource()
		return nil
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}

// newSource returns the configured dataset source and a function releasing
// whatever it holds open.
func newSource(ctx context.Context, cfg config.DatasetConfig) (dataset.Source, func(), error) {
	switch cfg.Source {
	case config.SourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres pool: %w", err)
		}
		return dataset.PostgresSource{DB: pool, Table: cfg.Table}, pool.Close, nil
	default:
		return dataset.CSVSource{Path: cfg.CSVFile}, func() {}, nil
	}
}

func newHandler(cfg *config.Config, state *app.App, logger *slog.Logger) (http.Handler, *middleware.RateLimiter, error) {
	analytics := services.NewAnalytics(state.Dataset, logger)
	predictions, err := services.NewPredictions(state.Predictor(), cfg.Model.PredictionCacheSize, logger)
	if err != nil {
		return nil, nil, err
	}
	if state.Model != nil && state.Holdout.Samples > 0 {
		predictions.WithHoldout(state.Holdout)
	}

	srv := server.NewServer(analytics, predictions, logger, &server.TemplateHandlers{
		Dashboard: handleDashboard,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	return middlewareChain(srv), rateLimiter, nil
}

func sweepLimiters(ctx context.Context, limiter *middleware.RateLimiter, logger *slog.Logger) {
	ticker := time.NewTicker(limiterSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(limiterMaxIdle); n > 0 {
				logger.Debug("swept idle rate limiters", "removed", n)
			}
		}
	}
}
