package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchstream/internal/config"
	logpkg "github.com/kailas-cloud/searchstream/internal/logger"
	"github.com/kailas-cloud/searchstream/internal/metrics"
	searchrepo "github.com/kailas-cloud/searchstream/internal/repository/search"
	chiTransport "github.com/kailas-cloud/searchstream/internal/transport/chi"
	healthuc "github.com/kailas-cloud/searchstream/internal/usecase/health"
	jobuc "github.com/kailas-cloud/searchstream/internal/usecase/job"
	"github.com/kailas-cloud/searchstream/internal/usecase/mapping"
	searchuc "github.com/kailas-cloud/searchstream/internal/usecase/search"
	"github.com/kailas-cloud/searchstream/internal/version"
)

func main() {
	// Optional .env for local runs; real environments set variables directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchstream API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("search_driver", cfg.Search.Driver),
		zap.Strings("search_addrs", cfg.Search.Addrs),
		zap.Int("indexes", len(cfg.Indexes)),
	)

	searchBackend, err := openBackend(cfg)
	if err != nil {
		logger.Fatal("Failed to create search backend", zap.Error(err))
	}
	defer searchBackend.store.Close()

	ctx := context.Background()
	if err := searchBackend.store.WaitForReady(ctx, time.Duration(cfg.Search.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Search backend not ready", zap.Error(err))
	}
	logger.Info("Connected to search backend")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	indexes, facets := buildIndexes(cfg.Indexes)
	client := searchrepo.New(searchBackend.store, facets, logger)
	searchSvc := searchuc.New(client, searchBackend.entityResolver(cfg.Indexes), indexes, searchuc.Limits{
		DefaultPageSize: cfg.Pagination.DefaultSize,
		MaxPageSize:     cfg.Pagination.MaxSize,
		StreamBatchSize: cfg.Stream.BatchSize,
	})

	jobStore, err := openJobStore(cfg, searchBackend)
	if err != nil {
		logger.Fatal("Failed to create job cache", zap.Error(err))
	}
	mapper := mapping.New(client, buildRules(cfg))
	engine := jobuc.New(jobStore, mapper, jobuc.Config{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		MaxIDs:    cfg.Jobs.MaxIDs,
	}, logger)

	healthSvc := healthuc.New(searchBackend.store, jobStore)

	server := chiTransport.NewServer(searchSvc, engine, healthSvc, chiTransport.StreamSettings{
		FlushEvery: cfg.Stream.FlushEvery,
		LogEvery:   cfg.Stream.LogEvery,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	chiTransport.HandlerWithOptions(server, chiTransport.ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, _ *http.Request, err error) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
				Code:    chiTransport.ErrorCodeBadRequest,
				Message: err.Error(),
			})
		},
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Error("Job workers did not stop in time", zap.Error(err))
	}
	jobStore.Close()

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line. Streams log once they finished, so latency covers the whole download.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
