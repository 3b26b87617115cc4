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
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/config"
	"github.com/kailas-cloud/embedx/internal/db"
	dbRedis "github.com/kailas-cloud/embedx/internal/db/redis"
	"github.com/kailas-cloud/embedx/internal/domain"
	"github.com/kailas-cloud/embedx/internal/engine/statistical"
	logpkg "github.com/kailas-cloud/embedx/internal/logger"
	"github.com/kailas-cloud/embedx/internal/metrics"
	"github.com/kailas-cloud/embedx/internal/notify"
	"github.com/kailas-cloud/embedx/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/embedx/internal/transport/chi"
	hfBackend "github.com/kailas-cloud/embedx/internal/transport/huggingface"
	openaiBackend "github.com/kailas-cloud/embedx/internal/transport/openai"
	healthuc "github.com/kailas-cloud/embedx/internal/usecase/health"
	"github.com/kailas-cloud/embedx/internal/usecase/hybrid"
	"github.com/kailas-cloud/embedx/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting embedx API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("method", cfg.Embedding.Method),
	)

	// Optional persistent cache store
	var store db.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(context.Background(), readiness); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Database.Addrs))
	}

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	orchestrator, err := buildOrchestrator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedding orchestrator", zap.Error(err))
	}
	defer func() {
		if err := orchestrator.Cleanup(); err != nil {
			logger.Error("Orchestrator cleanup failed", zap.Error(err))
		}
	}()

	logger.Info("Embedding orchestrator ready",
		zap.String("backend", orchestrator.ActiveBackendName()),
		zap.Int("dimensions", orchestrator.Dimensions()),
		zap.Bool("using_fallback", orchestrator.UsingFallback()),
	)

	// Persistent cache tier wraps the orchestrator when a store is configured.
	var embedder chiTransport.EmbedService = orchestrator
	if store != nil {
		cacheTotal := metrics.EmbeddingCacheTotal.MustCurryWith(prometheus.Labels{"backend": "store"})
		ttl := time.Duration(cfg.Database.CacheTTLSec) * time.Second
		embedder = embcache.New(orchestrator, store, ttl, cacheTotal, logger)
	}

	var pinger healthuc.StorePinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(orchestrator, pinger)

	server := chiTransport.NewServer(embedder, orchestrator, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

	logger.Info("Server stopped gracefully")
}

// buildOrchestrator assembles the engine and preferred backends and brings
// the whole chain up. Neural precedes remote in the auto preference order.
func buildOrchestrator(cfg config.Config, logger *zap.Logger) (*hybrid.Orchestrator, error) {
	engine := statistical.New(statistical.Config{
		Dimensions:           cfg.Embedding.Statistical.Dimensions,
		MaxVocabularySize:    cfg.Embedding.Statistical.MaxVocabularySize,
		MinDocumentFrequency: cfg.Embedding.Statistical.MinDocumentFrequency,
		MaxDocumentFrequency: cfg.Embedding.Statistical.MaxDocumentFrequency,
		UseStopwords:         !cfg.Embedding.Statistical.DisableStopwords,
		UseStemming:          cfg.Embedding.Statistical.UseStemming,
		MinWordLength:        cfg.Embedding.Statistical.MinWordLength,
		CacheSize:            cfg.Embedding.Statistical.CacheSize,
	}, logger)

	method, err := domain.ParseMethod(cfg.Embedding.Method)
	if err != nil {
		return nil, err
	}

	orchestrator := hybrid.New(engine, hybrid.Config{
		Method:          method,
		FallbackTimeout: time.Duration(cfg.Embedding.FallbackTimeoutMS) * time.Millisecond,
	}, logger).WithNotifier(notify.NewLogNotifier(logger))

	if cfg.Embedding.Neural.Enabled {
		orchestrator.RegisterBackend(domain.MethodNeural, hfBackend.New(hfBackend.Config{
			ModelID:    cfg.Embedding.Neural.ModelID,
			Token:      cfg.Embedding.Neural.Token,
			Dimensions: cfg.Embedding.Neural.Dimensions,
			CacheSize:  cfg.Embedding.Neural.CacheSize,
			Logger:     logger,
		}))
	}
	if cfg.Embedding.Remote.Enabled {
		orchestrator.RegisterBackend(domain.MethodRemote, openaiBackend.New(openaiBackend.Config{
			APIKey:       cfg.Embedding.Remote.APIKey,
			BaseURL:      cfg.Embedding.Remote.BaseURL,
			Model:        cfg.Embedding.Remote.Model,
			Dimensions:   cfg.Embedding.Remote.Dimensions,
			MaxBatchSize: cfg.Embedding.Remote.MaxBatchSize,
			BatchDelay:   time.Duration(cfg.Embedding.Remote.BatchDelayMS) * time.Millisecond,
			CacheSize:    cfg.Embedding.Remote.CacheSize,
			Logger:       logger,
		}))
	}

	if err := orchestrator.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return orchestrator, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
