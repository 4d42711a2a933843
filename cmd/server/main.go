package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/questlog/internal/app"
	"github.com/benvon/questlog/internal/config"
	"github.com/benvon/questlog/internal/handlers"
	"github.com/benvon/questlog/internal/logger"
	"github.com/benvon/questlog/internal/metrics"
	"github.com/benvon/questlog/internal/middleware"
	"github.com/benvon/questlog/internal/queue"
	"github.com/benvon/questlog/internal/request"
	"github.com/benvon/questlog/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "questlog-server"

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	devFlag := flag.Bool("dev", false, "Use the human-readable console logger")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override debug mode if flag is set
	debugMode := cfg.ServerDebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.New(serviceName, *devFlag, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("catalog_source", cfg.CatalogSource),
		zap.Duration("sync_interval", cfg.SyncInterval),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	shutdownTracer, err := telemetry.Setup(context.Background(), cfg.OTELEnabled && cfg.OTELEndpoint != "", serviceName, cfg.OTELEndpoint, zapLogger)
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	// Open the progress store, the local cache and the session manager
	rt, err := app.Open(context.Background(), cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_backends", zap.Error(err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			zapLogger.Warn("failed_to_close_backends", zap.Error(err))
		}
	}()

	healthChecker := handlers.NewHealthChecker()
	for name, check := range rt.Checks() {
		healthChecker.AddCheck(name, check)
	}

	// RabbitMQ is optional for the server: it only reports queue health and
	// collects the dead letter queue. Boundary jobs are consumed by the worker.
	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		rabbit, err := app.ConnectQueue(context.Background(), cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := rabbit.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		jobQueue = rabbit
		healthChecker.AddCheck("queue", jobQueue.HealthCheck)
	}

	// Rate limiting shares Redis with the cache when it is configured
	rateLimitStore, err := middleware.NewRateLimitStore(rt.Redis)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	rateLimitMW, err := middleware.RateLimit(rateLimitStore, cfg.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Initialize handlers
	progressHandler := handlers.NewProgressHandler(rt.Manager, rt.Remote, zapLogger)
	var editableTree = rt.Tree
	if cfg.CatalogSource != config.CatalogStore {
		editableTree = nil
	}
	catalogHandler := handlers.NewCatalogHandler(rt.Manager, editableTree, zapLogger)

	// Setup router
	r := mux.NewRouter()

	// Middleware registered first runs outermost
	zapLogger.Info("setting_up_middleware")
	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		r.Use(otelmux.Middleware(serviceName))
	}
	if cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL, zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Public routes (no rate limiting for health checks and scraping)
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// API v1 routes
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitMW)

	catalogHandler.RegisterRoutes(apiRouter.PathPrefix("/catalog").Subrouter())

	usersRouter := apiRouter.PathPrefix("/users/{" + request.UserIDVar + "}").Subrouter()
	if activityRepo := rt.Activity(); activityRepo != nil {
		usersRouter.Use(middleware.ActivityTracking(activityRepo, zapLogger))
	}
	progressHandler.RegisterRoutes(usersRouter)

	// Preflight requests are answered by the CORS middleware
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Background loops: periodic sync, catalog reload and cross-process refresh
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		rt.Manager.RunSync(bgCtx, cfg.SyncInterval)
	}()

	if cfg.CatalogSource == config.CatalogStore {
		if err := rt.Manager.WatchCatalog(bgCtx, rt.Tree); err != nil {
			zapLogger.Warn("failed_to_watch_catalog", zap.Error(err))
		}
	}
	if err := rt.Manager.WatchUsers(bgCtx, rt.Tree); err != nil {
		zapLogger.Warn("failed_to_watch_users", zap.Error(err))
	}

	// Start DLQ garbage collector if the queue implementation supports it
	// Run every hour, retain messages for 24 hours
	if dlqPurger, ok := jobQueue.(queue.DLQPurger); ok {
		dlqGC := queue.NewGarbageCollector(dlqPurger, time.Hour, 24*time.Hour, zapLogger)
		go func() {
			if err := dlqGC.Start(bgCtx); err != nil && err != context.Canceled {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	// Stopping the sync loop runs a final sync of every loaded session
	bgCancel()
	<-syncDone

	zapLogger.Info("server_exited")
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"version":"1.0.0","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
