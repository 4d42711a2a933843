package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benvon/questlog/internal/app"
	"github.com/benvon/questlog/internal/config"
	"github.com/benvon/questlog/internal/logger"
	"github.com/benvon/questlog/internal/queue"
	"github.com/benvon/questlog/internal/telemetry"
	"github.com/benvon/questlog/internal/workers"
	"go.uber.org/zap"
)

const serviceName = "questlog-worker"

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
	debugMode := cfg.WorkerDebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.New(serviceName, *devFlag, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required")
	}

	loc, err := cfg.Location()
	if err != nil {
		zapLogger.Fatal("invalid_timezone", zap.Error(err))
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("timezone", loc.String()),
		zap.String("week_start", cfg.WeekStart.String()),
		zap.Duration("schedule_interval", cfg.ScheduleInterval),
		zap.Int("max_retries", cfg.JobMaxRetries),
	)

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

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_backends", zap.Error(err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			zapLogger.Warn("failed_to_close_backends", zap.Error(err))
		}
	}()

	jobQueue, err := app.ConnectQueue(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	processor := workers.NewBoundaryProcessor(rt.Manager, rt.Cache, jobQueue, zapLogger)

	// Prefer the activity table so idle users stop getting boundary jobs
	var users workers.UserLister = workers.NewTreeUsers(rt.Tree)
	schedulerOpts := []workers.SchedulerOption{workers.WithMaxRetries(cfg.JobMaxRetries)}
	if activityRepo := rt.Activity(); activityRepo != nil {
		users = activityRepo
		schedulerOpts = append(schedulerOpts, workers.WithIdlePause(cfg.IdlePause))
	}
	scheduler := workers.NewBoundaryScheduler(
		jobQueue,
		users,
		workers.Calendar{Location: loc, WeekStart: cfg.WeekStart},
		zapLogger,
		schedulerOpts...,
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start consuming messages
	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming_messages", zap.Error(err))
	}

	zapLogger.Info("worker_started", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	var wg sync.WaitGroup

	// Process messages
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return
				}
				if err := processor.ProcessJob(ctx, msg); err != nil {
					job := msg.GetJob()
					zapLogger.Error("failed_to_process_job",
						zap.Error(err),
						zap.String("job_id", job.ID.String()),
						zap.String("job_type", string(job.Type)),
					)
				}
			}
		}
	}()

	// Handle errors
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	// Schedule boundary jobs immediately and then on every interval
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx, cfg.ScheduleInterval)
	}()

	// Push archives and states that could not reach the remote store at boundary time
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Manager.RunSync(ctx, cfg.SyncInterval)
	}()

	// Pick up writes the server made to sessions this worker holds
	if err := rt.Manager.WatchUsers(ctx, rt.Tree); err != nil {
		zapLogger.Warn("failed_to_watch_users", zap.Error(err))
	}

	// Run every hour, retain dead-lettered jobs for 24 hours
	var dlqPurger queue.DLQPurger = jobQueue
	dlqGC := queue.NewGarbageCollector(dlqPurger, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	zapLogger.Info("worker_shutting_down")

	// Cancel context to stop processing; the sync loop flushes loaded sessions on exit
	cancel()
	wg.Wait()

	zapLogger.Info("worker_stopped")
}
