// Package main is the entry point for the coordworker daemon.
// The worker drains the durable job queue: it owns concurrency, timeouts,
// retries, periodic stale-job reclamation, and the metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coordplane/internal/config"
	"coordplane/internal/jobqueue"
	"coordplane/internal/lockreg"
	"coordplane/internal/logger"
	"coordplane/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "coordworker", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err.Error())
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err.Error())
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("metrics server error", "error", err.Error())
		}
	}()

	locks := lockreg.New(cfg.LocksDir(), log)
	queue := jobqueue.New(cfg, locks, log)

	// Periodic reclamation of jobs abandoned by dead workers. A GC pass
	// blocked by an advisory lock just waits for the next tick.
	gcInterval := cfg.GCThreshold / 2
	if gcInterval <= 0 {
		gcInterval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reclaimed, err := queue.GC(cfg.GCThreshold)
				if err != nil {
					var blocked *jobqueue.ErrBlocked
					if errors.As(err, &blocked) {
						log.Info("gc pass skipped", "lock_id", blocked.LockID, "created_by", blocked.CreatedBy)
						continue
					}
					log.Error("gc pass failed", "error", err.Error())
					continue
				}
				if len(reclaimed) > 0 {
					log.Info("gc reclaimed stale jobs", "count", len(reclaimed))
				}
			}
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- queue.RunLoop(ctx, 0, cfg.WorkerConcurrency)
	}()

	log.Info("worker started", "root", cfg.Root, "concurrency", cfg.WorkerConcurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker loop exited", "error", err.Error())
	}
}
