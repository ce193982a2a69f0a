// Command flowexecutor runs the Flow Executor process: it owns the FCB
// queue, its durable MongoDB-backed store, and the HTTP API described in
// spec.md §6.1.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowkit-run/flowkit/internal/config"
	"github.com/flowkit-run/flowkit/internal/executor"
	"github.com/flowkit-run/flowkit/internal/fcb"
	"github.com/flowkit-run/flowkit/internal/fcb/store"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadExecutorConfig()
	logger := obslog.NewLogger("flowexecutor")

	otelEmitter, shutdownTracing := obslog.SetupTracing("flowexecutor")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()
	emitter := obslog.NewMultiEmitter(obslog.NewLogrusEmitter(logger), otelEmitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backend fcb.Store
	if cfg.SQLitePath != "" {
		sqliteStore, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.WithError(err).Fatal("open sqlite store")
		}
		defer sqliteStore.Close()
		backend = sqliteStore
	} else {
		mongoStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.DBName, cfg.Collection)
		if err != nil {
			logger.WithError(err).Fatal("connect to mongo")
		}
		defer mongoStore.Close(context.Background())
		backend = mongoStore
	}

	dispatcher := executor.NewNodeRunnerClient(cfg.NodeRunnerAddr)
	tracer := executor.NewTraceRecorderClient(cfg.TraceServiceAddr)

	queue := fcb.NewQueue(backend, dispatcher, tracer, emitter, cfg.PoolSize)

	logger.Info("recovering flows from storage")
	if err := queue.RecoverFromStorage(ctx); err != nil {
		logger.WithError(err).Error("recover from storage")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", executor.NewServer(queue).Router())

	srv := &http.Server{Addr: cfg.Host + ":" + cfg.Port, Handler: mux}

	go func() {
		logger.WithField("addr", srv.Addr).Info("flow executor listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("listen")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	queue.CleanUp()
}
