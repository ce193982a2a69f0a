// Command tracerecorder runs the Trace Recorder process: durable, ordered
// storage of every node execution (spec.md §4.6).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowkit-run/flowkit/internal/config"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/flowkit-run/flowkit/internal/trace"
	"github.com/flowkit-run/flowkit/internal/trace/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadTraceConfig()
	logger := obslog.NewLogger("tracerecorder")

	var backend store.Store
	switch {
	case cfg.MysqlDSN != "":
		mysqlStore, err := store.NewMySQLStore(cfg.MysqlDSN)
		if err != nil {
			logger.WithError(err).Fatal("connect to mysql")
		}
		defer mysqlStore.Close()
		backend = mysqlStore
	case cfg.SQLitePath != "":
		sqliteStore, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.WithError(err).Fatal("open sqlite store")
		}
		defer sqliteStore.Close()
		backend = sqliteStore
	default:
		logger.Warn("neither TRACE_MYSQL_DSN nor TRACE_SQLITE_PATH set, using in-memory trace store")
		backend = store.NewMemStore()
	}

	recorder := trace.NewRecorder(backend)
	server := trace.NewServer(recorder)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	srv := &http.Server{Addr: cfg.Host + ":" + cfg.Port, Handler: mux}

	go func() {
		logger.WithField("addr", srv.Addr).Info("trace recorder listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("listen")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
