// Command noderunner runs the Node Runner process: the NPU session
// registry, scheduler, dispatcher, and secret-resolving preprocessor
// (spec.md §4.3-§4.5).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowkit-run/flowkit/internal/config"
	"github.com/flowkit-run/flowkit/internal/noderunner"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadRunnerConfig()
	logger := obslog.NewLogger("noderunner")

	otelEmitter, shutdownTracing := obslog.SetupTracing("noderunner")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()
	emitter := obslog.NewMultiEmitter(obslog.NewLogrusEmitter(logger), otelEmitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisAddr := fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)
	session := noderunner.NewSession(redisAddr, cfg.NpuExpirySeconds)
	scheduler := noderunner.NewScheduler(session)
	secrets := noderunner.NewSecretResolver(cfg.SecretManagerURL)

	selfURL := "http://" + cfg.Host + ":" + cfg.Port
	dispatcher := noderunner.NewDispatcher(scheduler, secrets, selfURL, emitter)

	server := noderunner.NewServer(session, dispatcher)

	go server.RunSweeper(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	srv := &http.Server{Addr: cfg.Host + ":" + cfg.Port, Handler: mux}

	go func() {
		logger.WithField("addr", srv.Addr).Info("node runner listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("listen")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
