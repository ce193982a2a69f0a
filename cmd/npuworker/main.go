// Command npuworker runs an NPU Worker: it registers with a Node Runner,
// accepts /run-node jobs, and executes them via a Sandbox (spec.md §4.7).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowkit-run/flowkit/internal/config"
	"github.com/flowkit-run/flowkit/internal/npu"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadNpuConfig()
	logger := obslog.NewLogger("npuworker")
	emitter := obslog.NewLogrusEmitter(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sandbox := npu.NewLocalSandbox()
	worker := npu.NewWorker(cfg.Host, cfg.NodeRunnerAddr, sandbox, emitter)

	logger.WithField("id", worker.ID()).Info("registering with node runner")
	if err := worker.Register(ctx); err != nil {
		logger.WithError(err).Fatal("register")
	}

	go worker.RunHeartbeat(ctx)

	server := npu.NewServer(worker)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	srv := &http.Server{Addr: addrFromURL(cfg.Host), Handler: mux}

	go func() {
		logger.WithField("addr", srv.Addr).Info("npu worker listening")
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

// addrFromURL strips a scheme from a self-address URL like
// "http://0.0.0.0:8090" down to the bare "0.0.0.0:8090" http.Server wants.
func addrFromURL(url string) string {
	for _, prefix := range []string{"http://", "https://"} {
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}
