// Command secretmanager runs the Secret Manager: a minimal key/value
// backend for the secret-resolution pipeline (spec.md §3, §6.4).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowkit-run/flowkit/internal/config"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/flowkit-run/flowkit/internal/secretstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// secretEnvPrefix is the environment variable prefix used to seed the
// store at startup, e.g. FLOWKIT_SECRET_OPENAI_KEY=sk-xyz.
const secretEnvPrefix = "FLOWKIT_SECRET_"

func seedFromEnv() map[string]string {
	seed := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], secretEnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(parts[0], secretEnvPrefix)
		seed[key] = parts[1]
	}
	return seed
}

func main() {
	cfg := config.LoadSecretConfig()
	logger := obslog.NewLogger("secretmanager")

	store := secretstore.NewStore(seedFromEnv())
	server := secretstore.NewServer(store)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	srv := &http.Server{Addr: cfg.Host + ":" + cfg.Port, Handler: mux}

	go func() {
		logger.WithField("addr", srv.Addr).Info("secret manager listening")
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
