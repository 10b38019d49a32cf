// Command hubflow runs an orchestration hub as a standalone process: it loads
// configuration, wires the hub, exposes health and metrics endpoints, and
// shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/hubflow/config"
	"github.com/BaSui01/hubflow/hub"
)

func main() {
	configPath := os.Getenv("HUBFLOW_CONFIG")

	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		panic(err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("hub exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	h, err := hub.New(cfg, hub.WithLogger(logger))
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(context.Background(), cfg.Hub.InitTimeout)
	defer cancel()
	if err := h.Initialize(initCtx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := h.Health()
		w.Header().Set("Content-Type", "application/json")
		if !health.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
	if reg := h.Registry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	logger.Info("hub running", zap.String("name", h.Name()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Hub.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	return h.Cleanup(shutdownCtx)
}
