// Package main provides the entry point for proxydl.
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

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/classify"
	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/handlers"
	"github.com/Rorqualx/proxydl/internal/logging"
	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/middleware"
	"github.com/Rorqualx/proxydl/internal/report"
	"github.com/Rorqualx/proxydl/internal/session"
	"github.com/Rorqualx/proxydl/pkg/version"
)

// requestSlack is added to the longest download wait to bound a request.
const requestSlack = 2 * time.Minute

func main() {
	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	logCloser, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	cfg.Validate()

	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting proxydl")

	rules, err := classify.NewManager(cfg.ClassifyPath, cfg.ClassifyHotReload)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load classification rules")
	}

	if err := os.MkdirAll(cfg.DownloadsFolder, 0o755); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DownloadsFolder).Msg("Failed to create downloads folder")
	}

	sessionMgr := session.NewManager(cfg, session.BrowserFactory(cfg, rules))
	handler := handlers.New(sessionMgr, cfg, report.New())

	// Recovery is outermost so it also catches panics in logging.
	finalHandler := middleware.Chain(
		middleware.Recovery,
		middleware.RequestID,
		middleware.Logging,
		middleware.APIKey(cfg),
		middleware.Deadline(config.MaxTimeout+cfg.StabilizationTimeout+requestSlack),
	)(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to signal shutdown to background tasks
	stopCh := make(chan struct{})

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		go metrics.StartMemoryCollector(10*time.Second, stopCh)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Int("port", cfg.MetricsPort).Msg("Prometheus metrics server started")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	go func() {
		log.Info().
			Str("address", addr).
			Bool("proxy_enabled", cfg.ProxyEnabled).
			Str("file_download", cfg.FileDownload).
			Str("downloads_folder", cfg.DownloadsFolder).
			Bool("metrics_enabled", cfg.MetricsEnabled).
			Msg("proxydl is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	close(stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}
	if err := sessionMgr.Close(); err != nil {
		log.Error().Err(err).Msg("Session manager close error")
	}
	if err := rules.Close(); err != nil {
		log.Error().Err(err).Msg("Classification rules close error")
	}

	log.Info().Msg("Shutdown complete")
}
