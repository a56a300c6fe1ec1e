package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stream-telemetry/internal/engine"
	"stream-telemetry/internal/platform/config"
	"stream-telemetry/internal/platform/logger"
	"stream-telemetry/internal/platform/metrics"
	"stream-telemetry/internal/updates"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	cfg := engine.DefaultConfig()
	cfg.RecordingDir = config.GetEnv("RECORDING_DIR", cfg.RecordingDir)
	cfg.RecordingFPS = config.GetEnvFloat("RECORDING_FPS", cfg.RecordingFPS)
	cfg.RecordingEnabled = config.GetEnvBool("RECORDING_ENABLED", cfg.RecordingEnabled)
	cfg.StreamInterval = time.Duration(config.GetEnvInt("STREAM_INTERVAL_MS", int(cfg.StreamInterval.Milliseconds()))) * time.Millisecond
	cfg.StreamWidth = config.GetEnvInt("STREAM_WIDTH", cfg.StreamWidth)
	cfg.StreamHeight = config.GetEnvInt("STREAM_HEIGHT", cfg.StreamHeight)
	cfg.HeatmapCellSize = config.GetEnvInt("HEATMAP_CELL_SIZE", cfg.HeatmapCellSize)
	cfg.HeatmapDecay = float32(config.GetEnvFloat("HEATMAP_DECAY", float64(cfg.HeatmapDecay)))
	cfg.HeatmapAlpha = config.GetEnvFloat("HEATMAP_ALPHA", cfg.HeatmapAlpha)
	cfg.HeatmapConfidence = config.GetEnvFloat("HEATMAP_CONFIDENCE", cfg.HeatmapConfidence)
	cfg.HeatmapMaxBatches = config.GetEnvInt("HEATMAP_MAX_BATCHES", cfg.HeatmapMaxBatches)
	cfg.BufferLimit = config.GetEnvInt("DETECTION_BUFFER_LIMIT", cfg.BufferLimit)

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	catalog := engine.NewCatalog()
	registry := engine.NewRegistry(cfg, catalog, log, met)
	buffer := engine.NewBuffer(cfg.BufferLimit)
	compositor := engine.NewCompositor(registry, buffer, cfg, log, met)
	hub := updates.NewHub(log)
	h := engine.NewHandler(registry, buffer, catalog, compositor, hub, cfg, log, met)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() { _ = hub.Run(hubCtx) }()

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log, "/stream", "/ws/ingest", "/ws/updates"))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(registry.ActiveCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	// Canceling baseCtx cancels every in-flight request context, which is
	// how the long-lived MJPEG streams learn about shutdown.
	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()

	addr := ":" + port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"recording_dir", cfg.RecordingDir,
		"stream_interval_ms", cfg.StreamInterval.Milliseconds(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	hubCancel()
	baseCancel()

	// Finalize any open recordings so no file is left without metadata.
	for _, id := range registry.ActiveIDs() {
		registry.Disconnect(id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
