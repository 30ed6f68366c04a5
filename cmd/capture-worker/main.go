package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/portraitlab/capture-pipeline/internal/cache"
	"github.com/portraitlab/capture-pipeline/internal/handlers"
	"github.com/portraitlab/capture-pipeline/internal/ledger"
	"github.com/portraitlab/capture-pipeline/internal/metrics"
	"github.com/portraitlab/capture-pipeline/internal/notify"
	"github.com/portraitlab/capture-pipeline/internal/pipeline"
	"github.com/portraitlab/capture-pipeline/internal/queue"
	"github.com/portraitlab/capture-pipeline/internal/source"
	"github.com/portraitlab/capture-pipeline/internal/storage"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	httpAddr := os.Getenv("WORKER_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	cfg := pipeline.Config{
		Cache: cache.Config{
			Enabled: envBool("CACHE_ENABLED", true),
			TTL:     envDuration("CACHE_TTL", 5*time.Minute),
			MaxSize: envInt("CACHE_MAX_SIZE", 128),
		},
		Queue: queue.Config{
			MaxConcurrent: envInt("QUEUE_MAX_CONCURRENT", 3),
		},
		RetryCount:          envInt("QUEUE_RETRY_COUNT", 2),
		RetryDelay:          envDuration("QUEUE_RETRY_DELAY", 500*time.Millisecond),
		Timeout:             envDuration("CAPTURE_TIMEOUT", 10*time.Second),
		SafetyTimeout:       envDuration("SAFETY_TIMEOUT", 30*time.Second),
		SegmentationEnabled: envBool("SEGMENTATION_ENABLED", true),
	}
	cfg.Segmentation.SmoothEdges = envBool("SEGMENTATION_SMOOTH_EDGES", true)
	cfg.Segmentation.SmoothRadius = envInt("SEGMENTATION_SMOOTH_RADIUS", 1)
	cfg.Segmentation.FallbackOnFail = envBool("SEGMENTATION_FALLBACK", true)
	cfg.Segmentation.Tolerance = envFloat("COLOR_FALLBACK_TOLERANCE", 60)
	cfg.Upscale.SharpenAmount = envFloat("UPSCALE_SHARPEN_AMOUNT", 0.3)
	cfg.Upscale.NoiseThreshold = envFloat("UPSCALE_NOISE_THRESHOLD", 10)

	// The game host is external; the worker runs against the simulated
	// source unless embedded elsewhere as a library.
	subjectSource := source.NewSimulatedSource(envDuration("SIMULATED_LATENCY", 50*time.Millisecond))

	opts := []pipeline.Option{pipeline.WithLogger(entry.WithField("component", "pipeline"))}

	if dir := os.Getenv("CAPTURE_OUTPUT_DIR"); dir != "" {
		sink, err := storage.NewFilesystemSink(dir)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize filesystem sink")
		}
		opts = append(opts, pipeline.WithSink(sink))
		log.WithField("dir", dir).Info("persisting portraits to filesystem")
	}

	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		opts = append(opts, pipeline.WithNotifier(notify.NewWebhookNotifier(url, entry.WithField("component", "webhook"))))
		log.WithField("url", url).Info("webhook notifications enabled")
	}

	var tracker *ledger.Tracker
	if dbURL := os.Getenv("LEDGER_DATABASE_URL"); dbURL != "" {
		var err error
		tracker, err = ledger.NewTracker(dbURL, entry.WithField("component", "ledger"))
		if err != nil {
			log.WithError(err).Fatal("failed to initialize capture ledger")
		}
		defer tracker.Close()
		opts = append(opts, pipeline.WithNotifier(tracker))
		log.Info("capture ledger enabled")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	opts = append(opts, pipeline.WithMetrics(m))

	p := pipeline.New(subjectSource, nil, cfg, opts...)
	m.WatchQueue(p.Queue())

	captureHandler := handlers.NewCaptureHandler(p, entry.WithField("component", "handlers"))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/v1/capture", captureHandler.HandleCapture)
	mux.HandleFunc("/v1/cache/clear", captureHandler.HandleClearCache)
	mux.HandleFunc("/v1/classifier", captureHandler.HandleClassifier)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.WithField("addr", httpAddr).Info("capture worker starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}
	log.Info("server stopped")
}

// handleHealth returns health status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
