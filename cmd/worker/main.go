package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pictor/internal/config"
	"github.com/your-org/pictor/internal/jobs"
	"github.com/your-org/pictor/internal/models"
	"github.com/your-org/pictor/internal/observability"
	"github.com/your-org/pictor/internal/queue"
	"github.com/your-org/pictor/internal/storage"
	"github.com/your-org/pictor/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.NATS.URL == "" {
		slog.Error("worker requires nats.url")
		os.Exit(1)
	}

	slog.Info("starting pictor worker",
		"workers", cfg.Worker.Count,
		"cpu_cores", runtime.NumCPU(),
	)

	store, err := storage.NewFileStore(cfg.Server)
	if err != nil {
		slog.Error("init upload store", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureDir(); err != nil {
		slog.Error("init upload store", "error", err)
		os.Exit(1)
	}

	rt := vision.StartRuntime(cfg.Vision.ONNXLibrary, cfg.Vision.IntraOpThreads)
	if err := rt.Err(); err != nil {
		slog.Warn("onnx runtime unavailable", "error", err)
	}
	defer rt.Close()

	pipeline := vision.LoadPipeline(cfg.Vision, rt)
	defer pipeline.Close()

	exec := jobs.NewExecutor(pipeline, store, cfg.Server.PublicBaseURL)

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A failed publish naks the job so another delivery can report it.
	err = consumer.ConsumeJobs(ctx, "pictor-workers", func(ctx context.Context, job models.Job) error {
		res := exec.Execute(ctx, job)
		if err := producer.PublishResult(ctx, res); err != nil {
			return fmt.Errorf("publish result %s: %w", job.ID, err)
		}
		slog.Debug("job finished", "job_id", job.ID, "status", res.Status)
		return nil
	}, cfg.Worker.Count)
	if err != nil {
		slog.Error("start job consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
