package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/pictor/internal/api"
	"github.com/your-org/pictor/internal/api/handlers"
	"github.com/your-org/pictor/internal/api/ws"
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

	slog.Info("starting pictor API service", "port", cfg.Server.Port)

	store, err := storage.NewFileStore(cfg.Server)
	if err != nil {
		slog.Error("init upload store", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureDir(); err != nil {
		slog.Error("init upload store", "error", err)
		os.Exit(1)
	}

	// ONNX Runtime failure is not fatal: the cascade detector and filters
	// keep working and the network-backed operations report 503.
	rt := vision.StartRuntime(cfg.Vision.ONNXLibrary, cfg.Vision.IntraOpThreads)
	if err := rt.Err(); err != nil {
		slog.Warn("onnx runtime unavailable", "error", err)
	}
	defer rt.Close()

	pipeline := vision.LoadPipeline(cfg.Vision, rt)
	defer pipeline.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	routerCfg := api.RouterConfig{
		Store:    store,
		Executor: jobs.NewExecutor(pipeline, store, cfg.Server.PublicBaseURL),
	}

	if cfg.NATS.URL != "" {
		producer, consumer, hub, err := startJobFeed(ctx, cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		defer consumer.Close()

		routerCfg.Publisher = handlers.JobPublisher(producer)
		routerCfg.Queue = handlers.Pinger(producer)
		routerCfg.Hub = hub
	} else {
		slog.Info("nats url not set, asynchronous jobs disabled")
	}

	router := api.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// startJobFeed connects the job producer and relays finished jobs from the
// RESULTS stream to websocket clients.
func startJobFeed(ctx context.Context, natsURL string) (*queue.Producer, *queue.Consumer, *ws.Hub, error) {
	producer, err := queue.NewProducer(natsURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(natsURL)
	if err != nil {
		producer.Close()
		return nil, nil, nil, err
	}

	hub := ws.NewHub()
	go hub.Run()

	err = consumer.ConsumeResults(ctx, "api-results", func(_ context.Context, res models.JobResult) error {
		hub.BroadcastResult(res)
		return nil
	})
	if err != nil {
		slog.Warn("start result consumer", "error", err)
	}

	return producer, consumer, hub, nil
}
