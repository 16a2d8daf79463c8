package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"venueattend/internal/config"
	"venueattend/internal/metrics"
	"venueattend/internal/notify"
	"venueattend/internal/queue"
	"venueattend/internal/store"
)

// Worker drains attendance events from Redis and publishes them to the
// notification exchange.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.App, logger *slog.Logger) error {
	if cfg.QueueBackend == "memory" {
		return errors.New("worker needs QUEUE_BACKEND=redis; the memory queue is drained by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet", "addr", cfg.RedisAddr)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, logger)
	fwd := notify.NewAMQPForwarder(cfg.AMQPURL,
		notify.WithExchange(cfg.NotifyExchange),
		notify.WithLogger(logger),
	)
	defer fwd.Close()

	relay := notify.NewRelay(q, fwd,
		notify.WithRelayLogger(logger),
		notify.WithRelayRecorder(m),
		notify.WithRetry(5, 500*time.Millisecond),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("worker started", "queue", cfg.QueueKey, "exchange", cfg.NotifyExchange)
	err := relay.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
