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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"venueattend/internal/attendance"
	"venueattend/internal/auth"
	"venueattend/internal/cloudinary"
	"venueattend/internal/config"
	"venueattend/internal/faceclient"
	"venueattend/internal/httpapi"
	"venueattend/internal/httpmiddleware"
	"venueattend/internal/identity"
	"venueattend/internal/ledger"
	"venueattend/internal/location"
	"venueattend/internal/metrics"
	"venueattend/internal/notify"
	"venueattend/internal/queue"
	"venueattend/internal/schedule"
	"venueattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zone, err := cfg.Location()
	if err != nil {
		return err
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	health := map[string]httpapi.HealthCheck{}
	if be.db != nil {
		health["db"] = be.db.Healthy
	}

	var (
		q       queue.Queue
		limiter httpmiddleware.Limiter
	)
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)

		// Nothing else drains an in-process queue, so forward from here.
		fwd := notify.NewAMQPForwarder(cfg.AMQPURL, notify.WithExchange(cfg.NotifyExchange), notify.WithLogger(logger))
		defer fwd.Close()
		relay := notify.NewRelay(mem, fwd, notify.WithRelayLogger(logger), notify.WithRelayRecorder(m))
		go func() { _ = relay.Run(ctx) }()
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, logger)
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	ids, err := identity.New(be.identity,
		identity.WithLogger(logger),
		identity.WithPolicy(identity.Policy{
			LockoutThreshold: cfg.LockoutThreshold,
			LockoutDuration:  cfg.LockoutDuration,
			BcryptCost:       cfg.BcryptCost,
		}),
		identity.WithLockoutRecorder(m),
	)
	if err != nil {
		return err
	}
	locations := location.New(be.locations, location.WithLogger(logger))
	registry := schedule.NewRegistry(be.schedules, locations, schedule.WithLogger(logger), schedule.WithLocation(zone))

	classifier, err := attendance.NewClassifier(cfg.StartThreshold, cfg.LateThreshold)
	if err != nil {
		return err
	}
	engine, err := attendance.NewEngine(ids, registry, be.ledger,
		attendance.WithLogger(logger),
		attendance.WithClassifier(classifier),
		attendance.WithMinConfidence(cfg.RecognitionMinConfidence),
		attendance.WithWindowPolicy(cfg.WindowPolicy),
		attendance.WithEarlyCheckIn(cfg.EarlyCheckIn),
		attendance.WithNotifier(notify.NewQueueNotifier(q)),
		attendance.WithRecorder(m),
	)
	if err != nil {
		return err
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if err := face.Health(ctx); err != nil {
		logger.Warn("face service not available", "error", err)
	}
	gallery := faceclient.NewGallery(ids, m)
	go refreshGallery(ctx, gallery, cfg.GalleryRefresh, logger)

	deps := httpapi.Deps{
		Engine:      engine,
		Identity:    ids,
		Locations:   locations,
		Schedules:   registry,
		Ledger:      ledger.New(be.ledger, ledger.WithLogger(logger)),
		Issuer:      auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Recognizer:  faceclient.NewProvider(face, gallery),
		Enroller:    face,
		Gallery:     gallery,
		AdminAPIKey: cfg.AdminAPIKey,
		Zone:        zone,
		Health:      health,
		Logger:      logger,
	}
	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if cdn.Configured() {
		deps.Photos = cdn
		logger.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		logger.Info("cloudinary not configured; photo uploads disabled")
	}
	if cfg.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY not set; admin tokens cannot be issued")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, httpmiddleware.ClientIP, logger))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	httpapi.New(deps).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}

// refreshGallery loads the recognition gallery now and then every interval.
func refreshGallery(ctx context.Context, g *faceclient.Gallery, every time.Duration, logger *slog.Logger) {
	load := func() {
		n, err := g.Refresh(ctx)
		if err != nil {
			logger.Warn("gallery refresh failed", "error", err)
			return
		}
		logger.Debug("gallery refreshed", "members", n)
	}
	load()
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			load()
		}
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
