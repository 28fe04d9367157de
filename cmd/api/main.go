package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs, closeDocs, err := store.OpenDocStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()
	log.Info("document store ready", zap.String("backend", cfg.StoreBackend))

	var redisClient *store.Redis
	if cfg.MACIndexEnabled || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		if !redisClient.Healthy(ctx) {
			log.Warn("redis not reachable", zap.String("addr", cfg.RedisAddr))
		}
	}

	var index attendance.AddressIndex
	if cfg.MACIndexEnabled {
		index = attendance.NewRedisIndex(redisClient.Client, cfg.MACIndexKey)
	}

	clk := clock.System{}
	var notify queue.Queue
	var memQueue *queue.InMemory
	switch cfg.QueueBackend {
	case "redis":
		notify = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	case "memory":
		memQueue = queue.NewInMemory(256)
		notify = memQueue
	}

	schedules := attendance.NewScheduleResolver(docs, clk, log.Named("schedule"))
	identities := attendance.NewIdentityResolver(docs, schedules, index, log.Named("identity"))
	ledger := attendance.NewLedger(docs, clk, cfg.PendingTTL, notify, log.Named("ledger"))
	svc := attendance.NewService(cfg.OwnerID, identities, ledger)

	if memQueue != nil {
		// No worker shares an in-memory queue, so expire on deadline here.
		msgs, _ := memQueue.Consume(ctx)
		go attendance.NewExpiryScheduler(ledger, clk, log.Named("expiry")).Run(ctx, msgs)
	}
	if cfg.OwnerID == "" {
		log.Warn("FIREBASE_USER_ID not configured; mark-attendance will fail")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	h := handler.New(svc, clk, cfg.ServiceName, log.Named("api"), m)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.AccessLog(log.Named("http"), m, "/metrics", "/api/health"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("service", cfg.ServiceName),
			zap.String("owner", cfg.OwnerID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
