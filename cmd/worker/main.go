package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/docstore"
	"rollcall/internal/logger"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker expires pending verifications on a cron schedule and right after
// each deadline announced on the queue, and keeps the MAC index fresh.
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	docs, closeDocs, err := store.OpenDocStore(ctx, cfg)
	if err != nil {
		log.Fatal("document store unavailable", zap.Error(err))
	}
	defer closeDocs()

	clk := clock.System{}
	ledger := attendance.NewLedger(docs, clk, cfg.PendingTTL, nil, log.Named("ledger"))

	c := cron.New(
		cron.WithLocation(clock.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Named("cron").Sugar()})),
	)
	if _, err := c.AddFunc(cfg.SweepSchedule, func() { sweep(ctx, ledger, log) }); err != nil {
		log.Fatal("invalid sweep schedule", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
	}

	var redisClient *store.Redis
	if cfg.MACIndexEnabled || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
	}

	if cfg.MACIndexEnabled && cfg.OwnerID != "" {
		index := attendance.NewRedisIndex(redisClient.Client, cfg.MACIndexKey)
		rebuild := func() { rebuildIndex(ctx, docs, index, cfg.OwnerID, log) }
		if _, err := c.AddFunc(cfg.IndexSchedule, rebuild); err != nil {
			log.Fatal("invalid index schedule", zap.String("schedule", cfg.IndexSchedule), zap.Error(err))
		}
		rebuild()
	}

	if cfg.QueueBackend == "redis" {
		q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		msgs, err := q.Consume(ctx)
		if err != nil {
			log.Fatal("queue consume init failed", zap.Error(err))
		}
		go attendance.NewExpiryScheduler(ledger, clk, log.Named("expiry")).Run(ctx, msgs)
	}

	c.Start()
	log.Info("worker started",
		zap.String("sweep_schedule", cfg.SweepSchedule),
		zap.Bool("mac_index", cfg.MACIndexEnabled),
		zap.String("queue", cfg.QueueBackend))

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("worker stopped")
}

func sweep(ctx context.Context, ledger *attendance.Ledger, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()
	n, err := ledger.ExpireStale(ctx)
	if err != nil {
		log.Error("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expiry sweep", zap.Int("expired", n))
	}
}

func rebuildIndex(ctx context.Context, docs docstore.Store, index *attendance.RedisIndex, ownerID string, log *zap.Logger) {
	entries, err := attendance.BuildAddressIndex(ctx, docs, ownerID)
	if err != nil {
		log.Error("scan for mac index failed", zap.Error(err))
		return
	}
	if err := index.Replace(ctx, entries); err != nil {
		log.Error("write mac index failed", zap.Error(err))
		return
	}
	log.Info("mac index rebuilt", zap.Int("entries", len(entries)))
}

// cronLogger routes cron's logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
