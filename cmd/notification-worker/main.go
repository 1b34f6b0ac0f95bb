package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/notification/consumer"
	"github.com/radieske/horse-race-ledger/internal/notification/inbox"
	"github.com/radieske/horse-race-ledger/internal/notification/pubsub"
	"github.com/radieske/horse-race-ledger/internal/shared/cache"
	"github.com/radieske/horse-race-ledger/internal/shared/config"
	"github.com/radieske/horse-race-ledger/internal/shared/kafka"
	"github.com/radieske/horse-race-ledger/internal/shared/logger"
	"github.com/radieske/horse-race-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// conecta com Redis (pub/sub + caixa de notificações)
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicLedgerEvents, cfg.ConsumerGroup)
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicLedgerEventsDLQ)
	defer dlq.Close()

	m := metrics.NewNotification(prometheus.DefaultRegisterer)
	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Broadcaster: pubsub.NewRedisBroadcaster(rdb),
		Channel:     cfg.RedisPubSubChannel,
		Inbox:       inbox.New(rdb, 50, 0),
		DLQ:         dlq,

		OnConsumed:  m.Consumed.Inc,
		OnBroadcast: m.Broadcast.Inc,
		OnStored:    m.Stored.Inc,
		OnError:     func(stage string) { m.Errors.WithLabelValues(stage).Inc() },
	}

	// Metrics e health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})

	log.Info("notification worker started",
		zap.String("topic", cfg.TopicLedgerEvents),
		zap.String("group", cfg.ConsumerGroup),
		zap.String("channel", cfg.RedisPubSubChannel),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped", zap.Error(err))
	}

	log.Info("shutdown signal received")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
