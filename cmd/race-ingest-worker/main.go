package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	racecache "github.com/radieske/horse-race-ledger/internal/ledger-service/cache"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/producer"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/internal/race-ingest/feed"
	"github.com/radieske/horse-race-ledger/internal/race-ingest/importer"
	"github.com/radieske/horse-race-ledger/internal/shared/cache"
	"github.com/radieske/horse-race-ledger/internal/shared/config"
	"github.com/radieske/horse-race-ledger/internal/shared/db"
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

	// a ingestão grava direto no banco do ledger, pelo mesmo catálogo do serviço
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := repo.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// race_created vai para o mesmo tópico dos eventos do ledger
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicLedgerEvents)
	defer writer.Close()
	dispatcher := notify.NewDispatcher(producer.NewKafkaPublisher(writer, cfg.TopicLedgerEvents), cfg.EventBuffer, log)
	drained := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(drained)
	}()

	seed := cfg.RNGSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := metrics.NewIngest(prometheus.DefaultRegisterer)
	im := &importer.Importer{
		Source: &feed.Fallback{
			Primary:   feed.NewHTTPSource(cfg.RaceFeedURL),
			Secondary: feed.NewSynthetic(rand.NewSource(seed), cfg.SyntheticRaces, nil),
			Log:       log,
		},
		Catalog:    catalog.NewService(repo.NewPostgres(pg), racecache.New(rdb, cfg.RaceCardTTL), dispatcher, log),
		Log:        log,
		OnFetched:  func(source string) { m.Source.WithLabelValues(source).Inc() },
		OnImported: func(result string) { m.Imported.WithLabelValues(result).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext})

	log.Info("race ingest started", zap.Duration("interval", cfg.IngestInterval), zap.Bool("feed", cfg.RaceFeedURL != ""))
	im.Run(ctx, cfg.IngestInterval)

	log.Info("shutdown signal received")
	<-drained
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
