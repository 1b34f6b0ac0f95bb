package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	racecache "github.com/radieske/horse-race-ledger/internal/ledger-service/cache"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	httpapi "github.com/radieske/horse-race-ledger/internal/ledger-service/http"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/ledger"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/lifecycle"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/lock"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/outcome"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/producer"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/settlement"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/wager"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/ws"
	"github.com/radieske/horse-race-ledger/internal/notification/inbox"
	"github.com/radieske/horse-race-ledger/internal/shared/cache"
	"github.com/radieske/horse-race-ledger/internal/shared/config"
	"github.com/radieske/horse-race-ledger/internal/shared/db"
	"github.com/radieske/horse-race-ledger/internal/shared/kafka"
	"github.com/radieske/horse-race-ledger/internal/shared/logger"
	"github.com/radieske/horse-race-ledger/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("store", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("ledger-service stopped", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	var checks []metrics.Check

	// store: postgres em produção, memória para rodar local sem banco
	var store repo.Store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store, state is lost on restart")
		store = repo.NewMemory()
	default:
		pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := repo.Migrate(ctx, pg); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("postgres connected")
		store = repo.NewPostgres(pg)
		checks = append(checks, metrics.Check{Name: "postgres", Fn: pg.PingContext})
	}

	// conecta com cache Redis (race cards, lock do sweep, pub/sub do WS, caixa de notificações)
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	log.Info("redis connected")
	checks = append(checks, metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})

	m := metrics.NewLedger(prometheus.DefaultRegisterer)

	// eventos saem depois do commit, via buffer assíncrono para o Kafka
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicLedgerEvents)
	defer writer.Close()
	dispatcher := notify.NewDispatcher(producer.NewKafkaPublisher(writer, cfg.TopicLedgerEvents), cfg.EventBuffer, log)
	dispatcher.OnDropped = m.EventsDropped.Inc
	dispatcher.OnPublished = m.EventsPublished.Inc
	dispatcher.OnFailed = m.EventsFailed.Inc
	drained := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(drained)
	}()

	cat := catalog.NewService(store, racecache.New(rdb, cfg.RaceCardTTL), dispatcher, log)
	notifier := cat.Watch(dispatcher) // settle/cancel invalidam o race card

	engine := settlement.NewEngine(store, notifier, log, nil)
	engine.OnSettled = m.ObserveSettlement
	engine.OnBetResolved = m.ObserveBetResolved

	payouts := model.DefaultPayoutTable()
	payouts.Place = cfg.PayoutPlaceFactor
	payouts.Show = cfg.PayoutShowFactor
	wagers := wager.NewService(store, notifier, log, wager.Config{MinStake: cfg.MinStake, Payouts: payouts})
	wagers.OnResult = m.ObserveWager

	seed := cfg.RNGSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mgr := lifecycle.NewManager(store, engine, outcome.NewWeightedRandom(rand.NewSource(seed)), log,
		lifecycle.Config{RaceDuration: cfg.RaceDuration, Notifier: notifier})
	mgr.OnSweep = m.ObserveSweep
	go mgr.Run(ctx, cfg.SweepInterval, cfg.SweepLockTTL, lock.New(rdb))

	// WS: o notification-worker republica os eventos no Redis e o hub entrega aos clientes
	hub := ws.NewHub(func(*http.Request) bool { return true }, log)
	if err := ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log); err != nil {
		return err
	}

	api := &httpapi.API{
		Ledger:    ledger.NewService(store, log, cfg.InitialBalance),
		Wagers:    wagers,
		Catalog:   cat,
		Lifecycle: mgr,
		Log:       log,
		WS:        hub.HandleWS,
		Inbox:     inbox.New(rdb, 50, 0),
		Metrics:   m,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, checks...)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serveErr:
		log.Error("http server failed", zap.Error(err))
	}

	// graceful shutdown: para de aceitar requisições e drena os eventos pendentes
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if ctx.Err() != nil {
		<-drained
	}
	return err
}
