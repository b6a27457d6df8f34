package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	lhttp "github.com/radieske/wager-ledger-poc/internal/ledger-service/http"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/outcome"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/producer"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/repo"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/ws"
	"github.com/radieske/wager-ledger-poc/internal/shared/auth"
	"github.com/radieske/wager-ledger-poc/internal/shared/cache"
	"github.com/radieske/wager-ledger-poc/internal/shared/config"
	"github.com/radieske/wager-ledger-poc/internal/shared/db"
	"github.com/radieske/wager-ledger-poc/internal/shared/kafka"
	"github.com/radieske/wager-ledger-poc/internal/shared/logger"
	"github.com/radieske/wager-ledger-poc/internal/shared/metrics"
	"github.com/radieske/wager-ledger-poc/internal/wager"
)

var (
	wagersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_wagers_created_total",
		Help: "Transferências que viraram aposta pendente",
	})
	immediateTransfers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_immediate_transfers_total",
		Help: "Transferências executadas sem aposta",
	})
	respondCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_respond_calls_total",
		Help: "Vereditos gravados pelo operador",
	})
	resumptions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_resumptions_total",
		Help: "Retomadas executadas pela bridge",
	})
	settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_settlements_total",
		Help: "Liquidações por resultado",
	}, []string{"status"})
	opErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_errors_total",
		Help: "Erros por operação",
	}, []string{"op"})
)

func main() {
	cfg, err := config.Load("ledger-service")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("store", cfg.StoreBackend))

	prometheus.MustRegister(wagersCreated, immediateTransfers, respondCalls, resumptions, settlements, opErrors)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store do contrato
	var (
		store  wager.Store
		pgPing func(context.Context) error
	)
	switch cfg.StoreBackend {
	case "badger":
		bs, err := repo.OpenBadger(cfg.BadgerDir, log)
		if err != nil {
			log.Fatal("badger open", zap.Error(err))
		}
		store = bs
	default:
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		if err := db.Migrate(pg); err != nil {
			log.Fatal("postgres migrate", zap.Error(err))
		}
		ps := repo.NewPostgres(pg)
		store, pgPing = ps, ps.Ping
	}
	defer store.Close()

	// Redis: cache de resultados + pub/sub para os WebSockets
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: eventos do ledger, run_agent e wager_settled
	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, log,
			cfg.TopicWagerRequested, cfg.TopicWagerSettled, cfg.TopicLedgerEvents, cfg.TopicWagerRequestedDLQ,
		); err != nil {
			log.Warn("ensure kafka topics", zap.Error(err))
		}
	}
	writer := kafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	publisher := producer.NewKafkaPublisher(writer, producer.Topics{
		WagerRequested: cfg.TopicWagerRequested,
		WagerSettled:   cfg.TopicWagerSettled,
		LedgerEvents:   cfg.TopicLedgerEvents,
	}, log)

	storageCost, err := ledger.ParseAmount(cfg.StorageCost)
	if err != nil {
		log.Fatal("storage cost", zap.Error(err))
	}

	// Bridge + contrato
	bridge := wager.NewBridge(log, cfg.SettleBudget, cfg.OutcomeRetention, cfg.ResumeQueueSize)
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ledger_pending_suspensions",
		Help: "Apostas suspensas aguardando retomada nesta instância",
	}, func() float64 { return float64(bridge.Pending()) }))

	outcomes := outcome.NewRedisCache(rdb, cfg.OutcomeTTL, cfg.RedisPubSubChannel)
	recorder := &outcome.Recorder{
		Log:       log,
		Cache:     outcomes,
		Publisher: publisher,
		OnError:   func(stage string) { opErrors.WithLabelValues("outcome_" + stage).Inc() },
	}
	bridge.OnOutcome = recorder.Record
	bridge.OnResumed = resumptions.Inc

	contract := wager.New(log, store, bridge, publisher, ledger.NewStorageBounds(storageCost))
	contract.OnWager = wagersCreated.Inc
	contract.OnGift = immediateTransfers.Inc
	contract.OnRespond = respondCalls.Inc
	contract.OnSettle = func(status string) { settlements.WithLabelValues(status).Inc() }
	contract.OnError = func(op string) { opErrors.WithLabelValues(op).Inc() }

	if err := initIfNeeded(ctx, contract, cfg); err != nil {
		log.Fatal("ledger init", zap.Error(err))
	}

	go func() {
		if err := contract.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("bridge stopped", zap.Error(err))
		}
	}()
	if n, err := contract.Recover(ctx); err != nil {
		log.Error("recover pending responses", zap.Error(err))
	} else if n > 0 {
		log.Info("pending responses re-enqueued", zap.Int("count", n))
	}

	// WebSocket: resultados chegam via Redis Pub/Sub de qualquer instância
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	api := lhttp.NewServer(log, contract, outcomes, auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL), hub.HandleWS)
	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort, // ex: 8082
		Handler: api.Router(),
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, health(pgPing, rdb))

	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// initIfNeeded cria o supply inicial na primeira subida
func initIfNeeded(ctx context.Context, c *wager.Contract, cfg config.Config) error {
	_, err := c.State(ctx)
	if err == nil || !errors.Is(err, wager.ErrNotInitialized) {
		return err
	}

	supply, err := ledger.ParseAmount(cfg.TotalSupply)
	if err != nil {
		return err
	}
	return c.Init(ctx, wager.InitParams{
		TotalSupply: supply,
		Metadata: ledger.Metadata{
			Spec:     ledger.FTMetadataSpec,
			Name:     cfg.TokenName,
			Symbol:   cfg.TokenSymbol,
			Decimals: cfg.TokenDecimals,
		},
		AgentName:  cfg.AgentName,
		OperatorID: ledger.AccountID(cfg.OperatorID),
		ReserveID:  ledger.AccountID(cfg.ReserveID),
	})
}

func health(pgPing func(context.Context) error, rdb *redis.Client) metrics.HealthFunc {
	return func(ctx context.Context) error {
		if pgPing != nil {
			if err := pgPing(ctx); err != nil {
				return err
			}
		}
		return rdb.Ping(ctx).Err()
	}
}
