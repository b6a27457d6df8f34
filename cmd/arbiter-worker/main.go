package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/arbiter-worker/agent"
	"github.com/radieske/wager-ledger-poc/internal/arbiter-worker/ledgerclient"
	"github.com/radieske/wager-ledger-poc/internal/arbiter-worker/worker"
	"github.com/radieske/wager-ledger-poc/internal/shared/auth"
	"github.com/radieske/wager-ledger-poc/internal/shared/config"
	"github.com/radieske/wager-ledger-poc/internal/shared/kafka"
	"github.com/radieske/wager-ledger-poc/internal/shared/logger"
	"github.com/radieske/wager-ledger-poc/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load("arbiter-worker")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Métricas Prometheus
	consumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbiter_worker_consumed_total",
		Help: "Mensagens lidas de wager_requested",
	})
	responded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiter_worker_responded_total",
		Help: "Vereditos gravados no ledger",
	}, []string{"ok"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbiter_worker_skipped_total",
		Help: "Apostas que não estavam mais pendentes",
	})
	dlq := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbiter_worker_dlq_total",
		Help: "Mensagens enviadas para a DLQ",
	})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiter_worker_errors_total",
		Help: "Erros por fase",
	}, []string{"stage"})
	prometheus.MustRegister(consumed, responded, skipped, dlq, errs)

	// Kafka consumer de wager_requested e writer da DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerRequested, "arbiter-worker")
	defer reader.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers)
	defer dlqWriter.Close()

	// O worker assina como operador do ledger
	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL)
	token := func() (string, error) { return signer.Issue(cfg.OperatorID) }

	p := &worker.Processor{
		Log:      log,
		Reader:   reader,
		Agent:    agent.New(cfg.AgentURL),
		Ledger:   ledgerclient.New(cfg.LedgerURL, token),
		DLQ:      dlqWriter,
		DLQTopic: cfg.TopicWagerRequestedDLQ,
		Retries:  3,
		Backoff:  300 * time.Millisecond,

		OnConsumed:  consumed.Inc,
		OnResponded: func(ok bool) { responded.WithLabelValues(strconv.FormatBool(ok)).Inc() },
		OnSkipped:   skipped.Inc,
		OnDLQ:       dlq.Inc,
		OnError:     func(stage string) { errs.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, nil)
	defer metricsSrv.Close()

	log.Info("arbiter-worker started",
		zap.String("consume", cfg.TopicWagerRequested),
		zap.String("dlq", cfg.TopicWagerRequestedDLQ),
		zap.String("ledger", cfg.LedgerURL),
		zap.String("agent", cfg.AgentURL),
	)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", zap.Error(err))
	}
}
