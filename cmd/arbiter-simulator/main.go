package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/arbiter-simulator/agent"
	"github.com/radieske/wager-ledger-poc/internal/shared/config"
	"github.com/radieske/wager-ledger-poc/internal/shared/logger"
	"github.com/radieske/wager-ledger-poc/internal/shared/metrics"
)

// percentual de apostas anuladas pelo agente mock
const voidRate = 10

var verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "arbiter_simulator_verdicts_total",
	Help: "Vereditos emitidos pelo agente mock",
}, []string{"ok"})

func main() {
	cfg, err := config.Load("arbiter-simulator")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(verdicts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := agent.NewHandler(log, voidRate, time.Now().UnixNano())
	h.OnVerdict = func(ok bool) { verdicts.WithLabelValues(strconv.FormatBool(ok)).Inc() }

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodPost, "/agent/run", h)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, nil)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		log.Info("arbiter simulator running",
			zap.String("addr", srv.Addr),
			zap.String("paths", "/agent/run"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
