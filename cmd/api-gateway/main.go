package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/shared/config"
	"github.com/radieske/wager-ledger-poc/internal/shared/logger"
	"github.com/radieske/wager-ledger-poc/internal/shared/metrics"
)

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

func main() {
	cfg, err := config.Load("api-gateway")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// targets
	ledgerProxy, err := rp(cfg.LedgerURL)
	if err != nil {
		log.Fatal("ledger url", zap.Error(err))
	}
	arbiterProxy, err := rp(cfg.AgentURL)
	if err != nil {
		log.Fatal("agent url", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(withCORS)

	// ledger (ex.: /api/ledger/ft_transfer -> ledger-service)
	r.Mount("/api/ledger", http.StripPrefix("/api/ledger", ledgerProxy))

	// arbiter (ex.: /api/arbiter/agent/run -> arbiter-simulator)
	r.Mount("/api/arbiter", http.StripPrefix("/api/arbiter", arbiterProxy))

	metrics.StartMetricsServer(cfg.MetricsPort, log, nil)

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening",
		zap.String("addr", addr),
		zap.String("ledger", cfg.LedgerURL),
		zap.String("arbiter", cfg.AgentURL),
	)
	if err := http.ListenAndServe(addr, r); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
