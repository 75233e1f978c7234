// chainpassd serves the payment-gated transfer-history API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/api"
	"github.com/chainpass/chainpass/audit"
	"github.com/chainpass/chainpass/config"
	"github.com/chainpass/chainpass/ledger"
	"github.com/chainpass/chainpass/metrics"
	"github.com/chainpass/chainpass/query"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("configuration invalid", zap.Error(err))
	}

	log, err := cfg.NewLogger()
	if err != nil {
		zap.NewExample().Fatal("logger init failed", zap.Error(err))
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerClient, err := ledger.Dial(ctx, cfg.Endpoint(), log.Named("ledger"))
	if err != nil {
		return err
	}
	defer ledgerClient.Close()

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	var cache chainpass.VerdictCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache = chainpass.NewRedisVerdictCache(rdb, cfg.Network, cfg.CacheTTL)
		log.Info("using redis verdict cache", zap.String("addr", cfg.RedisAddr))
	} else {
		cache = chainpass.NewMemoryVerdictCache(cfg.CacheTTL)
	}

	var auditor audit.Publisher = audit.NewLogPublisher(log.Named("audit"))
	if len(cfg.KafkaBrokers) > 0 {
		kp := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log.Named("audit"))
		defer kp.Close()
		auditor = kp
		log.Info("publishing audit events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	verifier := chainpass.NewVerifier(ledgerClient,
		chainpass.WithLedgerTimeout(cfg.LedgerTimeout),
		chainpass.WithVerifierLogger(log.Named("verifier")),
		chainpass.WithVerifierMetrics(recorder),
	)

	gate := chainpass.NewGate(cfg.Requirement(), verifier,
		chainpass.WithCache(cache),
		chainpass.WithDevelopmentMode(cfg.DevelopmentMode),
		chainpass.WithLogger(log.Named("gate")),
		chainpass.WithMetrics(recorder),
		chainpass.WithAuditor(auditor),
	)

	executor := query.NewExecutor(ledgerClient, cfg.Network, log.Named("query"))

	server := api.NewServer(gate, executor,
		api.WithLogger(log.Named("api")),
		api.WithRecorder(recorder),
		api.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", httpServer.Addr),
			zap.String("network", cfg.Network.String()),
			zap.Bool("devMode", cfg.DevelopmentMode))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
