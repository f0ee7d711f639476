package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/handler"
	"github.com/boddenberg/ledger-bfa/internal/infra/broker"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/infra/session"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("finance_api_url", cfg.FinanceAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Float64("utilization_floor", cfg.UtilizationFloor),
		zap.Bool("tracing_enabled", cfg.TracingEnabled),
		zap.Bool("broker_enabled", cfg.AMQPURL != ""),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	endpoint := ""
	if cfg.TracingEnabled {
		endpoint = cfg.OTLPEndpoint
	}
	shutdownTracer, err := observability.InitTracer(ctx, "ledger-bfa", endpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Remote API ---
	finance := newFinanceClient(cfg)

	// --- Sessions & engines ---
	// A session that expires or logs out takes its coordinator with it.
	var engines *service.Engines
	sessions := session.NewStore(cfg.SessionTTL, func(id string) {
		engines.Drop(id)
	})
	defer sessions.Close()

	engines = service.NewEngines(sessions, finance, coordinatorConfig(cfg), metrics, logger)
	defer engines.Close()

	// --- Services ---
	ledgerSvc := service.NewLedgerService(engines, sessions, finance, screenLimits(cfg), logger)
	authSvc := service.NewAuthService(finance, sessions, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	g, ctx := errgroup.WithContext(ctx)

	// --- Broker ---
	if cfg.AMQPURL != "" {
		pub, err := broker.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer pub.Close()

		dispatcher := broker.NewDispatcher(pub, cfg.EventBuffer, metrics, logger)
		engines.OnEvent(dispatcher.Enqueue)
		g.Go(func() error { return dispatcher.Run(ctx) })
		logger.Info("publishing snapshot events",
			zap.String("exchange", cfg.AMQPExchange),
			zap.String("routing_key", cfg.AMQPRoutingKey),
		)
	}

	// --- Server ---
	// Long-lived event streams end when shutdown starts.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewRouter(ledgerSvc, authSvc, metrics, logger, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: /v1/events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// --- Graceful shutdown ---
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
