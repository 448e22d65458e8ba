package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/analytics"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/events"
	grpcserver "github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/grpc"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/handlers"
)

var (
	serveMigrate  bool
	serveSeedFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the gRPC health server",
	Long: `Start the bill payment HTTP API and the gRPC health/reflection server.

Payment events are published when RABBITMQ_URL is set. The history endpoint
reads ClickHouse when CLICKHOUSE_HOST is set and the journal otherwise.

Examples:
  billpay serve --migrate
  STORAGE_DRIVER=memory billpay serve --seed-file accounts.json`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply database migrations before serving")
	serveCmd.Flags().StringVar(&serveSeedFile, "seed-file", "", "JSON file of accounts and cards to load at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg.Storage, serveMigrate, logger)
	if err != nil {
		return err
	}
	defer store.close()

	if serveSeedFile != "" {
		if err := store.seedFrom(ctx, serveSeedFile, logger); err != nil {
			return err
		}
	}

	var publisher domain.EventPublisher
	if cfg.EventsEnabled() {
		p, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			logger.Warn("payment events disabled: broker unavailable", "error", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	var history handlers.HistoryReader
	if cfg.HistoryEnabled() {
		client, err := analytics.NewClickHouseClient(ctx, cfg.ClickHouse)
		if err != nil {
			logger.Warn("payment history disabled: clickhouse unavailable", "error", err)
		} else {
			defer client.Close()
			history = analytics.NewPaymentRepository(client)
		}
	}
	if history == nil {
		logger.Info("serving payment history from the transaction journal")
		history = analytics.NewJournalHistory(store.journal)
	}

	service := domain.NewPaymentService(store.ledger, store.cards, store.journal, store.tx, publisher).
		WithLogger(logger)
	logger.Info("domain services initialized")

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: handlers.NewRouter(handlers.NewHandler(service, history, store.pinger, logger)),
	}

	grpcServer := grpcserver.NewGRPCServer()
	reporter := grpcserver.NewHealthReporter(store.pinger, grpcserver.DefaultProbeInterval, logger)
	reporter.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.GRPCPort, err)
	}

	errCh := make(chan error, 2)

	go reporter.Run(ctx)

	go func() {
		logger.Info("gRPC health server starting", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		logger.Error("server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", shutdownErr)
	}
	grpcServer.GracefulStop()
	logger.Info("servers stopped")

	return err
}
