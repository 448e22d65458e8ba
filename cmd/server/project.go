package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/analytics"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project payment events from RabbitMQ into ClickHouse",
	Long: `Consume billpayment.completed events from RABBITMQ_QUEUE and store them
in the ClickHouse bill_payments table read by the history endpoint.

Requires RABBITMQ_URL and CLICKHOUSE_HOST.`,
	RunE: runProject,
}

func runProject(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.EventsEnabled() || !cfg.HistoryEnabled() {
		return errors.New("project requires RABBITMQ_URL and CLICKHOUSE_HOST")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := analytics.NewClickHouseClient(ctx, cfg.ClickHouse)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("clickhouse connection initialized", "host", cfg.ClickHouse.Host, "database", cfg.ClickHouse.Database)

	repo := analytics.NewPaymentRepository(client)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	consumer, err := analytics.NewRabbitMQConsumer(cfg.RabbitMQ, repo, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Start(ctx)
}
