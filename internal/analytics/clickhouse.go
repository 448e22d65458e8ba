// Package analytics projects completed bill payments into ClickHouse and
// serves the per-account payment history read from there.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/config"
)

// ClickHouseClient holds the native-protocol connection used by PaymentRepository.
type ClickHouseClient struct {
	conn driver.Conn
}

// NewClickHouseClient opens a connection to cfg.Host and pings it.
func NewClickHouseClient(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression:  &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings:     clickhouse.Settings{"max_execution_time": 30},
		DialTimeout:  5 * time.Second,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection to %s: %w", cfg.Host, err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s: %w", cfg.Host, err)
	}

	return &ClickHouseClient{conn: conn}, nil
}

// Conn exposes the driver connection.
func (c *ClickHouseClient) Conn() driver.Conn {
	return c.conn
}

// Close releases the connection; it is safe on a zero client.
func (c *ClickHouseClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
