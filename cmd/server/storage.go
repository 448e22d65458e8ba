package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/config"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/db"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/memstore"
)

// storage bundles the stores the payment service runs on.
type storage struct {
	ledger  domain.AccountLedger
	cards   domain.CardAuthorizationIndex
	journal domain.TransactionJournal
	tx      domain.TransactionManager
	seeder  memstore.Seeder
	pinger  interface{ Ping(ctx context.Context) error }
	close   func()
}

// pgSeeder writes seed data through the PostgreSQL repositories.
type pgSeeder struct {
	accounts *db.AccountRepository
	cards    *db.CardRepository
}

func (s pgSeeder) Upsert(ctx context.Context, account *domain.Account) error {
	return s.accounts.Upsert(ctx, account)
}

func (s pgSeeder) Authorize(ctx context.Context, auth *domain.CardAuthorization) error {
	return s.cards.Authorize(ctx, auth)
}

// openStorage builds the configured store. With migrate set, the PostgreSQL
// schema is applied before returning.
func openStorage(ctx context.Context, cfg config.StorageConfig, migrate bool, logger *slog.Logger) (*storage, error) {
	if cfg.Driver == config.StorageMemory {
		store := memstore.New()
		logger.Info("using in-memory storage")
		return &storage{
			ledger:  store,
			cards:   store,
			journal: store,
			tx:      store,
			seeder:  store,
			pinger:  store,
			close:   func() {},
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		LockTimeout: db.DefaultPoolOptions.LockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	logger.Info("database connection pool initialized", "max_conns", cfg.MaxConns)

	if migrate {
		if err := db.Migrate(ctx, pool.Pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	accounts := db.NewAccountRepository(pool.Pool)
	cards := db.NewCardRepository(pool.Pool)

	return &storage{
		ledger:  accounts,
		cards:   cards,
		journal: db.NewJournalRepository(pool.Pool),
		tx:      db.NewTransactionManager(pool.Pool),
		seeder:  pgSeeder{accounts: accounts, cards: cards},
		pinger:  pool,
		close:   pool.Close,
	}, nil
}

// seedFrom loads a JSON seed file into the store.
func (s *storage) seedFrom(ctx context.Context, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	n, err := memstore.LoadSeed(ctx, f, s.seeder)
	if err != nil {
		return fmt.Errorf("failed to load seed file %s: %w", path, err)
	}
	logger.Info("seed data loaded", "file", path, "accounts", n)
	return nil
}
