package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// SeedAccount is one account of a seed file.
type SeedAccount struct {
	ID      string   `json:"id"`
	Balance string   `json:"balance"`
	Cards   []string `json:"cards"`
}

// SeedFile is the JSON document accepted by LoadSeed.
type SeedFile struct {
	Accounts []SeedAccount `json:"accounts"`
}

// Seeder is implemented by stores that accept seed data.
type Seeder interface {
	Upsert(ctx context.Context, account *domain.Account) error
	Authorize(ctx context.Context, auth *domain.CardAuthorization) error
}

// LoadSeed reads a seed document and writes its accounts and card
// authorizations into dst. It returns the number of accounts loaded.
func LoadSeed(ctx context.Context, r io.Reader, dst Seeder) (int, error) {
	var seed SeedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return 0, fmt.Errorf("failed to decode seed file: %w", err)
	}

	for _, sa := range seed.Accounts {
		balance, err := domain.ParseAmount(sa.Balance)
		if err != nil {
			return 0, fmt.Errorf("account %s: %w", sa.ID, err)
		}
		account, err := domain.NewAccount(sa.ID, balance)
		if err != nil {
			return 0, err
		}
		if err := dst.Upsert(ctx, account); err != nil {
			return 0, err
		}
		for _, card := range sa.Cards {
			auth, err := domain.NewCardAuthorization(account.ID, card)
			if err != nil {
				return 0, fmt.Errorf("account %s: %w", account.ID, err)
			}
			if err := dst.Authorize(ctx, auth); err != nil {
				return 0, err
			}
		}
	}

	return len(seed.Accounts), nil
}
