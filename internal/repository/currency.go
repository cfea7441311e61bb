package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opencustody/recon/internal/domain"
)

type CurrencyRepository struct {
	db *sql.DB
}

func NewCurrencyRepository(db *sql.DB) *CurrencyRepository {
	return &CurrencyRepository{db: db}
}

func (r *CurrencyRepository) GetByID(ctx context.Context, id string) (*domain.Currency, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, blockchain_key, type FROM currencies WHERE id = $1`, id,
	)
	var c domain.Currency
	if err := row.Scan(&c.ID, &c.BlockchainKey, &c.Type); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &c, nil
}

// ListByBlockchain returns every currency settled through one gateway.
func (r *CurrencyRepository) ListByBlockchain(ctx context.Context, blockchainKey string) ([]domain.Currency, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, blockchain_key, type FROM currencies WHERE blockchain_key = $1 ORDER BY id`,
		blockchainKey,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBlockchain: %w", err)
	}
	defer rows.Close()

	var list []domain.Currency
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.ID, &c.BlockchainKey, &c.Type); err != nil {
			return nil, fmt.Errorf("ListByBlockchain: scan: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByBlockchain: rows: %w", err)
	}
	return list, nil
}
