package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/domain"
)

const accountColumns = `id, member_id, currency_id, kind, balance, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetOrCreateForUpdate locks the account row for the member/currency/kind
// triple, creating a zero-balance account on first posting.
func (r *AccountRepository) GetOrCreateForUpdate(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind) (*domain.Account, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (member_id, currency_id, kind, balance)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (member_id, currency_id, kind) DO NOTHING`,
		memberID, currencyID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateForUpdate: insert: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE member_id = $1 AND currency_id = $2 AND kind = $3 FOR UPDATE`,
		memberID, currencyID, kind,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateForUpdate: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Get(ctx context.Context, memberID int64, currencyID string, kind domain.AccountKind) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE member_id = $1 AND currency_id = $2 AND kind = $3`,
		memberID, currencyID, kind,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id int64, newBalance decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		newBalance, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.MemberID, &a.CurrencyID, &a.Kind, &a.Balance,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
