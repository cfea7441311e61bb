package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opencustody/recon/internal/domain"
)

const transactionColumns = `id, currency_id, blockchain_key, reference_type, reference_tid,
	txid, from_address, to_address, amount, block_number, status, created_at, updated_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO transactions (
			currency_id, blockchain_key, reference_type, reference_tid, txid,
			from_address, to_address, amount, block_number, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		t.CurrencyID, t.BlockchainKey, t.Reference.Type, t.Reference.TID, t.TxID,
		t.FromAddress, t.ToAddress, t.Amount, t.BlockNumber, t.Status,
		t.CreatedAt, t.UpdatedAt,
	)
	if err := row.Scan(&t.ID); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByTxID(ctx context.Context, currencyID, txid string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE currency_id = $1 AND txid = $2`,
		currencyID, txid,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTxID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTxID: %w", err)
	}
	return t, nil
}

// AdvanceStatus moves a transaction out of pending. Settled transactions
// are immutable; a second advance fails with ErrTransactionSettled.
func (r *TransactionRepository) AdvanceStatus(ctx context.Context, id int64, status domain.TransactionStatus, blockNumber *int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET status = $1, block_number = COALESCE($2, block_number), updated_at = now()
		WHERE id = $3 AND status = $4`,
		status, blockNumber, id, domain.TransactionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("AdvanceStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AdvanceStatus: rows affected: %w", err)
	}
	if rows == 0 {
		// nothing matched: either the row is gone or it already settled
		var current domain.TransactionStatus
		err := r.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("AdvanceStatus: %w", domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("AdvanceStatus: %w", err)
		}
		return fmt.Errorf("AdvanceStatus: %w", domain.ErrTransactionSettled)
	}
	return nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.CurrencyID, &t.BlockchainKey, &t.Reference.Type, &t.Reference.TID,
		&t.TxID, &t.FromAddress, &t.ToAddress, &t.Amount, &t.BlockNumber,
		&t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
