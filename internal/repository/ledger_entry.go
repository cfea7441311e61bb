package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opencustody/recon/internal/domain"
)

const ledgerEntryColumns = `id, account_id, reference_type, reference_tid, entry_type,
	amount, currency_id, balance_before, balance_after, created_at`

type LedgerEntryRepository struct {
	db *sql.DB
}

func NewLedgerEntryRepository(db *sql.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

func (r *LedgerEntryRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, account_id, reference_type, reference_tid, entry_type,
			amount, currency_id, balance_before, balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.AccountID, entry.Reference.Type, entry.Reference.TID,
		entry.EntryType, entry.Amount, entry.CurrencyID,
		entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerEntryRepository) GetByReference(ctx context.Context, ref domain.Reference) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerEntryColumns+` FROM ledger_entries
		WHERE reference_type = $1 AND reference_tid = $2 ORDER BY created_at`,
		ref.Type, ref.TID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByReference: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByReference: rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.AccountID, &e.Reference.Type, &e.Reference.TID, &e.EntryType,
		&e.Amount, &e.CurrencyID, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
