package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencustody/recon/internal/domain"
)

const depositColumns = `id, tid, member_id, currency_id, blockchain_key, amount, fee,
	state, invoice_id, address, txid, block_number, is_locked, data, error,
	invoice_expires_at, completed_at, created_at, updated_at`

type DepositRepository struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, d *domain.Deposit) error {
	errList, err := json.Marshal(d.Errors)
	if err != nil {
		return fmt.Errorf("Create: marshal errors: %w", err)
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO deposits (
			tid, member_id, currency_id, blockchain_key, amount, fee, state,
			invoice_id, address, txid, block_number, is_locked, data, error,
			invoice_expires_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		d.TID, d.MemberID, d.CurrencyID, d.BlockchainKey, d.Amount, d.Fee, d.State,
		d.InvoiceID, d.Address, d.TxID, d.BlockNumber, d.IsLocked, nullableJSON(d.Data), errList,
		d.InvoiceExpiresAt, d.CompletedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err := row.Scan(&d.ID); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *DepositRepository) GetByID(ctx context.Context, id int64) (*domain.Deposit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

func (r *DepositRepository) GetByTID(ctx context.Context, tid string) (*domain.Deposit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE lower(tid) = lower($1)`, tid,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTID: %w", err)
	}
	return d, nil
}

// GetByCurrencyAndInvoice locates the deposit an external intention settles.
func (r *DepositRepository) GetByCurrencyAndInvoice(ctx context.Context, currencyID, invoiceID string) (*domain.Deposit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE currency_id = $1 AND invoice_id = $2`,
		currencyID, invoiceID,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByCurrencyAndInvoice: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByCurrencyAndInvoice: %w", err)
	}
	return d, nil
}

// GetForUpdate takes the row lock that serializes concurrent pollers on one
// deposit. Held until the surrounding transaction ends.
func (r *DepositRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Deposit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return d, nil
}

func (r *DepositRepository) UpdateState(ctx context.Context, tx *sql.Tx, id int64, state domain.DepositState, isLocked bool, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE deposits SET state = $1, is_locked = $2, completed_at = $3, updated_at = now()
		WHERE id = $4`,
		state, isLocked, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateState: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateState: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateState: %w", domain.ErrNotFound)
	}
	return nil
}

// SetInvoice stores the payment request the gateway issued for the deposit.
func (r *DepositRepository) SetInvoice(ctx context.Context, tx *sql.Tx, id int64, invoiceID string, data json.RawMessage, expiresAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE deposits SET invoice_id = $1, data = $2, invoice_expires_at = $3, updated_at = now()
		WHERE id = $4`,
		invoiceID, nullableJSON(data), expiresAt, id,
	)
	if err != nil {
		return fmt.Errorf("SetInvoice: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetInvoice: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetInvoice: %w", domain.ErrNotFound)
	}
	return nil
}

// AppendError adds one record to the deposit's append-only error list.
func (r *DepositRepository) AppendError(ctx context.Context, id int64, depErr domain.DepositError) error {
	entry, err := json.Marshal([]domain.DepositError{depErr})
	if err != nil {
		return fmt.Errorf("AppendError: marshal: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE deposits SET error = error || $1::jsonb, updated_at = now() WHERE id = $2`,
		entry, id,
	)
	if err != nil {
		return fmt.Errorf("AppendError: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AppendError: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("AppendError: %w", domain.ErrNotFound)
	}
	return nil
}

func scanDeposit(s scanner) (*domain.Deposit, error) {
	var (
		d       domain.Deposit
		data    []byte
		errList []byte
	)
	err := s.Scan(
		&d.ID, &d.TID, &d.MemberID, &d.CurrencyID, &d.BlockchainKey,
		&d.Amount, &d.Fee, &d.State, &d.InvoiceID, &d.Address, &d.TxID,
		&d.BlockNumber, &d.IsLocked, &data, &errList,
		&d.InvoiceExpiresAt, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		d.Data = json.RawMessage(data)
	}
	if len(errList) > 0 {
		if err := json.Unmarshal(errList, &d.Errors); err != nil {
			return nil, fmt.Errorf("scanDeposit: unmarshal error list: %w", err)
		}
	}
	return &d, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
