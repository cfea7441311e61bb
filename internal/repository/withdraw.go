package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opencustody/recon/internal/domain"
)

const withdrawColumns = `id, tid, member_id, currency_id, amount, state,
	to_address, txid, completed_at, created_at, updated_at`

type WithdrawRepository struct {
	db *sql.DB
}

func NewWithdrawRepository(db *sql.DB) *WithdrawRepository {
	return &WithdrawRepository{db: db}
}

func (r *WithdrawRepository) Create(ctx context.Context, w *domain.Withdraw) error {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO withdraws (
			tid, member_id, currency_id, amount, state, to_address, txid,
			completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		w.TID, w.MemberID, w.CurrencyID, w.Amount, w.State, w.ToAddress, w.TxID,
		w.CompletedAt, w.CreatedAt, w.UpdatedAt,
	)
	if err := row.Scan(&w.ID); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawRepository) GetByID(ctx context.Context, id int64) (*domain.Withdraw, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawColumns+` FROM withdraws WHERE id = $1`, id,
	)
	w, err := scanWithdraw(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WithdrawRepository) GetByTID(ctx context.Context, tid string) (*domain.Withdraw, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawColumns+` FROM withdraws WHERE lower(tid) = lower($1)`, tid,
	)
	w, err := scanWithdraw(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTID: %w", err)
	}
	return w, nil
}

func (r *WithdrawRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Withdraw, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawColumns+` FROM withdraws WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWithdraw(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return w, nil
}

func (r *WithdrawRepository) UpdateState(ctx context.Context, tx *sql.Tx, id int64, state domain.WithdrawState, txid *string, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdraws SET state = $1, txid = COALESCE($2, txid),
			completed_at = COALESCE($3, completed_at), updated_at = now()
		WHERE id = $4`,
		state, txid, completedAt, id,
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

func scanWithdraw(s scanner) (*domain.Withdraw, error) {
	var w domain.Withdraw
	err := s.Scan(
		&w.ID, &w.TID, &w.MemberID, &w.CurrencyID, &w.Amount, &w.State,
		&w.ToAddress, &w.TxID, &w.CompletedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
