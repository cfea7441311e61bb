package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opencustody/recon/internal/domain"
)

type BeneficiaryRepository struct {
	db *sql.DB
}

func NewBeneficiaryRepository(db *sql.DB) *BeneficiaryRepository {
	return &BeneficiaryRepository{db: db}
}

// FindOrCreate saves a withdrawal destination once per member/currency/name.
func (r *BeneficiaryRepository) FindOrCreate(ctx context.Context, memberID int64, currencyID, name string, data json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO beneficiaries (member_id, currency_id, name, data, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (member_id, currency_id, name) DO NOTHING`,
		memberID, currencyID, name, nullableJSON(data), domain.BeneficiaryStateActive,
	)
	if err != nil {
		return fmt.Errorf("FindOrCreate: %w", err)
	}
	return nil
}

func (r *BeneficiaryRepository) GetByMember(ctx context.Context, memberID int64) ([]domain.Beneficiary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, currency_id, name, data, state, created_at
		FROM beneficiaries WHERE member_id = $1 ORDER BY created_at`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByMember: %w", err)
	}
	defer rows.Close()

	var list []domain.Beneficiary
	for rows.Next() {
		var (
			b    domain.Beneficiary
			data []byte
		)
		if err := rows.Scan(&b.ID, &b.MemberID, &b.CurrencyID, &b.Name, &data, &b.State, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetByMember: scan: %w", err)
		}
		if len(data) > 0 {
			b.Data = json.RawMessage(data)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByMember: rows: %w", err)
	}
	return list, nil
}
