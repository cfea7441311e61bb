package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/domain"
)

const TestBlockchainKey = "gateway"

// SeedCurrencies registers the currencies most tests settle against.
func SeedCurrencies(t *testing.T, db *sql.DB) {
	t.Helper()

	currencies := []struct {
		id  string
		typ string
	}{
		{"btc", "coin"},
		{"eth", "coin"},
		{"usd", "fiat"},
	}
	for _, c := range currencies {
		_, err := db.Exec(
			`INSERT INTO currencies (id, blockchain_key, type) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			c.id, TestBlockchainKey, c.typ,
		)
		if err != nil {
			t.Fatalf("seed currency %s: %v", c.id, err)
		}
	}
}

func SeedDeposit(t *testing.T, db *sql.DB, d *domain.Deposit) *domain.Deposit {
	t.Helper()

	if d.TID == "" {
		d.TID = domain.NewTID()
	}
	if d.State == "" {
		d.State = domain.DepositStateSubmitted
	}
	if d.BlockchainKey == "" {
		d.BlockchainKey = TestBlockchainKey
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	err := db.QueryRow(
		`INSERT INTO deposits (tid, member_id, currency_id, blockchain_key, amount, fee,
			state, invoice_id, address, is_locked, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		d.TID, d.MemberID, d.CurrencyID, d.BlockchainKey, d.Amount, d.Fee,
		d.State, d.InvoiceID, d.Address, d.IsLocked, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.ID)
	if err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	return d
}

func SeedWithdraw(t *testing.T, db *sql.DB, w *domain.Withdraw) *domain.Withdraw {
	t.Helper()

	if w.TID == "" {
		w.TID = domain.NewTID()
	}
	if w.State == "" {
		w.State = domain.WithdrawStateConfirming
	}
	if w.ToAddress == "" {
		w.ToAddress = "bc1qtestdestination"
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	err := db.QueryRow(
		`INSERT INTO withdraws (tid, member_id, currency_id, amount, state, to_address,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		w.TID, w.MemberID, w.CurrencyID, w.Amount, w.State, w.ToAddress,
		w.CreatedAt, w.UpdatedAt,
	).Scan(&w.ID)
	if err != nil {
		t.Fatalf("seed withdraw: %v", err)
	}
	return w
}

// GetAccountBalance returns the balance of the member's account of the given
// kind, or zero if the account was never created.
func GetAccountBalance(t *testing.T, db *sql.DB, memberID int64, currencyID string, kind domain.AccountKind) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(
		`SELECT balance FROM accounts WHERE member_id = $1 AND currency_id = $2 AND kind = $3`,
		memberID, currencyID, kind,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero
	}
	if err != nil {
		t.Fatalf("get account balance: %v", err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, ref domain.Reference) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE reference_type = $1 AND reference_tid = $2`,
		ref.Type, ref.TID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries: %v", err)
	}
	return count
}

func GetDepositState(t *testing.T, db *sql.DB, id int64) domain.DepositState {
	t.Helper()

	var state domain.DepositState
	if err := db.QueryRow(`SELECT state FROM deposits WHERE id = $1`, id).Scan(&state); err != nil {
		t.Fatalf("get deposit state: %v", err)
	}
	return state
}

func GetWithdrawState(t *testing.T, db *sql.DB, id int64) domain.WithdrawState {
	t.Helper()

	var state domain.WithdrawState
	if err := db.QueryRow(`SELECT state FROM withdraws WHERE id = $1`, id).Scan(&state); err != nil {
		t.Fatalf("get withdraw state: %v", err)
	}
	return state
}

func CountBeneficiaries(t *testing.T, db *sql.DB, memberID int64) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM beneficiaries WHERE member_id = $1`, memberID).Scan(&count); err != nil {
		t.Fatalf("count beneficiaries: %v", err)
	}
	return count
}
