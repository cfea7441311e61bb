// Package ledger is the append-only double-entry posting API. Every posting
// locks the target account row, moves the balance, and writes an entry with
// the before/after balances — all inside the caller's transaction, so a
// state change and its postings commit or roll back as one unit.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/domain"
)

type accountRepo interface {
	GetOrCreateForUpdate(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id int64, newBalance decimal.Decimal) error
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type Ledger struct {
	accounts accountRepo
	entries  entryRepo
}

func New(accounts accountRepo, entries entryRepo) *Ledger {
	return &Ledger{accounts: accounts, entries: entries}
}

// CreditAsset credits the platform asset account for the currency.
func (l *Ledger) CreditAsset(ctx context.Context, tx *sql.Tx, currencyID string, amount decimal.Decimal, ref domain.Reference) error {
	if err := l.post(ctx, tx, domain.PlatformMemberID, currencyID, domain.AccountKindAsset, domain.EntryTypeCredit, amount, ref); err != nil {
		return fmt.Errorf("CreditAsset: %w", err)
	}
	return nil
}

// CreditRevenue credits fee revenue attributed to the member's deposit.
func (l *Ledger) CreditRevenue(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, amount decimal.Decimal, ref domain.Reference) error {
	if err := l.post(ctx, tx, memberID, currencyID, domain.AccountKindRevenue, domain.EntryTypeCredit, amount, ref); err != nil {
		return fmt.Errorf("CreditRevenue: %w", err)
	}
	return nil
}

func (l *Ledger) CreditLiability(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind, amount decimal.Decimal, ref domain.Reference) error {
	if err := l.post(ctx, tx, memberID, currencyID, kind, domain.EntryTypeCredit, amount, ref); err != nil {
		return fmt.Errorf("CreditLiability: %w", err)
	}
	return nil
}

func (l *Ledger) DebitLiability(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind, amount decimal.Decimal, ref domain.Reference) error {
	if err := l.post(ctx, tx, memberID, currencyID, kind, domain.EntryTypeDebit, amount, ref); err != nil {
		return fmt.Errorf("DebitLiability: %w", err)
	}
	return nil
}

// TransferLiability moves amount between two liability buckets of the same
// member/currency. The sum of the two balances is unchanged.
func (l *Ledger) TransferLiability(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, fromKind, toKind domain.AccountKind, amount decimal.Decimal, ref domain.Reference) error {
	if err := l.post(ctx, tx, memberID, currencyID, fromKind, domain.EntryTypeDebit, amount, ref); err != nil {
		return fmt.Errorf("TransferLiability: %w", err)
	}
	if err := l.post(ctx, tx, memberID, currencyID, toKind, domain.EntryTypeCredit, amount, ref); err != nil {
		return fmt.Errorf("TransferLiability: %w", err)
	}
	return nil
}

func (l *Ledger) post(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind, entryType domain.EntryType, amount decimal.Decimal, ref domain.Reference) error {
	if !amount.IsPositive() {
		return fmt.Errorf("post: %w", domain.ErrInvalidAmount)
	}

	acc, err := l.accounts.GetOrCreateForUpdate(ctx, tx, memberID, currencyID, kind)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}

	newBalance := acc.Balance.Add(amount)
	if entryType == domain.EntryTypeDebit {
		newBalance = acc.Balance.Sub(amount)
	}
	if newBalance.IsNegative() {
		return fmt.Errorf("post: account %d: %w", acc.ID, domain.ErrInsufficientBalance)
	}

	if err := l.accounts.UpdateBalance(ctx, tx, acc.ID, newBalance); err != nil {
		return fmt.Errorf("post: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     acc.ID,
		Reference:     ref,
		EntryType:     entryType,
		Amount:        amount,
		CurrencyID:    currencyID,
		BalanceBefore: acc.Balance,
		BalanceAfter:  newBalance,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.entries.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("post: %w", err)
	}
	return nil
}
