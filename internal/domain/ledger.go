package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlatformMemberID owns the platform-level asset and revenue accounts.
const PlatformMemberID int64 = 0

type AccountKind string

const (
	AccountKindAsset           AccountKind = "asset"
	AccountKindRevenue         AccountKind = "revenue"
	AccountKindLiabilityMain   AccountKind = "liability-main"
	AccountKindLiabilityLocked AccountKind = "liability-locked"
)

// Account is one balance bucket of the double-entry ledger. The ledger is
// its only writer; balances never go negative.
type Account struct {
	ID         int64
	MemberID   int64
	CurrencyID string
	Kind       AccountKind
	Balance    decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// ReferenceType names the record kind a ledger entry or chain transaction
// settles against. Explicit variant instead of a polymorphic association.
type ReferenceType string

const (
	ReferenceTypeDeposit  ReferenceType = "deposit"
	ReferenceTypeWithdraw ReferenceType = "withdraw"
)

// Reference points at the deposit or withdraw that caused a posting.
type Reference struct {
	Type ReferenceType
	TID  string
}

func DepositReference(tid string) Reference {
	return Reference{Type: ReferenceTypeDeposit, TID: tid}
}

func WithdrawReference(tid string) Reference {
	return Reference{Type: ReferenceTypeWithdraw, TID: tid}
}

type LedgerEntry struct {
	ID            uuid.UUID
	AccountID     int64
	Reference     Reference
	EntryType     EntryType
	Amount        decimal.Decimal
	CurrencyID    string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	CreatedAt     time.Time
}
