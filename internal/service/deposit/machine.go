// Package deposit drives the guarded deposit lifecycle. Every event is
// fired against a row already locked by the caller's transaction, and the
// ledger postings a transition requires are written inside that same
// transaction: the state change and its postings land together or not at
// all.
package deposit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/domain"
)

type depositRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Deposit, error)
	UpdateState(ctx context.Context, tx *sql.Tx, id int64, state domain.DepositState, isLocked bool, completedAt *time.Time) error
}

type poster interface {
	CreditAsset(ctx context.Context, tx *sql.Tx, currencyID string, amount decimal.Decimal, ref domain.Reference) error
	CreditRevenue(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, amount decimal.Decimal, ref domain.Reference) error
	CreditLiability(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind, amount decimal.Decimal, ref domain.Reference) error
	DebitLiability(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, kind domain.AccountKind, amount decimal.Decimal, ref domain.Reference) error
	TransferLiability(ctx context.Context, tx *sql.Tx, memberID int64, currencyID string, fromKind, toKind domain.AccountKind, amount decimal.Decimal, ref domain.Reference) error
}

// Policy carries the funds-locking switches injected at construction time.
type Policy struct {
	FundsLocked    bool
	ManualApproval bool
}

type Machine struct {
	deposits depositRepo
	ledger   poster
	policy   Policy
}

func NewMachine(deposits depositRepo, ledger poster, policy Policy) *Machine {
	return &Machine{deposits: deposits, ledger: ledger, policy: policy}
}

// Accept credits the originating ledger triple: asset for amount+fee,
// revenue for the fee, liability for the amount. Coin deposits go to the
// locked liability bucket when either locking policy is active.
func (m *Machine) Accept(ctx context.Context, tx *sql.Tx, dep *domain.Deposit, cur *domain.Currency) error {
	next, err := domain.NextDepositState(dep.State, domain.EventAccept)
	if err != nil {
		return fmt.Errorf("Accept: %w", err)
	}

	locked := cur.IsCoin() && (m.policy.FundsLocked || m.policy.ManualApproval)
	kind := domain.AccountKindLiabilityMain
	if locked {
		kind = domain.AccountKindLiabilityLocked
	}

	ref := domain.DepositReference(dep.TID)
	if err := m.ledger.CreditAsset(ctx, tx, dep.CurrencyID, dep.Amount.Add(dep.Fee), ref); err != nil {
		return fmt.Errorf("Accept: %w", err)
	}
	if dep.Fee.IsPositive() {
		if err := m.ledger.CreditRevenue(ctx, tx, dep.MemberID, dep.CurrencyID, dep.Fee, ref); err != nil {
			return fmt.Errorf("Accept: %w", err)
		}
	}
	if err := m.ledger.CreditLiability(ctx, tx, dep.MemberID, dep.CurrencyID, kind, dep.Amount, ref); err != nil {
		return fmt.Errorf("Accept: %w", err)
	}

	if err := m.deposits.UpdateState(ctx, tx, dep.ID, next, locked, dep.CompletedAt); err != nil {
		return fmt.Errorf("Accept: %w", err)
	}

	dep.State = next
	dep.IsLocked = locked
	return nil
}

// Dispatch releases locked funds to the main liability bucket and marks the
// deposit terminal-success. completed_at is set exactly once, here.
func (m *Machine) Dispatch(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error {
	next, err := domain.NextDepositState(dep.State, domain.EventDispatch)
	if err != nil {
		return fmt.Errorf("Dispatch: %w", err)
	}

	if dep.IsLocked {
		ref := domain.DepositReference(dep.TID)
		if err := m.ledger.TransferLiability(ctx, tx, dep.MemberID, dep.CurrencyID,
			domain.AccountKindLiabilityLocked, domain.AccountKindLiabilityMain,
			dep.Amount, ref); err != nil {
			return fmt.Errorf("Dispatch: %w", err)
		}
	}

	completedAt := dep.CompletedAt
	if completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}
	if err := m.deposits.UpdateState(ctx, tx, dep.ID, next, false, completedAt); err != nil {
		return fmt.Errorf("Dispatch: %w", err)
	}

	dep.State = next
	dep.IsLocked = false
	dep.CompletedAt = completedAt
	return nil
}

// Rollback reverses a dispatched deposit: any still-locked balance is
// released first, then the amount is debited from the member's main funds.
func (m *Machine) Rollback(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error {
	next, err := domain.NextDepositState(dep.State, domain.EventRollback)
	if err != nil {
		return fmt.Errorf("Rollback: %w", err)
	}

	ref := domain.DepositReference(dep.TID)
	if dep.IsLocked {
		if err := m.ledger.TransferLiability(ctx, tx, dep.MemberID, dep.CurrencyID,
			domain.AccountKindLiabilityLocked, domain.AccountKindLiabilityMain,
			dep.Amount, ref); err != nil {
			return fmt.Errorf("Rollback: %w", err)
		}
	}
	if err := m.ledger.DebitLiability(ctx, tx, dep.MemberID, dep.CurrencyID,
		domain.AccountKindLiabilityMain, dep.Amount, ref); err != nil {
		return fmt.Errorf("Rollback: %w", err)
	}

	// completed_at holds only for terminal-success deposits.
	if err := m.deposits.UpdateState(ctx, tx, dep.ID, next, false, nil); err != nil {
		return fmt.Errorf("Rollback: %w", err)
	}

	dep.State = next
	dep.IsLocked = false
	dep.CompletedAt = nil
	return nil
}

func (m *Machine) Cancel(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error {
	return m.fire(ctx, tx, dep, domain.EventCancel)
}

func (m *Machine) Reject(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error {
	return m.fire(ctx, tx, dep, domain.EventReject)
}

func (m *Machine) Skip(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error {
	return m.fire(ctx, tx, dep, domain.EventSkip)
}

func (m *Machine) HoldForAMLCheck(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error {
	return m.fire(ctx, tx, dep, domain.EventAMLCheck)
}

// Refund is only legal for coin-backed currencies.
func (m *Machine) Refund(ctx context.Context, tx *sql.Tx, dep *domain.Deposit, cur *domain.Currency) error {
	if !cur.IsCoin() {
		return fmt.Errorf("Refund: currency %s is not coin-type: %w", cur.ID, domain.ErrUnexpectedState)
	}
	return m.fire(ctx, tx, dep, domain.EventRefund)
}

func (m *Machine) fire(ctx context.Context, tx *sql.Tx, dep *domain.Deposit, event domain.Event) error {
	next, err := domain.NextDepositState(dep.State, event)
	if err != nil {
		return fmt.Errorf("fire %s: %w", event, err)
	}
	if err := m.deposits.UpdateState(ctx, tx, dep.ID, next, dep.IsLocked, dep.CompletedAt); err != nil {
		return fmt.Errorf("fire %s: %w", event, err)
	}
	dep.State = next
	return nil
}
