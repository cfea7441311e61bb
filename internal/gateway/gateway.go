// Package gateway defines the capability contract against one external
// custody backend and its HTTP implementation. Implementations must be safe
// to poll repeatedly: re-delivered intentions are the engine's problem, and
// network errors propagate to the caller untouched.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DepositIntention is the backend's notification of an observed deposit.
type DepositIntention struct {
	ID        string
	Currency  string
	InvoiceID string
	Amount    decimal.Decimal
	Address   string
}

// WithdrawNotice reports settlement progress of an outbound transfer.
type WithdrawNotice struct {
	WithdrawID string
	Amount     decimal.Decimal
	IsDone     bool
}

type InvoiceLink struct {
	Type string
	URL  string
}

// Invoice is a payment request shown to the payer, with an expiry.
type Invoice struct {
	ID        string
	Links     []InvoiceLink
	ExpiresAt time.Time
}

// ChainTx is the backend's view of a broadcast transaction.
type ChainTx struct {
	TxID        string
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	BlockNumber *int64
	Status      string
}

type Gateway interface {
	PollDeposits(ctx context.Context) ([]DepositIntention, error)
	PollWithdraws(ctx context.Context) ([]WithdrawNotice, error)
	CreateInvoice(ctx context.Context, amount decimal.Decimal, currencyID, comment string) (*Invoice, error)
	// CreateTransaction broadcasts a transfer. key is the caller-supplied
	// idempotency token (the withdraw tid), so a retried call never
	// double-sends.
	CreateTransaction(ctx context.Context, key, toAddress, cryptocurrency string, amount decimal.Decimal) (*ChainTx, error)
	LoadBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	LoadBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}
