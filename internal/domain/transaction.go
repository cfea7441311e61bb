package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an immutable record of an observed chain transaction.
// Only the status may advance, and only from pending.
type Transaction struct {
	ID            int64
	CurrencyID    string
	BlockchainKey string
	Reference     Reference
	TxID          string
	FromAddress   *string
	ToAddress     string
	Amount        decimal.Decimal
	BlockNumber   *int64
	Status        TransactionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
