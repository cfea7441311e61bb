package deposit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/gateway"
	"github.com/opencustody/recon/internal/logging"
)

type invoiceDepositRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Deposit, error)
	UpdateState(ctx context.Context, tx *sql.Tx, id int64, state domain.DepositState, isLocked bool, completedAt *time.Time) error
	SetInvoice(ctx context.Context, tx *sql.Tx, id int64, invoiceID string, data json.RawMessage, expiresAt time.Time) error
}

type invoiceGateway interface {
	CreateInvoice(ctx context.Context, amount decimal.Decimal, currencyID, comment string) (*gateway.Invoice, error)
}

// Invoicer requests a payment invoice from the gateway for a submitted
// deposit and moves it to invoiced.
type Invoicer struct {
	db       *sql.DB
	deposits invoiceDepositRepo
	gw       invoiceGateway
	expiry   time.Duration
}

func NewInvoicer(db *sql.DB, deposits invoiceDepositRepo, gw invoiceGateway, expiry time.Duration) *Invoicer {
	return &Invoicer{db: db, deposits: deposits, gw: gw, expiry: expiry}
}

type invoiceData struct {
	Links     []gateway.InvoiceLink `json:"links"`
	ExpiresAt time.Time             `json:"expires_at"`
}

func (s *Invoicer) CreateInvoice(ctx context.Context, depositID int64, comment string) (*domain.Deposit, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: begin tx: %w", err)
	}
	defer tx.Rollback()

	dep, err := s.deposits.GetForUpdate(ctx, tx, depositID)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	next, err := domain.NextDepositState(dep.State, domain.EventInvoice)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	inv, err := s.gw.CreateInvoice(ctx, dep.Amount, strings.ToUpper(dep.CurrencyID), comment)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	data, err := json.Marshal(invoiceData{Links: inv.Links, ExpiresAt: inv.ExpiresAt})
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: marshal data: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.expiry)
	if err := s.deposits.SetInvoice(ctx, tx, dep.ID, inv.ID, data, expiresAt); err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}
	if err := s.deposits.UpdateState(ctx, tx, dep.ID, next, dep.IsLocked, dep.CompletedAt); err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateInvoice: commit: %w", err)
	}

	dep.State = next
	dep.InvoiceID = &inv.ID
	dep.Data = data
	dep.InvoiceExpiresAt = &expiresAt

	log.Info("deposit invoiced",
		"deposit_tid", dep.TID,
		"invoice_id", inv.ID,
		"expires_at", expiresAt,
	)
	return dep, nil
}
