// Package withdraw covers the outbound transfer lifecycle: broadcasting a
// prepared withdraw through the gateway and settling it when the gateway
// reports completion.
package withdraw

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/gateway"
)

type withdrawRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Withdraw, error)
	UpdateState(ctx context.Context, tx *sql.Tx, id int64, state domain.WithdrawState, txid *string, completedAt *time.Time) error
}

type transactionRepo interface {
	Create(ctx context.Context, t *domain.Transaction) error
}

type broadcastGateway interface {
	CreateTransaction(ctx context.Context, key, toAddress, cryptocurrency string, amount decimal.Decimal) (*gateway.ChainTx, error)
}

type Service struct {
	db            *sql.DB
	withdraws     withdrawRepo
	transactions  transactionRepo
	gw            broadcastGateway
	blockchainKey string
	logger        *slog.Logger
}

func NewService(db *sql.DB, withdraws withdrawRepo, transactions transactionRepo, gw broadcastGateway, blockchainKey string, logger *slog.Logger) *Service {
	return &Service{
		db:            db,
		withdraws:     withdraws,
		transactions:  transactions,
		gw:            gw,
		blockchainKey: blockchainKey,
		logger:        logger,
	}
}

// Submit broadcasts the withdraw through the gateway and moves it to
// confirming. The withdraw tid is the broadcast idempotency key, so a
// retried Submit cannot double-send funds.
func (s *Service) Submit(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Submit: begin tx: %w", err)
	}
	defer tx.Rollback()

	w, err := s.withdraws.GetForUpdate(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("Submit: %w", err)
	}

	submitted, err := domain.NextWithdrawState(w.State, domain.WithdrawEventSubmit)
	if err != nil {
		return fmt.Errorf("Submit: %w", err)
	}
	confirming, err := domain.NextWithdrawState(submitted, domain.WithdrawEventConfirm)
	if err != nil {
		return fmt.Errorf("Submit: %w", err)
	}

	chainTx, err := s.gw.CreateTransaction(ctx, w.TID, w.ToAddress, strings.ToUpper(w.CurrencyID), w.Amount)
	if err != nil {
		return fmt.Errorf("Submit: %w", err)
	}

	if err := s.withdraws.UpdateState(ctx, tx, w.ID, confirming, &chainTx.TxID, nil); err != nil {
		return fmt.Errorf("Submit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Submit: commit: %w", err)
	}

	now := time.Now().UTC()
	record := &domain.Transaction{
		CurrencyID:    w.CurrencyID,
		BlockchainKey: s.blockchainKey,
		Reference:     domain.WithdrawReference(w.TID),
		TxID:          chainTx.TxID,
		ToAddress:     w.ToAddress,
		Amount:        chainTx.Amount,
		BlockNumber:   chainTx.BlockNumber,
		Status:        domain.TransactionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if chainTx.FromAddress != "" {
		record.FromAddress = &chainTx.FromAddress
	}
	if err := s.transactions.Create(ctx, record); err != nil {
		// The broadcast is committed; the chain fact record is recoverable
		// from the gateway on the next sweep.
		s.logger.Error("failed to record chain transaction",
			"withdraw_tid", w.TID,
			"txid", chainTx.TxID,
			"error", err,
		)
	}

	s.logger.Info("withdraw submitted",
		"withdraw_tid", w.TID,
		"txid", chainTx.TxID,
		"amount", w.Amount,
	)
	return nil
}

// Settle marks a confirming withdraw succeeded. The guard re-checks the
// state under the row lock, so a racing poller settles it exactly once.
func (s *Service) Settle(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	w, err := s.withdraws.GetForUpdate(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("Settle: %w", err)
	}

	next, err := domain.NextWithdrawState(w.State, domain.WithdrawEventSucceed)
	if err != nil {
		return fmt.Errorf("Settle: %w", err)
	}

	now := time.Now().UTC()
	if err := s.withdraws.UpdateState(ctx, tx, w.ID, next, nil, &now); err != nil {
		return fmt.Errorf("Settle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Settle: commit: %w", err)
	}

	s.logger.Info("withdraw succeeded", "withdraw_tid", w.TID, "withdraw_id", w.ID)
	return nil
}
