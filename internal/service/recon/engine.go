// Package recon orchestrates one reconciliation pass: pull deposit and
// withdraw notifications from the gateway, match them against local records,
// and drive the guarded lifecycles. The engine owns no persistent state; it
// is a stateless driver invoked on a fixed interval, and several instances
// may poll the same storage concurrently — per-record row locks are the only
// serialization mechanism.
package recon

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/events"
	"github.com/opencustody/recon/internal/gateway"
	"github.com/opencustody/recon/internal/report"
)

type depositRepo interface {
	GetByCurrencyAndInvoice(ctx context.Context, currencyID, invoiceID string) (*domain.Deposit, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Deposit, error)
	AppendError(ctx context.Context, id int64, depErr domain.DepositError) error
}

type withdrawRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.Withdraw, error)
	GetByTID(ctx context.Context, tid string) (*domain.Withdraw, error)
}

type currencyRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Currency, error)
	ListByBlockchain(ctx context.Context, blockchainKey string) ([]domain.Currency, error)
}

type beneficiaryRepo interface {
	FindOrCreate(ctx context.Context, memberID int64, currencyID, name string, data json.RawMessage) error
}

type depositMachine interface {
	Accept(ctx context.Context, tx *sql.Tx, dep *domain.Deposit, cur *domain.Currency) error
	Dispatch(ctx context.Context, tx *sql.Tx, dep *domain.Deposit) error
}

type withdrawSettler interface {
	Settle(ctx context.Context, id int64) error
}

// Config carries the scalar options the engine consumes.
type Config struct {
	BlockchainKey     string
	BeneficiaryPrefix string
	Interval          time.Duration
}

type Engine struct {
	db            *sql.DB
	gw            gateway.Gateway
	deposits      depositRepo
	withdraws     withdrawRepo
	currencies    currencyRepo
	beneficiaries beneficiaryRepo
	machine       depositMachine
	settler       withdrawSettler
	publisher     events.Publisher
	reporter      report.Reporter
	logger        *slog.Logger
	cfg           Config
}

func NewEngine(
	db *sql.DB,
	gw gateway.Gateway,
	deposits depositRepo,
	withdraws withdrawRepo,
	currencies currencyRepo,
	beneficiaries beneficiaryRepo,
	machine depositMachine,
	settler withdrawSettler,
	publisher events.Publisher,
	reporter report.Reporter,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		db:            db,
		gw:            gw,
		deposits:      deposits,
		withdraws:     withdraws,
		currencies:    currencies,
		beneficiaries: beneficiaries,
		machine:       machine,
		settler:       settler,
		publisher:     publisher,
		reporter:      reporter,
		logger:        logger,
		cfg:           cfg,
	}
}

// Start runs both poll cycles on the configured interval until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("reconciliation engine started",
		"blockchain", e.cfg.BlockchainKey,
		"interval", e.cfg.Interval,
	)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("reconciliation engine stopped")
			return
		case <-ticker.C:
			if err := e.PollDeposits(ctx); err != nil {
				e.logger.Error("deposit poll cycle failed", "error", err)
			}
			if err := e.PollWithdraws(ctx); err != nil {
				e.logger.Error("withdraw poll cycle failed", "error", err)
			}
		}
	}
}

func (e *Engine) publish(ctx context.Context, ev events.RecordEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Error("failed to publish record event",
			"type", ev.Type,
			"tid", ev.TID,
			"error", err,
		)
	}
}

func cycleStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
