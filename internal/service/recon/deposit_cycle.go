package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/events"
	"github.com/opencustody/recon/internal/gateway"
	"github.com/opencustody/recon/internal/metrics"
)

// PollDeposits performs one deposit reconciliation pass. A failing intention
// never blocks the rest of the batch; only a gateway fetch failure aborts
// the cycle.
func (e *Engine) PollDeposits(ctx context.Context) (err error) {
	defer func() {
		metrics.PollCyclesTotal.WithLabelValues("deposit", cycleStatus(err)).Inc()
	}()

	intentions, err := e.gw.PollDeposits(ctx)
	if err != nil {
		return fmt.Errorf("PollDeposits: %w", err)
	}

	for _, in := range intentions {
		res := e.processIntention(ctx, in)
		metrics.DepositIntentionsTotal.WithLabelValues(string(res.Outcome)).Inc()
		if res.Outcome == OutcomeFailed {
			e.logger.Error("deposit intention processing failed",
				"intention_id", in.ID,
				"currency", in.Currency,
				"invoice_id", in.InvoiceID,
				"reason", res.Reason,
				"error", res.Err,
			)
		}
	}
	return nil
}

// processIntention drives one intention through the deposit state machine.
// The row lock is held from the re-read to commit, so concurrent pollers
// racing on the same deposit serialize and the loser sees dispatched.
func (e *Engine) processIntention(ctx context.Context, in gateway.DepositIntention) Result {
	dep, err := e.deposits.GetByCurrencyAndInvoice(ctx, in.Currency, in.InvoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Expected under eventual-consistency delay; deposits are
			// created by the submitting side, never discovered here.
			e.logger.Warn("no deposit matches intention",
				"intention_id", in.ID,
				"currency", in.Currency,
				"invoice_id", in.InvoiceID,
				"blockchain", e.cfg.BlockchainKey,
			)
			return skipped("no matching deposit")
		}
		return failed("lookup", err)
	}

	cur, err := e.currencies.GetByID(ctx, dep.CurrencyID)
	if err != nil {
		return failed("currency lookup", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return failed("begin tx", err)
	}
	defer tx.Rollback()

	dep, err = e.deposits.GetForUpdate(ctx, tx, dep.ID)
	if err != nil {
		return failed("lock deposit", err)
	}

	if dep.Dispatched() {
		// Re-delivery of an already-settled intention; must not re-credit.
		e.logger.Debug("deposit already dispatched",
			"deposit_tid", dep.TID,
			"intention_id", in.ID,
		)
		return skipped("already dispatched")
	}

	if !dep.Amount.Equal(in.Amount) {
		e.reporter.Exception(ctx, "deposit and intention amounts differ",
			"deposit_tid", dep.TID,
			"deposit_amount", dep.Amount.String(),
			"intention_amount", in.Amount.String(),
			"intention_id", in.ID,
			"blockchain", e.cfg.BlockchainKey,
		)
		return skipped("amount mismatch")
	}

	if !dep.Reconcilable() {
		e.reporter.Exception(ctx, "deposit in unexpected state for intention",
			"deposit_tid", dep.TID,
			"deposit_state", string(dep.State),
			"intention_id", in.ID,
			"blockchain", e.cfg.BlockchainKey,
		)
		return skipped("unexpected state")
	}

	// AppendError writes on its own connection; the row lock must be
	// released before it runs or the engine blocks on itself.
	if err := e.machine.Accept(ctx, tx, dep, cur); err != nil {
		tx.Rollback()
		e.recordDepositError(ctx, dep.ID, err)
		return failed("accept", err)
	}
	if err := e.machine.Dispatch(ctx, tx, dep); err != nil {
		tx.Rollback()
		e.recordDepositError(ctx, dep.ID, err)
		return failed("dispatch", err)
	}

	if err := tx.Commit(); err != nil {
		return failed("commit", err)
	}

	e.logger.Info("deposit dispatched",
		"deposit_tid", dep.TID,
		"amount", dep.Amount,
		"currency", dep.CurrencyID,
		"intention_id", in.ID,
	)

	// Transitions are committed; everything below is best-effort.
	e.saveBeneficiary(ctx, dep, in.Address)
	e.publish(ctx, events.RecordEvent{
		Type:       "deposit.dispatched",
		TID:        dep.TID,
		MemberID:   dep.MemberID,
		CurrencyID: dep.CurrencyID,
		Amount:     dep.Amount,
		State:      string(dep.State),
	})

	return applied()
}

func (e *Engine) recordDepositError(ctx context.Context, depositID int64, cause error) {
	var terr *domain.TransitionError
	class := "ProcessingError"
	if errors.As(cause, &terr) {
		class = "TransitionError"
	}
	if err := e.deposits.AppendError(ctx, depositID, domain.DepositError{
		Class:   class,
		Message: cause.Error(),
	}); err != nil {
		e.logger.Error("failed to append deposit error", "deposit_id", depositID, "error", err)
	}
}

// saveBeneficiary persists the deposit source address as a withdrawal
// destination for every currency on this blockchain. Failures are reported
// and do not touch the committed transitions.
func (e *Engine) saveBeneficiary(ctx context.Context, dep *domain.Deposit, address string) {
	if address == "" {
		e.logger.Warn("deposit has no address to save as beneficiary", "deposit_tid", dep.TID)
		return
	}

	name := e.cfg.BeneficiaryPrefix + ":" + address
	data, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		e.reporter.Exception(ctx, "failed to encode beneficiary data",
			"deposit_tid", dep.TID, "address", address, "error", err.Error())
		return
	}

	currencies, err := e.currencies.ListByBlockchain(ctx, e.cfg.BlockchainKey)
	if err != nil {
		e.reporter.Exception(ctx, "failed to list blockchain currencies for beneficiary",
			"deposit_tid", dep.TID, "address", address, "error", err.Error())
		return
	}

	for _, cur := range currencies {
		if err := e.beneficiaries.FindOrCreate(ctx, dep.MemberID, cur.ID, name, data); err != nil {
			e.reporter.Exception(ctx, "failed to save beneficiary",
				"deposit_tid", dep.TID,
				"address", address,
				"currency", cur.ID,
				"error", err.Error(),
			)
		}
	}

	e.logger.Info("beneficiary saved", "deposit_tid", dep.TID, "name", name)
}
