package recon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/events"
	"github.com/opencustody/recon/internal/gateway"
	"github.com/opencustody/recon/internal/metrics"
)

// PollWithdraws performs one withdraw settlement pass. Amount mismatches are
// logged only; already-settled notices are expected to recur and are
// silently skipped.
func (e *Engine) PollWithdraws(ctx context.Context) (err error) {
	defer func() {
		metrics.PollCyclesTotal.WithLabelValues("withdraw", cycleStatus(err)).Inc()
	}()

	notices, err := e.gw.PollWithdraws(ctx)
	if err != nil {
		return fmt.Errorf("PollWithdraws: %w", err)
	}

	for _, n := range notices {
		res := e.processNotice(ctx, n)
		metrics.WithdrawNoticesTotal.WithLabelValues(string(res.Outcome)).Inc()
		if res.Outcome == OutcomeFailed {
			e.logger.Error("withdraw notice processing failed",
				"withdraw_id", n.WithdrawID,
				"reason", res.Reason,
				"error", res.Err,
			)
		}
	}
	return nil
}

func (e *Engine) processNotice(ctx context.Context, n gateway.WithdrawNotice) Result {
	if !n.IsDone || n.WithdrawID == "" {
		return skipped("not done")
	}

	w, err := e.resolveWithdraw(ctx, n.WithdrawID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("no withdraw matches notice",
				"withdraw_id", n.WithdrawID,
				"blockchain", e.cfg.BlockchainKey,
			)
			return skipped("no matching withdraw")
		}
		return failed("lookup", err)
	}

	if !w.Amount.Equal(n.Amount) {
		e.logger.Warn("withdraw and notice amounts differ",
			"withdraw_tid", w.TID,
			"withdraw_amount", w.Amount.String(),
			"notice_amount", n.Amount.String(),
			"blockchain", e.cfg.BlockchainKey,
		)
		return skipped("amount mismatch")
	}

	if !w.Confirming() {
		e.logger.Debug("withdraw in skippable state",
			"withdraw_tid", w.TID,
			"state", string(w.State),
		)
		return skipped("not confirming")
	}

	if err := e.settler.Settle(ctx, w.ID); err != nil {
		var terr *domain.TransitionError
		if errors.As(err, &terr) {
			// A concurrent poller settled it first.
			e.logger.Debug("withdraw already settled", "withdraw_tid", w.TID)
			return skipped("already settled")
		}
		return failed("settle", err)
	}

	e.publish(ctx, events.RecordEvent{
		Type:       "withdraw.succeeded",
		TID:        w.TID,
		MemberID:   w.MemberID,
		CurrencyID: w.CurrencyID,
		Amount:     w.Amount,
		State:      string(domain.WithdrawStateSucceeded),
	})

	return applied()
}

// resolveWithdraw matches the external reference against the two addressing
// schemes: public ticket id ("TID...") first, then the internal numeric id.
func (e *Engine) resolveWithdraw(ctx context.Context, externalID string) (*domain.Withdraw, error) {
	if strings.HasPrefix(externalID, "TID") {
		return e.withdraws.GetByTID(ctx, externalID)
	}
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("resolveWithdraw: malformed id %q: %w", externalID, domain.ErrNotFound)
	}
	return e.withdraws.GetByID(ctx, id)
}
