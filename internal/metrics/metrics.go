package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_poll_cycles_total",
		Help: "Reconciliation poll cycles by kind (deposit/withdraw) and status.",
	}, []string{"kind", "status"})

	DepositIntentionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_deposit_intentions_total",
		Help: "Deposit intentions processed by outcome.",
	}, []string{"outcome"})

	WithdrawNoticesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_withdraw_notices_total",
		Help: "Withdraw settlement notices processed by outcome.",
	}, []string{"outcome"})

	ExceptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recon_reported_exceptions_total",
		Help: "Non-fatal integrity exceptions sent to the reporting channel.",
	})
)
