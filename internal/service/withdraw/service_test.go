package withdraw_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/gateway"
	"github.com/opencustody/recon/internal/repository"
	"github.com/opencustody/recon/internal/service/withdraw"
	"github.com/opencustody/recon/internal/testutil"
)

type fakeBroadcaster struct {
	calls []string
	err   error
}

func (f *fakeBroadcaster) CreateTransaction(ctx context.Context, key, toAddress, cryptocurrency string, amount decimal.Decimal) (*gateway.ChainTx, error) {
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.ChainTx{
		TxID:      "tx-" + key,
		ToAddress: toAddress,
		Amount:    amount,
		Status:    "pending",
	}, nil
}

func TestService_Submit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	withdraws := repository.NewWithdrawRepository(db)
	transactions := repository.NewTransactionRepository(db)
	gw := &fakeBroadcaster{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := withdraw.NewService(db, withdraws, transactions, gw, testutil.TestBlockchainKey, logger)

	w := testutil.SeedWithdraw(t, db, &domain.Withdraw{
		MemberID:   41,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("0.7"),
		State:      domain.WithdrawStatePrepared,
		ToAddress:  "bc1qdest41",
	})

	require.NoError(t, svc.Submit(ctx, w.ID))

	assert.Equal(t, domain.WithdrawStateConfirming, testutil.GetWithdrawState(t, db, w.ID))
	require.Equal(t, []string{w.TID}, gw.calls)

	stored, err := withdraws.GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TxID)
	assert.Equal(t, "tx-"+w.TID, *stored.TxID)

	record, err := transactions.GetByTxID(ctx, "btc", "tx-"+w.TID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, record.Status)
	assert.Equal(t, domain.WithdrawReference(w.TID), record.Reference)
	assert.Equal(t, "bc1qdest41", record.ToAddress)
}

func TestService_SubmitGuardsState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	gw := &fakeBroadcaster{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := withdraw.NewService(db, repository.NewWithdrawRepository(db), repository.NewTransactionRepository(db), gw, testutil.TestBlockchainKey, logger)

	w := testutil.SeedWithdraw(t, db, &domain.Withdraw{
		MemberID:   42,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("1"),
		State:      domain.WithdrawStateConfirming,
	})

	err := svc.Submit(ctx, w.ID)
	require.Error(t, err)
	var terr *domain.TransitionError
	assert.True(t, errors.As(err, &terr))
	// no broadcast if the transition is illegal
	assert.Empty(t, gw.calls)
}

func TestService_SubmitBroadcastFailureKeepsState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	gw := &fakeBroadcaster{err: errors.New("gateway down")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := withdraw.NewService(db, repository.NewWithdrawRepository(db), repository.NewTransactionRepository(db), gw, testutil.TestBlockchainKey, logger)

	w := testutil.SeedWithdraw(t, db, &domain.Withdraw{
		MemberID:   43,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("1"),
		State:      domain.WithdrawStatePrepared,
	})

	require.Error(t, svc.Submit(ctx, w.ID))
	assert.Equal(t, domain.WithdrawStatePrepared, testutil.GetWithdrawState(t, db, w.ID))
}

func TestService_Settle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	withdraws := repository.NewWithdrawRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := withdraw.NewService(db, withdraws, repository.NewTransactionRepository(db), &fakeBroadcaster{}, testutil.TestBlockchainKey, logger)

	w := testutil.SeedWithdraw(t, db, &domain.Withdraw{
		MemberID:   44,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("0.1"),
		State:      domain.WithdrawStateConfirming,
	})

	require.NoError(t, svc.Settle(ctx, w.ID))

	stored, err := withdraws.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawStateSucceeded, stored.State)
	assert.NotNil(t, stored.CompletedAt)

	// second settle hits the state guard
	err = svc.Settle(ctx, w.ID)
	require.Error(t, err)
	var terr *domain.TransitionError
	assert.True(t, errors.As(err, &terr))
}
