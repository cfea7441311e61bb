package deposit_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/ledger"
	"github.com/opencustody/recon/internal/repository"
	"github.com/opencustody/recon/internal/service/deposit"
	"github.com/opencustody/recon/internal/testutil"
)

var (
	btcCoin = &domain.Currency{ID: "btc", BlockchainKey: testutil.TestBlockchainKey, Type: "coin"}
	usdFiat = &domain.Currency{ID: "usd", BlockchainKey: testutil.TestBlockchainKey, Type: "fiat"}
)

func setupMachine(t *testing.T, policy deposit.Policy) (*sql.DB, *deposit.Machine, *repository.DepositRepository) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)

	deposits := repository.NewDepositRepository(db)
	book := ledger.New(repository.NewAccountRepository(db), repository.NewLedgerEntryRepository(db))
	return db, deposit.NewMachine(deposits, book, policy), deposits
}

func runTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	require.NoError(t, tx.Commit())
	return nil
}

func TestMachine_AcceptUnlocked(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   11,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("1.5"),
		Fee:        decimal.RequireFromString("0.01"),
		State:      domain.DepositStateSubmitted,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		return machine.Accept(ctx, tx, dep, btcCoin)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DepositStateAccepted, dep.State)
	assert.False(t, dep.IsLocked)
	assert.Equal(t, domain.DepositStateAccepted, testutil.GetDepositState(t, db, dep.ID))

	asset := testutil.GetAccountBalance(t, db, domain.PlatformMemberID, "btc", domain.AccountKindAsset)
	revenue := testutil.GetAccountBalance(t, db, 11, "btc", domain.AccountKindRevenue)
	main := testutil.GetAccountBalance(t, db, 11, "btc", domain.AccountKindLiabilityMain)
	locked := testutil.GetAccountBalance(t, db, 11, "btc", domain.AccountKindLiabilityLocked)

	assert.True(t, asset.Equal(decimal.RequireFromString("1.51")), "asset %s", asset)
	assert.True(t, revenue.Equal(decimal.RequireFromString("0.01")), "revenue %s", revenue)
	assert.True(t, main.Equal(decimal.RequireFromString("1.5")), "main %s", main)
	assert.True(t, locked.IsZero())

	assert.Equal(t, 3, testutil.CountLedgerEntries(t, db, domain.DepositReference(dep.TID)))
}

func TestMachine_AcceptLockedPolicy(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{FundsLocked: true})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   12,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("2"),
		State:      domain.DepositStateInvoiced,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		return machine.Accept(ctx, tx, dep, btcCoin)
	})
	require.NoError(t, err)

	assert.True(t, dep.IsLocked)
	locked := testutil.GetAccountBalance(t, db, 12, "btc", domain.AccountKindLiabilityLocked)
	main := testutil.GetAccountBalance(t, db, 12, "btc", domain.AccountKindLiabilityMain)
	assert.True(t, locked.Equal(decimal.RequireFromString("2")))
	assert.True(t, main.IsZero())

	// zero fee means no revenue posting
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, domain.DepositReference(dep.TID)))
}

func TestMachine_AcceptFiatNeverLocks(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{FundsLocked: true, ManualApproval: true})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   13,
		CurrencyID: "usd",
		Amount:     decimal.RequireFromString("100"),
		State:      domain.DepositStateSubmitted,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		return machine.Accept(ctx, tx, dep, usdFiat)
	})
	require.NoError(t, err)

	assert.False(t, dep.IsLocked)
	main := testutil.GetAccountBalance(t, db, 13, "usd", domain.AccountKindLiabilityMain)
	assert.True(t, main.Equal(decimal.RequireFromString("100")))
}

func TestMachine_AcceptGuardsSourceState(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   14,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("1"),
		State:      domain.DepositStateDispatched,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		return machine.Accept(ctx, tx, dep, btcCoin)
	})
	require.Error(t, err)
	var terr *domain.TransitionError
	assert.True(t, errors.As(err, &terr))

	// nothing posted, nothing moved
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, db, domain.DepositReference(dep.TID)))
	assert.Equal(t, domain.DepositStateDispatched, testutil.GetDepositState(t, db, dep.ID))
}

func TestMachine_DispatchReleasesLockedFunds(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{FundsLocked: true})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   15,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("0.75"),
		State:      domain.DepositStateSubmitted,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		if err := machine.Accept(ctx, tx, dep, btcCoin); err != nil {
			return err
		}
		return machine.Dispatch(ctx, tx, dep)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DepositStateDispatched, dep.State)
	assert.False(t, dep.IsLocked)
	require.NotNil(t, dep.CompletedAt)

	locked := testutil.GetAccountBalance(t, db, 15, "btc", domain.AccountKindLiabilityLocked)
	main := testutil.GetAccountBalance(t, db, 15, "btc", domain.AccountKindLiabilityMain)
	assert.True(t, locked.IsZero(), "locked %s", locked)
	assert.True(t, main.Equal(decimal.RequireFromString("0.75")), "main %s", main)

	// accept credit pair plus the locked release transfer
	assert.Equal(t, 4, testutil.CountLedgerEntries(t, db, domain.DepositReference(dep.TID)))
}

func TestMachine_DispatchUnlockedPostsNothing(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   16,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("1"),
		State:      domain.DepositStateSubmitted,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		if err := machine.Accept(ctx, tx, dep, btcCoin); err != nil {
			return err
		}
		return machine.Dispatch(ctx, tx, dep)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, domain.DepositReference(dep.TID)))
	main := testutil.GetAccountBalance(t, db, 16, "btc", domain.AccountKindLiabilityMain)
	assert.True(t, main.Equal(decimal.RequireFromString("1")))
}

func TestMachine_RollbackReversesDispatch(t *testing.T) {
	db, machine, deposits := setupMachine(t, deposit.Policy{})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   17,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("0.4"),
		State:      domain.DepositStateSubmitted,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		if err := machine.Accept(ctx, tx, dep, btcCoin); err != nil {
			return err
		}
		return machine.Dispatch(ctx, tx, dep)
	})
	require.NoError(t, err)

	err = runTx(t, db, func(tx *sql.Tx) error {
		return machine.Rollback(ctx, tx, dep)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DepositStateRolledBack, dep.State)
	assert.Nil(t, dep.CompletedAt)

	main := testutil.GetAccountBalance(t, db, 17, "btc", domain.AccountKindLiabilityMain)
	assert.True(t, main.IsZero(), "main %s", main)

	stored, err := deposits.GetByID(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStateRolledBack, stored.State)
	assert.Nil(t, stored.CompletedAt)
}

func TestMachine_SkipAndReaccept(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   18,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("0.2"),
		State:      domain.DepositStateSubmitted,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		return machine.Skip(ctx, tx, dep)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStateSkipped, dep.State)

	err = runTx(t, db, func(tx *sql.Tx) error {
		return machine.Accept(ctx, tx, dep, btcCoin)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStateAccepted, dep.State)
}

func TestMachine_RefundRejectsFiat(t *testing.T) {
	db, machine, _ := setupMachine(t, deposit.Policy{})
	ctx := context.Background()

	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   19,
		CurrencyID: "usd",
		Amount:     decimal.RequireFromString("50"),
		State:      domain.DepositStateSkipped,
	})

	err := runTx(t, db, func(tx *sql.Tx) error {
		return machine.Refund(ctx, tx, dep, usdFiat)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnexpectedState))
	assert.Equal(t, domain.DepositStateSkipped, testutil.GetDepositState(t, db, dep.ID))
}
