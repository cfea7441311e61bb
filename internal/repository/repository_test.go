package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencustody/recon/internal/domain"
	"github.com/opencustody/recon/internal/repository"
	"github.com/opencustody/recon/internal/testutil"
)

func TestDepositRepository_CreateAndLookup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	repo := repository.NewDepositRepository(db)
	now := time.Now().UTC()
	invoiceID := "inv-lookup"
	dep := &domain.Deposit{
		TID:           domain.NewTID(),
		MemberID:      61,
		CurrencyID:    "btc",
		BlockchainKey: testutil.TestBlockchainKey,
		Amount:        decimal.RequireFromString("0.33"),
		Fee:           decimal.RequireFromString("0.003"),
		State:         domain.DepositStateSubmitted,
		InvoiceID:     &invoiceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.Create(ctx, dep))
	require.NotZero(t, dep.ID)

	byTID, err := repo.GetByTID(ctx, dep.TID)
	require.NoError(t, err)
	assert.Equal(t, dep.ID, byTID.ID)
	assert.True(t, byTID.Amount.Equal(dep.Amount))
	assert.True(t, byTID.Fee.Equal(dep.Fee))

	// tid lookup is case-insensitive
	lowered, err := repo.GetByTID(ctx, "tid"+dep.TID[3:])
	require.NoError(t, err)
	assert.Equal(t, dep.ID, lowered.ID)

	byInvoice, err := repo.GetByCurrencyAndInvoice(ctx, "btc", invoiceID)
	require.NoError(t, err)
	assert.Equal(t, dep.ID, byInvoice.ID)

	_, err = repo.GetByCurrencyAndInvoice(ctx, "eth", invoiceID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDepositRepository_AppendErrorAccumulates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	repo := repository.NewDepositRepository(db)
	dep := testutil.SeedDeposit(t, db, &domain.Deposit{
		MemberID:   62,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("1"),
	})

	require.NoError(t, repo.AppendError(ctx, dep.ID, domain.DepositError{Class: "TransitionError", Message: "first"}))
	require.NoError(t, repo.AppendError(ctx, dep.ID, domain.DepositError{Class: "ProcessingError", Message: "second"}))

	stored, err := repo.GetByID(ctx, dep.ID)
	require.NoError(t, err)
	require.Len(t, stored.Errors, 2)
	assert.Equal(t, "first", stored.Errors[0].Message)
	assert.Equal(t, "TransitionError", stored.Errors[0].Class)
	assert.Equal(t, "second", stored.Errors[1].Message)
}

func TestTransactionRepository_AdvanceStatusOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	repo := repository.NewTransactionRepository(db)
	now := time.Now().UTC()
	tx := &domain.Transaction{
		CurrencyID:    "btc",
		BlockchainKey: testutil.TestBlockchainKey,
		Reference:     domain.WithdrawReference("TID0102030405"),
		TxID:          "txid-guard",
		ToAddress:     "bc1qdest",
		Amount:        decimal.RequireFromString("0.5"),
		Status:        domain.TransactionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.Create(ctx, tx))

	block := int64(812345)
	require.NoError(t, repo.AdvanceStatus(ctx, tx.ID, domain.TransactionStatusSucceeded, &block))

	stored, err := repo.GetByTxID(ctx, "btc", "txid-guard")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSucceeded, stored.Status)
	require.NotNil(t, stored.BlockNumber)
	assert.Equal(t, block, *stored.BlockNumber)

	// settled chain facts are immutable
	err = repo.AdvanceStatus(ctx, tx.ID, domain.TransactionStatusFailed, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransactionSettled))
	stored, err = repo.GetByTxID(ctx, "btc", "txid-guard")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSucceeded, stored.Status)
}

func TestTransactionRepository_AdvanceStatusMissingRow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	repo := repository.NewTransactionRepository(db)

	err := repo.AdvanceStatus(ctx, 424242, domain.TransactionStatusSucceeded, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, errors.Is(err, domain.ErrTransactionSettled))
}

func TestBeneficiaryRepository_FindOrCreateDeduplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	repo := repository.NewBeneficiaryRepository(db)
	data := []byte(`{"address": "bc1qsource"}`)

	require.NoError(t, repo.FindOrCreate(ctx, 63, "btc", "gateway:bc1qsource", data))
	require.NoError(t, repo.FindOrCreate(ctx, 63, "btc", "gateway:bc1qsource", data))
	require.NoError(t, repo.FindOrCreate(ctx, 63, "eth", "gateway:bc1qsource", data))

	list, err := repo.GetByMember(ctx, 63)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.BeneficiaryStateActive, list[0].State)
	assert.JSONEq(t, `{"address": "bc1qsource"}`, string(list[0].Data))
}

func TestCurrencyRepository_ListByBlockchain(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedCurrencies(t, db)
	ctx := context.Background()

	repo := repository.NewCurrencyRepository(db)

	list, err := repo.ListByBlockchain(ctx, testutil.TestBlockchainKey)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "btc", list[0].ID)

	cur, err := repo.GetByID(ctx, "btc")
	require.NoError(t, err)
	assert.True(t, cur.IsCoin())

	fiat, err := repo.GetByID(ctx, "usd")
	require.NoError(t, err)
	assert.False(t, fiat.IsCoin())

	_, err = repo.GetByID(ctx, "doge")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
