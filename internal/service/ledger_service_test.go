package service

import (
	"context"
	"testing"

	"procurement/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostEntryRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := env.ledger.PostEntry(context.Background(), "", PostEntryRequest{
			SupplierID:  supplier.ID.String(),
			Type:        model.TxTypeCharge,
			BalanceType: model.BalanceParts,
			Amount:      amount,
			Currency:    model.CurrencyPLN,
		})
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	}
}

func TestPostEntryMovesRunningBalance(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	ctx := context.Background()

	_, err := env.ledger.PostEntry(ctx, "", PostEntryRequest{
		SupplierID:  supplier.ID.String(),
		Type:        model.TxTypeCharge,
		BalanceType: model.BalanceParts,
		Amount:      decimal.NewFromInt(100),
		Currency:    model.CurrencyPLN,
	})
	require.NoError(t, err)

	_, err = env.ledger.PostEntry(ctx, "", PostEntryRequest{
		SupplierID:  supplier.ID.String(),
		Type:        model.TxTypePayment,
		BalanceType: model.BalanceParts,
		Amount:      decimal.NewFromInt(40),
		Currency:    model.CurrencyPLN,
	})
	require.NoError(t, err)

	balances, err := env.ledgerRepo.ListBalances(ctx, supplier.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Amount.Equal(decimal.NewFromInt(60)))

	// The computed balance from the ledger itself agrees with the running row.
	computed, err := env.ledger.Balance(ctx, supplier.ID.String(), model.CurrencyPLN)
	require.NoError(t, err)
	assert.True(t, computed.Balances[model.BalanceParts].Equal(decimal.NewFromInt(60)))
}

func TestReverseEntryCompensatesAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	ctx := context.Background()

	posted, err := env.ledger.PostEntry(ctx, "", PostEntryRequest{
		SupplierID:  supplier.ID.String(),
		Type:        model.TxTypeCharge,
		BalanceType: model.BalanceDelivery,
		Amount:      decimal.NewFromInt(25),
		Currency:    model.CurrencyPLN,
	})
	require.NoError(t, err)

	reversal, err := env.ledger.ReverseEntry(ctx, "", posted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxTypePayment, reversal.Type)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, posted.ID, *reversal.ReversalOf)

	balances, err := env.ledgerRepo.ListBalances(ctx, supplier.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Amount.IsZero())

	// Reversing the same entry again is a warning no-op, never a double post.
	_, err = env.ledger.ReverseEntry(ctx, "", posted.ID)
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&model.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
