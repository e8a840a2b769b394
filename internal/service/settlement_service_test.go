package service

import (
	"context"
	"testing"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveRecordsAcceptedOrders(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100, deliveryCost: 20})
	receipt := env.createDraftReceipt(t, supplier, o1)

	approved, err := env.settlement.Approve(context.Background(), "", receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusApproved, approved.Status)

	reloaded := env.reloadOrder(t, o1)
	assert.Equal(t, model.OrderStatusAccepted, reloaded.Status)

	var accepted []model.AcceptedOrder
	require.NoError(t, env.db.Find(&accepted).Error)
	require.Len(t, accepted, 1)
	assert.True(t, accepted[0].Amount.Equal(decimal.NewFromInt(120)))
}

func TestApproveRejectsEmptyReceiptAndBadTransitions(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	receipt := env.createDraftReceipt(t, supplier, o1)

	// Draft cannot jump straight to settled or sent.
	_, err := env.settlement.Settle(context.Background(), "", receipt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.settlement.SendForSettlement(context.Background(), "", receipt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.settlement.Approve(context.Background(), "", receipt.ID)
	require.NoError(t, err)

	// Approving twice is illegal.
	_, err = env.settlement.Approve(context.Background(), "", receipt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSendForSettlementPostsLedgerAndBalances(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	cash := env.createOrder(t, supplier, orderSpec{partPrice: 100, codAmount: 30})
	card := env.createOrder(t, supplier, orderSpec{partPrice: 50, paymentType: model.PaymentTypeCardPaid})
	receipt := env.createDraftReceipt(t, supplier, cash, card)

	_, err := env.settlement.Approve(context.Background(), "", receipt.ID)
	require.NoError(t, err)
	sent, err := env.settlement.SendForSettlement(context.Background(), "", receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusSentForSettlement, sent.Status)

	// The cash member's fields land as one charge per cost category, the
	// card member's whole value as a card ledger charge.
	rID := uuid.MustParse(receipt.ID)
	txs, err := env.ledgerRepo.FindByReceiptStage(context.Background(), rID, model.StageSendForSettlement)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	byBalanceType := map[string]decimal.Decimal{}
	for _, tx := range txs {
		assert.Equal(t, model.TxTypeCharge, tx.Type)
		byBalanceType[tx.BalanceType] = tx.Amount
	}
	assert.True(t, byBalanceType[model.BalanceParts].Equal(decimal.NewFromInt(100)))
	assert.True(t, byBalanceType[model.BalanceCod].Equal(decimal.NewFromInt(30)))

	cardTxs, err := env.ledgerRepo.FindCardByReceiptStage(context.Background(), rID, model.StageSendForSettlement)
	require.NoError(t, err)
	require.Len(t, cardTxs, 1)
	assert.True(t, cardTxs[0].Amount.Equal(decimal.NewFromInt(50)))

	// Running balances moved by exactly the posted amounts.
	balances, err := env.ledgerRepo.ListBalances(context.Background(), supplier.ID)
	require.NoError(t, err)
	byType := map[string]decimal.Decimal{}
	for _, b := range balances {
		byType[b.BalanceType] = b.Amount
	}
	assert.True(t, byType[model.BalanceParts].Equal(decimal.NewFromInt(100)))
	assert.True(t, byType[model.BalanceCod].Equal(decimal.NewFromInt(30)))
	assert.True(t, byType[model.BalanceCard].Equal(decimal.NewFromInt(50)))

	// Members fall to UNDER_REVIEW while settlement is pending.
	assert.Equal(t, model.OrderStatusUnderReview, env.reloadOrder(t, cash).Status)
}

func TestSettleStampsSettlerAndPostsCardCharge(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	card := env.createOrder(t, supplier, orderSpec{partPrice: 80, paymentType: model.PaymentTypeCardPaid})
	receipt := env.createDraftReceipt(t, supplier, card)

	actor := uuid.New()
	_, err := env.settlement.Approve(context.Background(), actor.String(), receipt.ID)
	require.NoError(t, err)
	_, err = env.settlement.SendForSettlement(context.Background(), actor.String(), receipt.ID)
	require.NoError(t, err)

	settled, err := env.settlement.Settle(context.Background(), actor.String(), receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusSettled, settled.Status)
	require.NotNil(t, settled.SettledBy)
	assert.Equal(t, actor.String(), *settled.SettledBy)
	assert.NotNil(t, settled.SettledAt)

	txs, err := env.ledgerRepo.FindByReceiptStage(context.Background(), uuid.MustParse(receipt.ID), model.StageSettle)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.BalanceCard, txs[0].BalanceType)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(80)))
}

func TestReverseSettleCompensatesLedger(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	card := env.createOrder(t, supplier, orderSpec{partPrice: 80, paymentType: model.PaymentTypeCardPaid})
	receipt := env.createDraftReceipt(t, supplier, card)

	ctx := context.Background()
	_, err := env.settlement.Approve(ctx, "", receipt.ID)
	require.NoError(t, err)
	_, err = env.settlement.SendForSettlement(ctx, "", receipt.ID)
	require.NoError(t, err)
	_, err = env.settlement.Settle(ctx, "", receipt.ID)
	require.NoError(t, err)

	reversed, err := env.settlement.Reverse(ctx, "", receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusSentForSettlement, reversed.Status)
	assert.Nil(t, reversed.SettledBy)
	assert.Nil(t, reversed.SettledAt)

	// Original settle entry is flagged, its compensating twin posted, and no
	// live settle-stage entries remain.
	var all []model.Transaction
	require.NoError(t, env.db.Where("stage = ?", model.StageSettle).Find(&all).Error)
	require.Len(t, all, 2)
	live, err := env.ledgerRepo.FindByReceiptStage(ctx, uuid.MustParse(receipt.ID), model.StageSettle)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestReverseSendRestoresOrdersAndBalances(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	cash := env.createOrder(t, supplier, orderSpec{partPrice: 100, codAmount: 30})
	receipt := env.createDraftReceipt(t, supplier, cash)

	ctx := context.Background()
	_, err := env.settlement.Approve(ctx, "", receipt.ID)
	require.NoError(t, err)
	_, err = env.settlement.SendForSettlement(ctx, "", receipt.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusUnderReview, env.reloadOrder(t, cash).Status)

	reversed, err := env.settlement.Reverse(ctx, "", receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusApproved, reversed.Status)

	// Member returns to ACCEPTED and the running balances net to zero.
	assert.Equal(t, model.OrderStatusAccepted, env.reloadOrder(t, cash).Status)

	balances, err := env.ledgerRepo.ListBalances(ctx, supplier.ID)
	require.NoError(t, err)
	for _, b := range balances {
		assert.True(t, b.Amount.IsZero(), "balance %s/%s should net to zero, got %s", b.BalanceType, b.Currency, b.Amount)
	}

	// Reversing a draft-adjacent state has nowhere further back to go.
	_, err = env.settlement.Reverse(ctx, "", receipt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSendForSettlementSplitsCurrencies(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	pln := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	usd := env.createOrder(t, supplier, orderSpec{partPrice: 40, currency: model.CurrencyUSD})
	receipt := env.createDraftReceipt(t, supplier, pln, usd)

	ctx := context.Background()
	_, err := env.settlement.Approve(ctx, "", receipt.ID)
	require.NoError(t, err)
	_, err = env.settlement.SendForSettlement(ctx, "", receipt.ID)
	require.NoError(t, err)

	// One cash charge per currency; amounts never combined.
	txs, err := env.ledgerRepo.FindByReceiptStage(ctx, uuid.MustParse(receipt.ID), model.StageSendForSettlement)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	byCurrency := map[string]decimal.Decimal{}
	for _, tx := range txs {
		byCurrency[tx.Currency] = tx.Amount
	}
	assert.True(t, byCurrency[model.CurrencyPLN].Equal(decimal.NewFromInt(100)))
	assert.True(t, byCurrency[model.CurrencyUSD].Equal(decimal.NewFromInt(40)))
}

func TestReceiptLedgerReconcilesWithRunningBalances(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	cash := env.createOrder(t, supplier, orderSpec{partPrice: 100, deliveryCost: 20, codAmount: 30})
	card := env.createOrder(t, supplier, orderSpec{partPrice: 50, paymentType: model.PaymentTypeCardPaid})
	receipt := env.createDraftReceipt(t, supplier, cash, card)

	ctx := context.Background()
	_, err := env.settlement.Approve(ctx, "", receipt.ID)
	require.NoError(t, err)
	_, err = env.settlement.SendForSettlement(ctx, "", receipt.ID)
	require.NoError(t, err)

	assertReconciled := func() {
		computed, balErr := env.ledger.Balance(ctx, supplier.ID.String(), model.CurrencyPLN)
		require.NoError(t, balErr)
		rows, listErr := env.ledgerRepo.ListBalances(ctx, supplier.ID)
		require.NoError(t, listErr)
		byType := map[string]decimal.Decimal{}
		for _, b := range rows {
			byType[b.BalanceType] = b.Amount
		}
		for _, balanceType := range []string{
			model.BalanceParts, model.BalanceDelivery, model.BalanceReceiptFee,
			model.BalanceCod, model.BalanceTransport, model.BalanceCard,
		} {
			assert.True(t, computed.Balances[balanceType].Equal(byType[balanceType]),
				"computed %s balance %s does not match running row %s",
				balanceType, computed.Balances[balanceType], byType[balanceType])
		}
	}

	// After the send the ledger sums and the running rows agree per category.
	assertReconciled()

	// After the reversal both sides net to zero and still agree.
	_, err = env.settlement.Reverse(ctx, "", receipt.ID)
	require.NoError(t, err)
	assertReconciled()

	computed, err := env.ledger.Balance(ctx, supplier.ID.String(), model.CurrencyPLN)
	require.NoError(t, err)
	for balanceType, amount := range computed.Balances {
		assert.True(t, amount.IsZero(), "%s balance should net to zero, got %s", balanceType, amount)
	}
}

func TestTransitionWritesAuditEntries(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 10})
	receipt := env.createDraftReceipt(t, supplier, o1)

	ctx := context.Background()
	_, err := env.settlement.Approve(ctx, "", receipt.ID)
	require.NoError(t, err)

	entries, _, err := env.auditRepo.List(ctx, repository.AuditFilter{
		Action: model.ActionApproveReceipt, Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, receipt.ID, entries[0].EntityID)
}
