package service

import (
	"context"
	"testing"

	"procurement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReceiptComputesTotals(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "AutoParts Sp. z o.o.")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100, deliveryCost: 20})
	o2 := env.createOrder(t, supplier, orderSpec{partPrice: 50, codAmount: 10, currency: model.CurrencyUSD})

	receipt := env.createDraftReceipt(t, supplier, o1, o2)

	assert.Equal(t, model.ReceiptStatusDraft, receipt.Status)
	assert.Equal(t, "150", receipt.PartsTotal)
	assert.Equal(t, "20", receipt.DeliveryTotal)
	assert.Equal(t, "10", receipt.CodTotal)
	// Currencies never mix: PLN and USD grand totals stay separate.
	assert.Equal(t, "120", receipt.TotalPLN)
	assert.Equal(t, "60", receipt.TotalUSD)
	assert.Equal(t, 2, receipt.MemberCount)

	// Members flip to IN_RECEIPT and remember where they came from.
	reloaded := env.reloadOrder(t, o1)
	assert.Equal(t, model.OrderStatusInReceipt, reloaded.Status)
	assert.Equal(t, model.OrderStatusNew, reloaded.PreviousStatus)
	assert.Equal(t, receipt.Number, reloaded.ReceiptGroup)
}

func TestCreateReceiptRejectsClaimedOrder(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	order := env.createOrder(t, supplier, orderSpec{partPrice: 10})
	env.createDraftReceipt(t, supplier, order)

	_, err := env.receipts.Create(context.Background(), "", CreateReceiptRequest{
		SupplierID: supplier.ID.String(),
		OrderIDs:   []string{order.ID.String()},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderClaimed)
}

func TestCreateReceiptRejectsForeignSupplierOrder(t *testing.T) {
	env := newTestEnv(t)
	supplierA := env.createSupplier(t, "A")
	supplierB := env.createSupplier(t, "B")
	order := env.createOrder(t, supplierB, orderSpec{partPrice: 10})

	_, err := env.receipts.Create(context.Background(), "", CreateReceiptRequest{
		SupplierID: supplierA.ID.String(),
		OrderIDs:   []string{order.ID.String()},
	})
	assert.ErrorIs(t, err, ErrSupplierMismatch)
}

func TestEditFieldRecordsChangeAndRecomputes(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100, deliveryCost: 20})
	receipt := env.createDraftReceipt(t, supplier, o1)
	require.Equal(t, "120", receipt.TotalPLN)

	updated, err := env.receipts.EditField(context.Background(), "", receipt.ID, o1.ID.String(), EditFieldRequest{
		Field: "part_price",
		Value: "150",
	})
	require.NoError(t, err)
	assert.Equal(t, "150", updated.PartsTotal)
	assert.Equal(t, "170", updated.TotalPLN)

	changes, err := env.receipts.FieldChanges(context.Background(), receipt.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "part_price", changes[0].Field)
	assert.Equal(t, "100", changes[0].OldValue)
	assert.Equal(t, "150", changes[0].NewValue)
}

func TestEditFieldBackToSnapshotValueAddsNoChange(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	receipt := env.createDraftReceipt(t, supplier, o1)

	_, err := env.receipts.EditField(context.Background(), "", receipt.ID, o1.ID.String(), EditFieldRequest{
		Field: "part_price", Value: "150",
	})
	require.NoError(t, err)

	// Editing back to the snapshotted value records no second deviation row,
	// only the edit away from it remains on record.
	_, err = env.receipts.EditField(context.Background(), "", receipt.ID, o1.ID.String(), EditFieldRequest{
		Field: "part_price", Value: "100",
	})
	require.NoError(t, err)

	changes, err := env.receipts.FieldChanges(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestEditFieldRejectsNonDraft(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	receipt := env.createDraftReceipt(t, supplier, o1)

	_, err := env.settlement.Approve(context.Background(), "", receipt.ID)
	require.NoError(t, err)

	_, err = env.receipts.EditField(context.Background(), "", receipt.ID, o1.ID.String(), EditFieldRequest{
		Field: "part_price", Value: "1",
	})
	assert.ErrorIs(t, err, ErrReceiptNotDraft)
}

func TestRemoveOrderRestoresStatusAndRecomputes(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	o2 := env.createOrder(t, supplier, orderSpec{partPrice: 40})
	receipt := env.createDraftReceipt(t, supplier, o1, o2)
	require.Equal(t, "140", receipt.TotalPLN)

	updated, archived, err := env.receipts.RemoveOrder(context.Background(), "", receipt.ID, o2.ID.String())
	require.NoError(t, err)
	assert.False(t, archived)
	assert.Equal(t, "100", updated.TotalPLN)
	assert.Equal(t, 1, updated.MemberCount)

	reloaded := env.reloadOrder(t, o2)
	assert.Equal(t, model.OrderStatusNew, reloaded.Status)
	assert.Empty(t, reloaded.ReceiptGroup)
}

func TestRemoveLastOrderArchivesReceipt(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	receipt := env.createDraftReceipt(t, supplier, o1)

	_, archived, err := env.receipts.RemoveOrder(context.Background(), "", receipt.ID, o1.ID.String())
	require.NoError(t, err)
	assert.True(t, archived)

	_, err = env.receipts.Get(context.Background(), receipt.ID)
	assert.Error(t, err)

	reloaded := env.reloadOrder(t, o1)
	assert.Equal(t, model.OrderStatusNew, reloaded.Status)
}

func TestArchiveRejectsNonEmptyReceipt(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	receipt := env.createDraftReceipt(t, supplier, o1)

	err := env.receipts.Archive(context.Background(), "", receipt.ID)
	assert.ErrorIs(t, err, ErrReceiptNotEmpty)
}

func TestAddOrderRejectsDuplicateMember(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	o1 := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	receipt := env.createDraftReceipt(t, supplier, o1)

	_, err := env.receipts.AddOrder(context.Background(), "", receipt.ID, o1.ID.String())
	assert.ErrorIs(t, err, ErrOrderClaimed)
}
