package service

import (
	"bytes"
	"context"
	"testing"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateOrderRequiresNewStatus(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	order := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	env.createDraftReceipt(t, supplier, order)

	newPrice := decimal.NewFromInt(200)
	_, err := env.orders.Update(context.Background(), "", order.ID.String(), UpdateOrderRequest{
		PartPrice: &newPrice,
		Version:   order.Version,
	})
	assert.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestUpdateOrderDetectsStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	order := env.createOrder(t, supplier, orderSpec{partPrice: 100})

	newPrice := decimal.NewFromInt(200)
	_, err := env.orders.Update(context.Background(), "", order.ID.String(), UpdateOrderRequest{
		PartPrice: &newPrice,
		Version:   order.Version,
	})
	require.NoError(t, err)

	// A second writer still holding the old version token loses.
	other := decimal.NewFromInt(300)
	_, err = env.orders.Update(context.Background(), "", order.ID.String(), UpdateOrderRequest{
		PartPrice: &other,
		Version:   order.Version,
	})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestDeleteOrderRequiresNewStatus(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Supplier")
	order := env.createOrder(t, supplier, orderSpec{partPrice: 100})
	env.createDraftReceipt(t, supplier, order)

	err := env.orders.Delete(context.Background(), "", order.ID.String())
	assert.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestExportCSVCarriesBOMAndLabels(t *testing.T) {
	env := newTestEnv(t)
	supplier := env.createSupplier(t, "Części Auto")
	env.createOrder(t, supplier, orderSpec{partPrice: 100, paymentType: model.PaymentTypeCardPaid})

	data, err := env.orders.ExportCSV(context.Background(), repository.OrderFilter{})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	assert.Contains(t, string(data), "оплачено")
	assert.Contains(t, string(data), "Części Auto")
}
