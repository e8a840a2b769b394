package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaidByCard(t *testing.T) {
	assert.True(t, (&Order{PaymentType: PaymentTypeCardPaid}).PaidByCard())

	// Only the exact label qualifies; anything else settles as cash.
	assert.False(t, (&Order{PaymentType: PaymentTypeCashOnDelivery}).PaidByCard())
	assert.False(t, (&Order{PaymentType: "Оплачено"}).PaidByCard())
	assert.False(t, (&Order{PaymentType: "оплачено "}).PaidByCard())
	assert.False(t, (&Order{PaymentType: ""}).PaidByCard())
}

func TestEditableTotal(t *testing.T) {
	order := Order{
		PartPrice:     decimal.NewFromInt(100),
		DeliveryCost:  decimal.NewFromInt(20),
		ReceiptFee:    decimal.NewFromInt(5),
		CodAmount:     decimal.NewFromInt(30),
		TransportCost: decimal.NewFromFloat(4.5),
		Weight:        decimal.NewFromInt(12), // not monetary, must not count
	}
	assert.True(t, order.EditableTotal().Equal(decimal.NewFromFloat(159.5)))
}
