package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		allowed  bool
	}{
		{ReceiptStatusDraft, ReceiptStatusApproved, true},
		{ReceiptStatusApproved, ReceiptStatusSentForSettlement, true},
		{ReceiptStatusSentForSettlement, ReceiptStatusSettled, true},
		{ReceiptStatusSentForSettlement, ReceiptStatusApproved, true},
		{ReceiptStatusSettled, ReceiptStatusSentForSettlement, true},

		{ReceiptStatusDraft, ReceiptStatusSentForSettlement, false},
		{ReceiptStatusDraft, ReceiptStatusSettled, false},
		{ReceiptStatusApproved, ReceiptStatusDraft, false},
		{ReceiptStatusApproved, ReceiptStatusSettled, false},
		{ReceiptStatusSettled, ReceiptStatusApproved, false},
		{ReceiptStatusSettled, ReceiptStatusDraft, false},
		{ReceiptStatusDraft, ReceiptStatusDraft, false},
		{"UNKNOWN", ReceiptStatusApproved, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsReversal(t *testing.T) {
	assert.True(t, IsReversal(ReceiptStatusSettled, ReceiptStatusSentForSettlement))
	assert.True(t, IsReversal(ReceiptStatusSentForSettlement, ReceiptStatusApproved))

	assert.False(t, IsReversal(ReceiptStatusDraft, ReceiptStatusApproved))
	assert.False(t, IsReversal(ReceiptStatusApproved, ReceiptStatusSentForSettlement))
	assert.False(t, IsReversal(ReceiptStatusSentForSettlement, ReceiptStatusSettled))
}

func TestIsOpenReceiptStatus(t *testing.T) {
	assert.True(t, IsOpenReceiptStatus(ReceiptStatusDraft))
	assert.True(t, IsOpenReceiptStatus(ReceiptStatusApproved))
	assert.True(t, IsOpenReceiptStatus(ReceiptStatusSentForSettlement))
	assert.False(t, IsOpenReceiptStatus(ReceiptStatusSettled))
}
