package service

import "errors"

// Domain sentinel errors. Handlers map these onto HTTP status codes; every
// other error surfaces as a wrapped internal failure.
var (
	ErrInvalidTransition = errors.New("illegal receipt status transition")
	ErrReceiptNotDraft   = errors.New("receipt is not in draft state")
	ErrReceiptNotEmpty   = errors.New("receipt still has member orders")
	ErrNoMemberOrders    = errors.New("receipt has no member orders")
	ErrOrderClaimed      = errors.New("order already belongs to an open receipt")
	ErrOrderNotMember    = errors.New("order is not a member of this receipt")
	ErrUnknownField      = errors.New("unknown editable field")
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrSupplierMismatch  = errors.New("order belongs to a different supplier")
	ErrOrderNotEditable  = errors.New("order is locked by a receipt")

	ErrInviteNotFound     = errors.New("invite code not found")
	ErrInviteExpired      = errors.New("invite code has expired")
	ErrInviteUsed         = errors.New("invite code was already used")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is not active; contact an administrator")
)
