package types

import "errors"

// Domain errors raised by the escrow and money box services. Every failing
// operation returns one of these with zero partial mutation; pkg/response
// maps them onto HTTP statuses.
var (
	// Validation failures.
	ErrDuplicateID    = errors.New("order id already used")
	ErrSelfDealing    = errors.New("buyer and seller must differ")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrAmountMismatch = errors.New("declared amount does not match attached funds")
	ErrOverfill       = errors.New("payment exceeds remaining amount to fill")

	// State machine violations.
	ErrInvalidState = errors.New("operation not allowed in current order state")

	// Authorization failures.
	ErrUnauthorized      = errors.New("caller is not a party to this order")
	ErrInvalidUnlockCode = errors.New("unlock code does not match")

	// Lookup failures.
	ErrNotFound = errors.New("order not found")

	// Custody failures.
	ErrInsufficientFunds = errors.New("insufficient account balance")
)
