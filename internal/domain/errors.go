package domain

import "errors"

// Ledger
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUserNotFound      = errors.New("user not found")
	// ErrLockTimeout is retryable: the balance row stayed locked past the wait bound.
	ErrLockTimeout = errors.New("balance is busy, try again")
)

// Requests
var (
	ErrBelowMinimum      = errors.New("amount is below the configured minimum")
	ErrDuplicateProof    = errors.New("transaction proof already submitted")
	ErrInvalidTransition = errors.New("request is no longer pending")
	ErrRequestNotFound   = errors.New("request not found")
)

// Plans & accrual
var (
	ErrPlanNotFound = errors.New("plan not found")
	// ErrDuplicateAccrual is absorbed by the accrual engine and never surfaced.
	ErrDuplicateAccrual = errors.New("daily return already credited")
)

// Idempotency keys
var (
	ErrIdempotencyConflict = errors.New("request with this key is in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

var ErrInvalidSettings = errors.New("invalid platform settings")

// IsRetryable reports whether the operation may be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
