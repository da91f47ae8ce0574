package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnauthenticated    = errors.New("unauthenticated")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStorageConflict     = errors.New("storage conflict")
	ErrAlreadyRefunded     = errors.New("order already refunded")

	ErrEmptyBatch    = errors.New("batch has no items")
	ErrBatchTooLarge = errors.New("batch exceeds item limit")
	ErrInvalidItem   = errors.New("invalid batch item")
	ErrNoValidItems  = errors.New("no valid items in batch")
	ErrRateLimited   = errors.New("rate limited")

	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrOrderRejected       = errors.New("order rejected")
	ErrNotReady            = errors.New("download not ready")
	ErrTimeout             = errors.New("order timed out")
)

// InsufficientBalanceError carries the shortfall of a rejected debit.
type InsufficientBalanceError struct {
	UserID    int64
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %d: required %d, available %d", e.UserID, e.Required, e.Available)
}

// Shortfall returns how many points are missing.
func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Required - e.Available
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// RateLimitedError tells the caller when to retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
