package model

import "time"

// Balance is the single ledger row of a user. Version grows by one on every mutation.
type Balance struct {
	UserID    int64
	Points    int64
	Version   int64
	UpdatedAt time.Time
}

// TransactionReason classifies ledger mutations in the audit trail.
type TransactionReason string

const (
	ReasonPurchase      TransactionReason = "PURCHASE"
	ReasonDebitForOrder TransactionReason = "DEBIT_FOR_ORDER"
	ReasonRefund        TransactionReason = "REFUND"
	ReasonAdjustment    TransactionReason = "ADJUSTMENT"
	ReasonSignupBonus   TransactionReason = "SIGNUP_BONUS"
)

// Transaction is an immutable audit entry written once per ledger mutation.
type Transaction struct {
	ID           string
	UserID       int64
	Amount       int64
	Reason       TransactionReason
	Reference    string
	BalanceAfter int64
	CreatedAt    time.Time
}

// BalanceChange describes one conditional ledger write.
//
// The write only succeeds when the stored version still equals ExpectedVersion.
// Batch, when set, is inserted together with its orders in the same storage
// transaction. RefundOrderID, when set, flips the order's refunded flag in the
// same transaction and fails if it was already set.
type BalanceChange struct {
	TransactionID   string
	UserID          int64
	ExpectedVersion int64
	Amount          int64
	Reason          TransactionReason
	Reference       string
	Batch           *Batch
	RefundOrderID   string
}
