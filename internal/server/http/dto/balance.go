package dto

import "time"

// BalanceResponse represents current points of the user.
type BalanceResponse struct {
	Points int64 `json:"points"`
}

// TransactionResponse describes one ledger entry.
type TransactionResponse struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	Reference    string    `json:"reference,omitempty"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// AdjustRequest describes an operator balance adjustment.
type AdjustRequest struct {
	UserID    int64  `json:"user_id"`
	Delta     int64  `json:"delta"`
	Reference string `json:"reference"`
}

// AdjustResponse reports the balance after adjustment.
type AdjustResponse struct {
	UserID  int64 `json:"user_id"`
	Points  int64 `json:"points"`
	Version int64 `json:"version"`
}
