package model

import "time"

// OrderState describes the fulfillment lifecycle of a single asset.
type OrderState string

const (
	OrderStateCreated   OrderState = "CREATED"
	OrderStateSubmitted OrderState = "SUBMITTED"
	OrderStatePolling   OrderState = "POLLING"
	OrderStateReady     OrderState = "READY"
	OrderStateResolved  OrderState = "RESOLVED"
	OrderStateFailed    OrderState = "FAILED"
)

// Terminal reports whether no transition leaves the state.
func (s OrderState) Terminal() bool {
	return s == OrderStateResolved || s == OrderStateFailed
}

// FailureReason is a stable code recorded on failed orders and items.
type FailureReason string

const (
	FailureNone                FailureReason = ""
	FailureAssetNotFound       FailureReason = "ASSET_NOT_FOUND"
	FailureOrderRejected       FailureReason = "ORDER_REJECTED"
	FailureProviderUnavailable FailureReason = "PROVIDER_UNAVAILABLE"
	FailureProviderFailed      FailureReason = "PROVIDER_FAILED"
	FailureTimeout             FailureReason = "TIMEOUT"
	FailureNotReady            FailureReason = "NOT_READY"
	FailureInternal            FailureReason = "INTERNAL"
)

// Order is one requested asset within a batch.
type Order struct {
	ID            string
	UserID        int64
	BatchID       string
	Position      int
	Site          string
	AssetID       string
	SourceURL     string
	Cost          int64
	State         OrderState
	TaskID        string
	DownloadURL   string
	FailureReason FailureReason
	Attempts      int
	PollDeadline  time.Time
	Refunded      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
