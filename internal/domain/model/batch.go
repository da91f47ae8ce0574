package model

import (
	"sort"
	"time"
)

// BatchState is derived from the states of the batch orders and never stored.
type BatchState string

const (
	BatchStateInProgress   BatchState = "IN_PROGRESS"
	BatchStateAllSucceeded BatchState = "ALL_SUCCEEDED"
	BatchStatePartial      BatchState = "PARTIAL"
	BatchStateAllFailed    BatchState = "ALL_FAILED"
)

// Batch groups the orders of one multi-asset request billed as a single reservation.
// Excluded holds the requested items that were never ordered because pricing
// failed; they are stored with the batch and never charged.
type Batch struct {
	ID        string
	UserID    int64
	TotalCost int64
	Orders    []Order
	Excluded  []ItemResult
	CreatedAt time.Time
}

// Items returns one result per requested item ordered by position.
func (b Batch) Items() []ItemResult {
	items := make([]ItemResult, 0, len(b.Orders)+len(b.Excluded))
	for _, o := range b.Orders {
		items = append(items, ResultFromOrder(o))
	}
	items = append(items, b.Excluded...)
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items
}

// DeriveBatchState aggregates order states. An empty set counts as failed.
func DeriveBatchState(orders []Order) BatchState {
	var resolved, failed int
	for _, o := range orders {
		switch o.State {
		case OrderStateResolved:
			resolved++
		case OrderStateFailed:
			failed++
		default:
			return BatchStateInProgress
		}
	}
	switch {
	case failed == 0 && resolved > 0:
		return BatchStateAllSucceeded
	case resolved == 0:
		return BatchStateAllFailed
	default:
		return BatchStatePartial
	}
}

// AssetRequest is one requested item as submitted by the caller.
type AssetRequest struct {
	Site      string
	AssetID   string
	SourceURL string
}

// ItemOutcome is the per-item result variant.
type ItemOutcome string

const (
	ItemSucceeded ItemOutcome = "SUCCEEDED"
	ItemNotFound  ItemOutcome = "NOT_FOUND"
	ItemFailed    ItemOutcome = "FAILED"
	ItemPending   ItemOutcome = "PENDING"
)

// ItemResult reports what happened to one requested item.
type ItemResult struct {
	Position    int
	Site        string
	AssetID     string
	Outcome     ItemOutcome
	OrderID     string
	Cost        int64
	DownloadURL string
	Reason      FailureReason
	Refunded    int64
}

// BatchResult is returned by batch submission.
type BatchResult struct {
	BatchID    string
	State      BatchState
	Items      []ItemResult
	TotalCost  int64
	Refunded   int64
	NewBalance int64
}

// BatchStatus is a point-in-time view of a stored batch.
type BatchStatus struct {
	BatchID   string
	State     BatchState
	TotalCost int64
	Items     []ItemResult
}

// ResultFromOrder converts an order into its per-item result.
func ResultFromOrder(o Order) ItemResult {
	item := ItemResult{
		Position: o.Position,
		Site:     o.Site,
		AssetID:  o.AssetID,
		OrderID:  o.ID,
		Cost:     o.Cost,
	}
	switch o.State {
	case OrderStateResolved:
		item.Outcome = ItemSucceeded
		item.DownloadURL = o.DownloadURL
	case OrderStateFailed:
		item.Outcome = ItemFailed
		item.Reason = o.FailureReason
		if o.Refunded {
			item.Refunded = o.Cost
		}
	default:
		item.Outcome = ItemPending
	}
	return item
}
