package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

const orderColumns = `id, batch_id, user_id, position, site, asset_id, source_url, cost, state,
                      task_id, download_url, failure_reason, attempts, poll_deadline, refunded, created_at, updated_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o        model.Order
		state    string
		reason   string
		deadline *time.Time
	)
	err := row.Scan(&o.ID, &o.BatchID, &o.UserID, &o.Position, &o.Site, &o.AssetID, &o.SourceURL, &o.Cost, &state,
		&o.TaskID, &o.DownloadURL, &reason, &o.Attempts, &deadline, &o.Refunded, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.State = model.OrderState(state)
	o.FailureReason = model.FailureReason(reason)
	if deadline != nil {
		o.PollDeadline = *deadline
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- OrderRepository implementation ---

func (r *orderRepository) Update(ctx context.Context, order *model.Order) error {
	const query = `UPDATE orders SET state=$1, task_id=$2, download_url=$3, failure_reason=$4, attempts=$5,
                   poll_deadline=$6, updated_at=NOW()
                   WHERE id=$7`
	var deadline *time.Time
	if !order.PollDeadline.IsZero() {
		d := order.PollDeadline
		deadline = &d
	}
	tag, err := r.storage.pool.Exec(ctx, query, string(order.State), order.TaskID, order.DownloadURL,
		string(order.FailureReason), order.Attempts, deadline, order.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *orderRepository) ListByBatch(ctx context.Context, batchID string) ([]model.Order, error) {
	rows, err := r.storage.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE batch_id=$1 ORDER BY position`, batchID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) ClaimStale(ctx context.Context, staleAfter time.Duration, limit int) ([]model.Order, error) {
	const selectQuery = `SELECT ` + orderColumns + `
                         FROM orders
                         WHERE (state NOT IN ('RESOLVED', 'FAILED') OR (state = 'FAILED' AND refunded = FALSE))
                           AND updated_at < $1
                         ORDER BY updated_at
                         LIMIT $2
                         FOR UPDATE SKIP LOCKED`
	const touchQuery = `UPDATE orders SET updated_at=NOW() WHERE id=$1`

	cutoff := time.Now().Add(-staleAfter)
	var orders []model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectQuery, cutoff, limit)
		if err != nil {
			return err
		}
		claimed, err := collectOrders(rows)
		if err != nil {
			return err
		}
		for _, o := range claimed {
			if _, err := tx.Exec(ctx, touchQuery, o.ID); err != nil {
				return err
			}
		}
		orders = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// --- BatchRepository implementation ---

func (r *batchRepository) Get(ctx context.Context, batchID string) (*model.Batch, error) {
	const query = `SELECT id, user_id, total_cost, excluded, created_at FROM batches WHERE id=$1`
	var (
		b        model.Batch
		excluded []byte
	)
	err := r.storage.pool.QueryRow(ctx, query, batchID).Scan(&b.ID, &b.UserID, &b.TotalCost, &excluded, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	if b.Excluded, err = decodeExcluded(excluded); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	orders, err := (&orderRepository{storage: r.storage}).ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.Orders = orders
	return &b, nil
}

// excludedItem is the JSON shape of an item that never became an order.
type excludedItem struct {
	Position int    `json:"position"`
	Site     string `json:"site"`
	AssetID  string `json:"asset_id"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
}

func encodeExcluded(items []model.ItemResult) (string, error) {
	rows := make([]excludedItem, 0, len(items))
	for _, it := range items {
		rows = append(rows, excludedItem{
			Position: it.Position,
			Site:     it.Site,
			AssetID:  it.AssetID,
			Outcome:  string(it.Outcome),
			Reason:   string(it.Reason),
		})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeExcluded(raw []byte) ([]model.ItemResult, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []excludedItem
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode excluded items: %w", err)
	}
	items := make([]model.ItemResult, 0, len(rows))
	for _, row := range rows {
		items = append(items, model.ItemResult{
			Position: row.Position,
			Site:     row.Site,
			AssetID:  row.AssetID,
			Outcome:  model.ItemOutcome(row.Outcome),
			Reason:   model.FailureReason(row.Reason),
		})
	}
	return items, nil
}
