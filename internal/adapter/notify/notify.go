package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

const (
	EventBatchCompleted = "batch.completed"
	EventOrderFailed    = "order.failed"
)

// Notifier publishes domain events. Delivery is best effort.
type Notifier interface {
	BatchCompleted(ctx context.Context, userID int64, result model.BatchResult) error
	OrderFailed(ctx context.Context, order model.Order) error
}

// Event is the JSON envelope published for every notification.
type Event struct {
	Type       string          `json:"type"`
	UserID     int64           `json:"user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type batchPayload struct {
	BatchID   string `json:"batch_id"`
	State     string `json:"state"`
	TotalCost int64  `json:"total_cost"`
	Refunded  int64  `json:"refunded"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

type orderPayload struct {
	OrderID  string `json:"order_id"`
	BatchID  string `json:"batch_id"`
	Site     string `json:"site"`
	AssetID  string `json:"asset_id"`
	Reason   string `json:"reason"`
	Refunded bool   `json:"refunded"`
}

func newEvent(eventType string, userID int64, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, UserID: userID, OccurredAt: time.Now().UTC(), Payload: raw}, nil
}

func batchEvent(userID int64, result model.BatchResult) (Event, error) {
	p := batchPayload{
		BatchID:   result.BatchID,
		State:     string(result.State),
		TotalCost: result.TotalCost,
		Refunded:  result.Refunded,
	}
	for _, item := range result.Items {
		switch item.Outcome {
		case model.ItemSucceeded:
			p.Succeeded++
		case model.ItemFailed, model.ItemNotFound:
			p.Failed++
		}
	}
	return newEvent(EventBatchCompleted, userID, p)
}

func orderEvent(order model.Order) (Event, error) {
	return newEvent(EventOrderFailed, order.UserID, orderPayload{
		OrderID:  order.ID,
		BatchID:  order.BatchID,
		Site:     order.Site,
		AssetID:  order.AssetID,
		Reason:   string(order.FailureReason),
		Refunded: order.Refunded,
	})
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier sends events to an SQS queue.
type SQSNotifier struct {
	client   sqsAPI
	queueURL string
}

var _ Notifier = (*SQSNotifier)(nil)

// NewSQSNotifier creates a notifier publishing into queueURL.
func NewSQSNotifier(client sqsAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

func (n *SQSNotifier) BatchCompleted(ctx context.Context, userID int64, result model.BatchResult) error {
	event, err := batchEvent(userID, result)
	if err != nil {
		return err
	}
	return n.send(ctx, event)
}

func (n *SQSNotifier) OrderFailed(ctx context.Context, order model.Order) error {
	event, err := orderEvent(order)
	if err != nil {
		return err
	}
	return n.send(ctx, event)
}

func (n *SQSNotifier) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for SQS: %w", err)
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}
	return nil
}

// LogNotifier writes events to the structured log when no queue is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) BatchCompleted(ctx context.Context, userID int64, result model.BatchResult) error {
	event, err := batchEvent(userID, result)
	if err != nil {
		return err
	}
	n.log(ctx, event)
	return nil
}

func (n *LogNotifier) OrderFailed(ctx context.Context, order model.Order) error {
	event, err := orderEvent(order)
	if err != nil {
		return err
	}
	n.log(ctx, event)
	return nil
}

func (n *LogNotifier) log(ctx context.Context, event Event) {
	n.logger.InfoContext(ctx, "event published",
		slog.String("type", event.Type),
		slog.Int64("user_id", event.UserID),
		slog.String("payload", string(event.Payload)))
}
