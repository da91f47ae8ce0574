package notify

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/config"
)

// Module provides the event notifier. SQS is used when a queue URL is configured.
// Events are published off the caller's goroutine.
var Module = fx.Provide(newNotifier)

type notifierParams struct {
	fx.In

	Ctx       context.Context
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

var loadAWSConfig = awsconfig.LoadDefaultConfig

func newNotifier(p notifierParams) (Notifier, error) {
	next, err := newPublisher(p)
	if err != nil {
		return nil, err
	}
	async := NewAsync(next, p.Config.NotifyBufferSize, p.Logger)
	p.Lifecycle.Append(fx.StartStopHook(async.Start, async.Stop))
	return async, nil
}

func newPublisher(p notifierParams) (Notifier, error) {
	if p.Config.NotifyQueueURL == "" {
		return NewLogNotifier(p.Logger), nil
	}

	awsCfg, err := loadAWSConfig(p.Ctx, awsconfig.WithRegion(p.Config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.Logger.Info("publishing events to sqs", slog.String("queue_url", p.Config.NotifyQueueURL))
	return NewSQSNotifier(sqs.NewFromConfig(awsCfg), p.Config.NotifyQueueURL), nil
}
