// Package outbox publishes order notification events that services wrote
// transactionally alongside their state changes.
package outbox

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"

	"github.com/covacitrees/oms/internal/dal/interfaces/ioutboxrepo"
	"github.com/covacitrees/oms/internal/dal/rabbitmq"
)

// Worker drains the notification outbox into RabbitMQ.
type Worker struct {
	outboxRepo   ioutboxrepo.IOutboxRepository
	rabbitClient *rabbitmq.Client
	exchange     string
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// NewWorker creates a new outbox worker.
func NewWorker(
	outboxRepo ioutboxrepo.IOutboxRepository,
	rabbitClient *rabbitmq.Client,
) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.outbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 10
	}

	batchSize := viper.GetInt("rabbitmq.outbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	exchange := viper.GetString("rabbitmq.outbox.exchange")

	return &Worker{
		outboxRepo:   outboxRepo,
		rabbitClient: rabbitClient,
		exchange:     exchange,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start begins draining the outbox. It blocks until the context is canceled
// or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.publishPending(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) publishPending(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Publishing outbox notifications", "count", len(messages))

	for _, msg := range messages {
		exchange := msg.ExchangeName
		if exchange == "" {
			exchange = w.exchange
		}

		err := w.rabbitClient.Channel().Publish(
			exchange,
			msg.RoutingKey,
			false,
			false,
			amqp.Publishing{
				ContentType: msg.ContentType,
				Body:        msg.Payload,
			},
		)

		if err != nil {
			// Exponential backoff: 60s, 120s, 240s and so on.
			newRetryCount := msg.RetryCount + 1
			backoffSeconds := math.Pow(2, float64(newRetryCount)) * 30
			nextRetryAt := time.Now().Add(time.Duration(backoffSeconds) * time.Second)

			slog.Warn("Failed to publish notification, will retry",
				"outbox_id", msg.ID,
				"routing_key", msg.RoutingKey,
				"retry_count", newRetryCount,
				"next_retry", nextRetryAt,
				"error", err,
			)

			if err := w.outboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, err.Error(), nextRetryAt); err != nil {
				slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
			}

			continue
		}

		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete published notification from outbox",
				"outbox_id", msg.ID,
				"error", err,
			)

			continue
		}

		slog.Info("Notification published", "outbox_id", msg.ID, "routing_key", msg.RoutingKey)
	}
}
