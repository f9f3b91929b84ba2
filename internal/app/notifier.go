package app

import (
	"context"
	"log/slog"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/NavanKen/Eventify/internal/metrics"
)

type notifier struct {
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     clock.Clock
}

func (n notifier) publish(ctx context.Context, eventType string, txn domain.Transaction) {
	if n.publisher == nil {
		return
	}
	evt := domain.NewTransactionEvent(eventType, txn, n.clock.Now())
	if err := n.publisher.PublishTransactionEvent(context.WithoutCancel(ctx), evt); err != nil {
		n.metrics.ObservePublishFailure()
		n.logger.Warn("publish transaction event",
			"type", eventType,
			"transaction_id", txn.ID,
			"error", err,
		)
	}
}
