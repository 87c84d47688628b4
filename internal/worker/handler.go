package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gehnabox/orders-service/internal/domain"
)

// AnalyticsHandler turns status-changed events into the counters behind the
// back-office analytics dashboard: transitions per status pair, and revenue
// recognized at delivery.
type AnalyticsHandler struct {
	transitions      metric.Int64Counter
	deliveredRevenue metric.Int64Counter
	cancellations    metric.Int64Counter
	logger           *slog.Logger
}

func NewAnalyticsHandler(logger *slog.Logger) (*AnalyticsHandler, error) {
	meter := otel.Meter("worker/analytics")

	transitions, err := meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Count of committed order status transitions"))
	if err != nil {
		return nil, err
	}

	deliveredRevenue, err := meter.Int64Counter("orders.revenue.delivered",
		metric.WithDescription("Total amount of orders at the moment they were delivered"),
		metric.WithUnit("{inr}"))
	if err != nil {
		return nil, err
	}

	cancellations, err := meter.Int64Counter("orders.cancellations",
		metric.WithDescription("Count of orders that reached cancelled"))
	if err != nil {
		return nil, err
	}

	return &AnalyticsHandler{
		transitions:      transitions,
		deliveredRevenue: deliveredRevenue,
		cancellations:    cancellations,
		logger:           logger,
	}, nil
}

// Handle processes one status-changed event. The database row is the source
// of truth; these counters are derived data and safe to rebuild by replaying
// the topic.
func (h *AnalyticsHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal status changed event: %w", err)
	}

	attrs := metric.WithAttributes(
		attribute.String("from_status", string(event.FromStatus)),
		attribute.String("to_status", string(event.ToStatus)),
	)
	h.transitions.Add(ctx, 1, attrs)

	switch event.ToStatus {
	case domain.OrderStatusDelivered:
		h.deliveredRevenue.Add(ctx, event.TotalAmount)
	case domain.OrderStatusCancelled:
		h.cancellations.Add(ctx, 1)
	}

	h.logger.Info("recorded status transition",
		"order_number", event.OrderNumber,
		"from_status", event.FromStatus,
		"to_status", event.ToStatus)
	return nil
}
