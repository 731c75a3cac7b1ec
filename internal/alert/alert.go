package alert

import (
	"context"
	"time"

	"orderpay-be/internal/logger"
	"orderpay-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// KindInventoryPartial: the order is PAID but some stock lines failed.
	KindInventoryPartial = "inventory.partial_failure"
	// KindInventoryUnreconciled: the inventory claim was taken but no
	// outcome was ever recorded, usually a crash between the two writes.
	KindInventoryUnreconciled = "inventory.unreconciled"
)

type Alert struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	OrderID  string         `json:"order_id"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	RaisedAt time.Time      `json:"raised_at"`
}

func New(kind, orderID, message string, details map[string]any) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Kind:     kind,
		OrderID:  orderID,
		Message:  message,
		Details:  details,
		RaisedAt: time.Now().UTC(),
	}
}

// Alerter delivers an alert to whoever operates the store.
type Alerter interface {
	Raise(ctx context.Context, a Alert) error
}

// LogAlerter writes alerts to the error log. It never fails.
type LogAlerter struct{}

func (LogAlerter) Raise(ctx context.Context, a Alert) error {
	logger.FromCtx(ctx).Error("operator alert",
		zap.String("alert_id", a.ID),
		zap.String("kind", a.Kind),
		zap.String("order_id", a.OrderID),
		zap.String("message", a.Message),
		zap.Any("details", a.Details),
	)
	return nil
}

// withFallback tries primary and falls back on failure, so an alert is
// never dropped because a broker is down.
type withFallback struct {
	primary  Alerter
	fallback Alerter
	metrics  *metrics.Metrics
}

func WithFallback(primary, fallback Alerter, m *metrics.Metrics) Alerter {
	return &withFallback{primary: primary, fallback: fallback, metrics: m}
}

func (f *withFallback) Raise(ctx context.Context, a Alert) error {
	err := f.primary.Raise(ctx, a)
	f.metrics.Alert(a.Kind, err == nil)
	if err == nil {
		return nil
	}

	logger.FromCtx(ctx).Warn("alert sink failed, using fallback",
		zap.String("alert_id", a.ID),
		zap.Error(err),
	)
	return f.fallback.Raise(ctx, a)
}
