package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderpay-be/internal/alert"
	"orderpay-be/internal/inventory"
	"orderpay-be/internal/logger"
	"orderpay-be/internal/metrics"
	"orderpay-be/internal/order"
	"orderpay-be/internal/payment"

	"go.uber.org/zap"
)

// Operations is the upkeep half of Service. It needs only the order store
// and an alert sink.
type Operations interface {
	MarkDelivered(ctx context.Context, orderID string) error
	SweepUnreconciled(ctx context.Context, olderThan time.Duration) (int, error)
}

type Service interface {
	Operations
	InitiatePayment(ctx context.Context, orderID string) (*PaymentIntent, error)
	HandleCallback(ctx context.Context, cb Callback) (*CallbackOutcome, error)
}

// operations hides the payment methods of a service built without a
// gateway, verifier or adjuster.
type operations struct {
	svc *service
}

// NewOperations builds Operations for tools that never take payments.
func NewOperations(orders order.Repository, alerter alert.Alerter, m *metrics.Metrics) Operations {
	svc := NewService(Deps{Orders: orders, Alerter: alerter, Metrics: m}).(*service)
	return operations{svc: svc}
}

func (o operations) MarkDelivered(ctx context.Context, orderID string) error {
	return o.svc.MarkDelivered(ctx, orderID)
}

func (o operations) SweepUnreconciled(ctx context.Context, olderThan time.Duration) (int, error) {
	return o.svc.SweepUnreconciled(ctx, olderThan)
}

type Deps struct {
	Orders    order.Repository
	Gateway   payment.Gateway
	Rates     payment.RateSource
	Verifier  *payment.Verifier
	Inventory inventory.Adjuster
	Alerter   alert.Alerter
	// Callbacks is optional.
	Callbacks payment.CallbackLog
	Metrics   *metrics.Metrics

	SettlementCurrency string
	Now                func() time.Time
}

type service struct {
	orders     order.Repository
	gateway    payment.Gateway
	converter  payment.Converter
	verifier   *payment.Verifier
	inventory  inventory.Adjuster
	alerter    alert.Alerter
	callbacks  payment.CallbackLog
	metrics    *metrics.Metrics
	settlement string
	now        func() time.Time
}

func NewService(d Deps) Service {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	alerter := d.Alerter
	if alerter == nil {
		alerter = alert.LogAlerter{}
	}
	return &service{
		orders:     d.Orders,
		gateway:    d.Gateway,
		converter:  payment.Converter{Rates: d.Rates},
		verifier:   d.Verifier,
		inventory:  d.Inventory,
		alerter:    alerter,
		callbacks:  d.Callbacks,
		metrics:    d.Metrics,
		settlement: d.SettlementCurrency,
		now:        now,
	}
}

func (s *service) InitiatePayment(ctx context.Context, orderID string) (*PaymentIntent, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "InitiatePayment"),
	)

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch o.PaymentState {
	case order.StateCreated:
	case order.StateAwaitingConfirmation:
		log.Info("payment already initiated, returning stored ref", zap.String("gateway_order_ref", o.GatewayRef()))
		return intentFrom(o.Gateway), nil
	default:
		return nil, &order.TransitionError{OrderID: orderID, Current: o.PaymentState, Target: order.StateAwaitingConfirmation}
	}

	amount, err := s.converter.Convert(ctx, o.Amounts.GrandTotal, o.StoreCurrency, s.settlement)
	if err != nil {
		log.Error("failed to convert order total", zap.Error(err))
		return nil, err
	}

	intent, err := s.gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		Amount:   amount,
		Currency: s.settlement,
		Receipt:  o.ID,
	})
	if err != nil {
		log.Error("gateway order creation failed", zap.Error(err))
		return nil, err
	}

	gw := order.GatewayOrder{Ref: intent.Ref, Amount: intent.Amount, Currency: intent.Currency}
	err = s.orders.TransitionToAwaiting(ctx, o.ID, gw)

	var te *order.TransitionError
	if errors.As(err, &te) && te.Current == order.StateAwaitingConfirmation {
		// A concurrent request got there first; its ref wins.
		current, rerr := s.orders.GetByID(ctx, o.ID)
		if rerr != nil {
			return nil, rerr
		}
		log.Warn("lost initiation race, discarding gateway order",
			zap.String("discarded_ref", gw.Ref),
			zap.String("gateway_order_ref", current.GatewayRef()),
		)
		return intentFrom(current.Gateway), nil
	}
	if err != nil {
		log.Error("failed to record gateway order",
			zap.String("gateway_order_ref", gw.Ref),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.Transition(string(order.StateAwaitingConfirmation))
	log.Info("payment initiated",
		zap.String("gateway_order_ref", gw.Ref),
		zap.Int64("amount", gw.Amount),
		zap.String("currency", gw.Currency),
	)
	return intentFrom(&gw), nil
}

// HandleCallback verifies before it touches anything. Inventory is adjusted
// before returning, by whichever caller won the PAID transition.
func (s *service) HandleCallback(ctx context.Context, cb Callback) (*CallbackOutcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "HandleCallback"),
		zap.String("gateway_order_ref", cb.GatewayOrderRef),
		zap.String("gateway_payment_id", cb.GatewayPaymentID),
	)

	valid := s.verifier.Verify(cb.GatewayOrderRef, cb.GatewayPaymentID, cb.Signature)
	auditID := s.audit(ctx, log, cb, valid)

	if !valid {
		log.Warn("callback signature mismatch")
		s.metrics.Callback("rejected")
		s.markFailed(ctx, log, auditID, payment.ErrSignatureMismatch)
		return nil, payment.ErrSignatureMismatch
	}

	out, err := s.confirm(ctx, log, cb)
	if err != nil {
		s.metrics.Callback(callbackOutcome(err))
		s.markFailed(ctx, log, auditID, err)
		return nil, err
	}

	result := "confirmed"
	if out.Duplicate {
		result = "duplicate"
	}
	s.metrics.Callback(result)
	if auditID != 0 && s.callbacks != nil {
		if err := s.callbacks.MarkCallbackProcessed(context.WithoutCancel(ctx), auditID, result); err != nil {
			log.Warn("failed to mark callback processed", zap.Error(err))
		}
	}
	return out, nil
}

func (s *service) confirm(ctx context.Context, log *zap.Logger, cb Callback) (*CallbackOutcome, error) {
	o, err := s.orders.GetByGatewayRef(ctx, cb.GatewayOrderRef)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn("verified callback for unknown gateway order")
		}
		return nil, err
	}
	ctx = logger.WithOrderID(ctx, o.ID)
	log = log.With(zap.String("order_id", o.ID))

	claimed, err := s.orders.TransitionToPaid(ctx, o.ID, order.PaymentResult{
		GatewayPaymentID: cb.GatewayPaymentID,
		VerifiedAt:       s.now(),
	})

	var te *order.TransitionError
	if errors.As(err, &te) && te.Current.AtLeast(order.StatePaid) {
		current, rerr := s.orders.GetByID(ctx, o.ID)
		if rerr != nil {
			return nil, rerr
		}
		if current.PaidWith(cb.GatewayPaymentID) {
			log.Info("duplicate callback, order already confirmed", zap.String("state", string(current.PaymentState)))
			return &CallbackOutcome{OrderID: o.ID, Duplicate: true}, nil
		}
		log.Error("callback conflicts with recorded payment",
			zap.String("recorded_payment_id", current.PaymentResult.GatewayPaymentID),
		)
		return nil, fmt.Errorf("%w: order %s", ErrConflictingPayment, o.ID)
	}
	if err != nil {
		log.Error("failed to mark order paid", zap.Error(err))
		return nil, err
	}

	s.metrics.Transition(string(order.StatePaid))
	log.Info("order paid", zap.Bool("inventory_claimed", claimed))

	out := &CallbackOutcome{OrderID: o.ID}
	if !claimed {
		log.Warn("order reached PAID without the inventory claim")
		return out, nil
	}

	// The claim is committed; the adjustment must finish even if the
	// gateway hangs up, or a retry would see a duplicate and stock would
	// never move.
	adjCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inventoryTimeout)
	defer cancel()

	out.Inventory = s.adjustInventory(adjCtx, log, o)
	return out, nil
}

const inventoryTimeout = 30 * time.Second

// adjustInventory runs once per order, for the caller holding the claim. The
// order stays PAID whatever happens here.
func (s *service) adjustInventory(ctx context.Context, log *zap.Logger, o *order.Order) order.InventoryOutcome {
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	outcome := order.InventoryApplied
	res, err := s.inventory.Apply(ctx, o.ID, lines)
	if err != nil {
		outcome = order.InventoryPartial

		details := map[string]any{"error": err.Error()}
		var pf *inventory.PartialFailure
		if errors.As(err, &pf) {
			details["applied"] = len(pf.Result.Applied)
			details["failed"] = pf.Result.Failed
		}
		s.raise(ctx, log, alert.New(alert.KindInventoryPartial, o.ID,
			"order paid but inventory was not fully adjusted", details))
	} else if res.ClampedCount() > 0 {
		log.Warn("stock oversold, clamped at zero", zap.Int("clamped_lines", res.ClampedCount()))
	}

	if err := s.orders.RecordInventoryOutcome(ctx, o.ID, outcome); err != nil {
		// The sweeper will pick this order up.
		log.Error("failed to record inventory outcome",
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
	return outcome
}

func (s *service) MarkDelivered(ctx context.Context, orderID string) error {
	ctx = logger.WithOrderID(ctx, orderID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "MarkDelivered"),
	)

	if err := s.orders.TransitionToDelivered(ctx, orderID, s.now()); err != nil {
		log.Warn("failed to mark order delivered", zap.Error(err))
		return err
	}

	s.metrics.Transition(string(order.StateDelivered))
	log.Info("order delivered")
	return nil
}

const sweepBatch = 100

// SweepUnreconciled alerts on orders that took the inventory claim more than
// olderThan ago but never recorded an outcome. It returns the number alerted.
func (s *service) SweepUnreconciled(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "SweepUnreconciled"),
	)

	orders, err := s.orders.ListUnreconciled(ctx, s.now().Add(-olderThan), sweepBatch)
	if err != nil {
		log.Error("failed to list unreconciled orders", zap.Error(err))
		return 0, err
	}

	for _, o := range orders {
		details := map[string]any{"state": string(o.PaymentState)}
		if o.PaidAt != nil {
			details["paid_at"] = o.PaidAt.Format(time.RFC3339)
		}
		s.raise(ctx, log, alert.New(alert.KindInventoryUnreconciled, o.ID,
			"inventory claim taken but no outcome recorded", details))
	}

	if len(orders) > 0 {
		log.Warn("unreconciled orders found", zap.Int("count", len(orders)))
	}
	return len(orders), nil
}

func (s *service) raise(ctx context.Context, log *zap.Logger, a alert.Alert) {
	if err := s.alerter.Raise(ctx, a); err != nil {
		log.Error("failed to raise alert",
			zap.String("kind", a.Kind),
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
	}
}

func (s *service) audit(ctx context.Context, log *zap.Logger, cb Callback, valid bool) int64 {
	if s.callbacks == nil {
		return 0
	}
	id, dup, err := s.callbacks.SaveCallback(ctx, payment.CallbackRecord{
		GatewayOrderRef:  cb.GatewayOrderRef,
		GatewayPaymentID: cb.GatewayPaymentID,
		SignatureValid:   valid,
		Payload:          cb.Raw,
	})
	if err != nil {
		log.Warn("failed to log callback", zap.Error(err))
		return 0
	}
	if dup {
		log.Info("callback redelivered")
	}
	return id
}

func (s *service) markFailed(ctx context.Context, log *zap.Logger, id int64, cause error) {
	if id == 0 || s.callbacks == nil {
		return
	}
	if err := s.callbacks.MarkCallbackFailed(ctx, id, cause.Error()); err != nil {
		log.Warn("failed to mark callback failed", zap.Error(err))
	}
}

func callbackOutcome(err error) string {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return "unknown_order"
	case errors.Is(err, ErrConflictingPayment):
		return "conflict"
	case errors.Is(err, order.ErrInvalidStateTransition):
		return "invalid_state"
	}
	return "error"
}
