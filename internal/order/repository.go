package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orderpay-be/internal/logger"

	"go.uber.org/zap"
)

// Repository is the order store. Every state change is a single conditional
// UPDATE keyed on the expected predecessor state; that compare-and-swap is the
// only concurrency control orders need.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByGatewayRef(ctx context.Context, ref string) (*Order, error)

	TransitionToAwaiting(ctx context.Context, id string, gw GatewayOrder) error
	// TransitionToPaid moves AWAITING_CONFIRMATION to PAID and flips
	// inventory_applied in the same statement. claimed is true for exactly one
	// caller per order: the one that must run the inventory adjustment.
	TransitionToPaid(ctx context.Context, id string, result PaymentResult) (claimed bool, err error)
	TransitionToDelivered(ctx context.Context, id string, at time.Time) error

	RecordInventoryOutcome(ctx context.Context, id string, outcome InventoryOutcome) error
	// ListUnreconciled returns orders whose inventory claim was taken before
	// paidBefore but never recorded an outcome. Items are not loaded.
	ListUnreconciled(ctx context.Context, paidBefore time.Time, limit int) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, user_id, store_currency,
	items_total, shipping_total, tax_total, grand_total,
	payment_state, gateway_order_ref, gateway_amount, gateway_currency,
	gateway_payment_id, verified_at,
	inventory_applied, inventory_outcome,
	paid_at, delivered_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                                  Order
		state                              string
		userID, ref, gwCurrency, paymentID sql.NullString
		outcome                            sql.NullString
		gwAmount                           sql.NullInt64
		verifiedAt, paidAt, deliveredAt    sql.NullTime
	)

	err := row.Scan(
		&o.ID, &userID, &o.StoreCurrency,
		&o.Amounts.ItemsTotal, &o.Amounts.ShippingTotal, &o.Amounts.TaxTotal, &o.Amounts.GrandTotal,
		&state, &ref, &gwAmount, &gwCurrency,
		&paymentID, &verifiedAt,
		&o.InventoryApplied, &outcome,
		&paidAt, &deliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentState = PaymentState(state)
	if userID.Valid {
		o.UserID = &userID.String
	}
	if ref.Valid {
		o.Gateway = &GatewayOrder{Ref: ref.String, Amount: gwAmount.Int64, Currency: gwCurrency.String}
	}
	if paymentID.Valid {
		o.PaymentResult = &PaymentResult{GatewayPaymentID: paymentID.String, VerifiedAt: verifiedAt.Time}
	}
	if outcome.Valid {
		o.InventoryOutcome = InventoryOutcome(outcome.String)
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		o.DeliveredAt = &deliveredAt.Time
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	if o.PaymentState != StateCreated {
		return fmt.Errorf("%w: new orders start in %s", ErrInvalidOrder, StateCreated)
	}
	if err := o.Amounts.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, store_currency,
			items_total, shipping_total, tax_total, grand_total,
			payment_state, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		o.ID, o.UserID, o.StoreCurrency,
		o.Amounts.ItemsTotal, o.Amounts.ShippingTotal, o.Amounts.TaxTotal, o.Amounts.GrandTotal,
		string(o.PaymentState), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, quantity, unit_price, name_snapshot
			) VALUES ($1,$2,$3,$4,$5,$6)
		`, o.ID, i, it.ProductID, it.Quantity, it.UnitPrice, it.NameSnapshot)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (r *repository) GetByID(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return r.loadOrder(ctx, row)
}

func (r *repository) GetByGatewayRef(ctx context.Context, ref string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_ref = $1`, ref)
	return r.loadOrder(ctx, row)
}

func (r *repository) loadOrder(ctx context.Context, row *sql.Row) (*Order, error) {
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Items, err = r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) loadItems(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, name_snapshot
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice, &it.NameSnapshot); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) TransitionToAwaiting(ctx context.Context, id string, gw GatewayOrder) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = 'AWAITING_CONFIRMATION',
			gateway_order_ref = $2,
			gateway_amount = $3,
			gateway_currency = $4,
			updated_at = now()
		WHERE id = $1
			AND payment_state = 'CREATED'
			AND gateway_order_ref IS NULL
	`, id, gw.Ref, gw.Amount, gw.Currency)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id, StateAwaitingConfirmation)
}

func (r *repository) TransitionToPaid(ctx context.Context, id string, result PaymentResult) (bool, error) {
	// The CTE locks the row and captures inventory_applied as it was before
	// this statement, so the flip is a read-and-set in one step. A row comes
	// back only for the caller that moved the order out of AWAITING with the
	// claim still free.
	var claimed bool
	err := r.db.QueryRowContext(ctx, `
		WITH prev AS (
			SELECT id, inventory_applied
			FROM orders
			WHERE id = $1
			FOR UPDATE
		)
		UPDATE orders o
		SET payment_state = 'PAID',
			gateway_payment_id = $2,
			verified_at = $3,
			paid_at = $3,
			inventory_applied = TRUE,
			updated_at = now()
		FROM prev
		WHERE o.id = prev.id
			AND o.payment_state = 'AWAITING_CONFIRMATION'
			AND NOT o.inventory_applied
		RETURNING NOT prev.inventory_applied
	`, id, result.GatewayPaymentID, result.VerifiedAt).Scan(&claimed)

	if errors.Is(err, sql.ErrNoRows) {
		return false, r.transitionFailure(ctx, id, StatePaid)
	}
	if err != nil {
		return false, err
	}

	logger.FromCtx(logger.WithOrderID(ctx, id)).Debug("order transitioned",
		zap.String("layer", "repository"),
		zap.String("to", string(StatePaid)),
		zap.Bool("inventory_claimed", claimed),
	)
	return claimed, nil
}

func (r *repository) TransitionToDelivered(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = 'DELIVERED',
			delivered_at = $2,
			updated_at = now()
		WHERE id = $1
			AND payment_state = 'PAID'
	`, id, at)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id, StateDelivered)
}

func (r *repository) RecordInventoryOutcome(ctx context.Context, id string, outcome InventoryOutcome) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET inventory_outcome = $2,
			updated_at = now()
		WHERE id = $1
			AND inventory_applied
			AND inventory_outcome IS NULL
	`, id, string(outcome))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: inventory outcome for order %s already recorded or never claimed",
			ErrInvalidStateTransition, id)
	}
	return nil
}

func (r *repository) ListUnreconciled(ctx context.Context, paidBefore time.Time, limit int) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE payment_state IN ('PAID', 'DELIVERED')
			AND inventory_applied
			AND inventory_outcome IS NULL
			AND paid_at < $1
		ORDER BY paid_at
		LIMIT $2
	`, paidBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *repository) checkAffected(ctx context.Context, res sql.Result, id string, target PaymentState) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.transitionFailure(ctx, id, target)
	}

	logger.FromCtx(logger.WithOrderID(ctx, id)).Debug("order transitioned",
		zap.String("layer", "repository"),
		zap.String("to", string(target)),
	)
	return nil
}

// transitionFailure explains why a conditional update matched nothing.
func (r *repository) transitionFailure(ctx context.Context, id string, target PaymentState) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT payment_state FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	return &TransitionError{OrderID: id, Current: PaymentState(current), Target: target}
}
