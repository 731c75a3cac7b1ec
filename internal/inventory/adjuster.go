package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderpay-be/internal/logger"
	"orderpay-be/internal/metrics"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Adjuster decrements stock for a paid order.
type Adjuster interface {
	Apply(ctx context.Context, orderID string, lines []Line) (*Result, error)
}

type adjuster struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

func NewAdjuster(db *sql.DB, m *metrics.Metrics) Adjuster {
	return &adjuster{db: db, metrics: m}
}

// Rows are locked in id order so concurrent adjustments never deadlock, and
// the locked snapshot gives the true pre-decrement stock for clamp detection.
const batchDecrement = `
	WITH v AS (
		SELECT * FROM unnest($1::text[], $2::int[]) AS t(id, qty)
	), old AS (
		SELECT p.id, p.stock
		FROM products p
		JOIN v ON v.id = p.id
		ORDER BY p.id
		FOR UPDATE OF p
	)
	UPDATE products p
	SET stock = GREATEST(old.stock - v.qty, 0),
		updated_at = now()
	FROM old
	JOIN v ON v.id = old.id
	WHERE p.id = old.id
	RETURNING p.id, p.stock, old.stock < v.qty
`

const singleDecrement = `
	WITH old AS (
		SELECT id, stock FROM products WHERE id = $1 FOR UPDATE
	)
	UPDATE products p
	SET stock = GREATEST(old.stock - $2, 0),
		updated_at = now()
	FROM old
	WHERE p.id = old.id
	RETURNING p.stock, old.stock < $2
`

// Apply never returns an error for a fully applied order. A store outage
// that prevents the batch and every per-item fallback yields a
// PartialFailure with every line failed.
func (a *adjuster) Apply(ctx context.Context, orderID string, lines []Line) (*Result, error) {
	log := logger.FromCtx(logger.WithOrderID(ctx, orderID)).With(zap.String("layer", "inventory"))

	lines = mergeLines(lines)
	if len(lines) == 0 {
		return &Result{}, nil
	}

	res, err := a.applyBatch(ctx, lines)
	if err != nil {
		log.Warn("batch stock update failed, falling back to per-item", zap.Error(err))
		res = a.applyEach(ctx, log, lines)
	}

	for _, ap := range res.Applied {
		if ap.Clamped {
			log.Warn("stock clamped at zero",
				zap.String("product_id", ap.ProductID),
				zap.Int("quantity", ap.Quantity),
			)
		}
	}

	if len(res.Failed) > 0 {
		a.metrics.Inventory("partial", res.ClampedCount())
		return res, &PartialFailure{OrderID: orderID, Result: res}
	}

	a.metrics.Inventory("applied", res.ClampedCount())
	log.Info("inventory applied", zap.Int("lines", len(res.Applied)))
	return res, nil
}

func (a *adjuster) applyBatch(ctx context.Context, lines []Line) (*Result, error) {
	ids := make([]string, len(lines))
	qtys := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
		qtys[i] = int64(l.Quantity)
	}

	rows, err := a.db.QueryContext(ctx, batchDecrement, pq.Array(ids), pq.Array(qtys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type written struct {
		remaining int
		clamped   bool
	}
	got := make(map[string]written, len(lines))
	for rows.Next() {
		var (
			id string
			w  written
		)
		if err := rows.Scan(&id, &w.remaining, &w.clamped); err != nil {
			return nil, err
		}
		got[id] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, l := range lines {
		w, ok := got[l.ProductID]
		if !ok {
			res.Failed = append(res.Failed, Failed{
				ProductID: l.ProductID, Quantity: l.Quantity, Reason: ErrProductNotFound.Error(),
			})
			continue
		}
		res.Applied = append(res.Applied, Applied{
			ProductID: l.ProductID, Quantity: l.Quantity, Remaining: w.remaining, Clamped: w.clamped,
		})
	}
	return res, nil
}

func (a *adjuster) applyEach(ctx context.Context, log *zap.Logger, lines []Line) *Result {
	res := &Result{}
	for _, l := range lines {
		ap, err := a.applyOne(ctx, l)
		if err != nil {
			log.Error("stock update failed",
				zap.String("product_id", l.ProductID),
				zap.Int("quantity", l.Quantity),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, Failed{ProductID: l.ProductID, Quantity: l.Quantity, Reason: err.Error()})
			continue
		}
		res.Applied = append(res.Applied, *ap)
	}
	return res
}

func (a *adjuster) applyOne(ctx context.Context, l Line) (*Applied, error) {
	ap := Applied{ProductID: l.ProductID, Quantity: l.Quantity}
	err := a.db.QueryRowContext(ctx, singleDecrement, l.ProductID, l.Quantity).Scan(&ap.Remaining, &ap.Clamped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("decrement %s: %w", l.ProductID, err)
	}
	return &ap, nil
}
