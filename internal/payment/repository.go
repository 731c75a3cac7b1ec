package payment

import (
	"context"
	"database/sql"
	"errors"
)

// CallbackLog is the audit trail of every callback the gateway delivers,
// valid or not. It never drives order state.
type CallbackLog interface {
	SaveCallback(ctx context.Context, cb CallbackRecord) (id int64, isDuplicate bool, err error)
	MarkCallbackProcessed(ctx context.Context, id int64, result string) error
	MarkCallbackFailed(ctx context.Context, id int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewCallbackLog(db *sql.DB) CallbackLog {
	return &repository{db: db}
}

func (r *repository) SaveCallback(ctx context.Context, cb CallbackRecord) (int64, bool, error) {
	const q = `
	INSERT INTO payment_callbacks (
		gateway_order_ref,
		gateway_payment_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (gateway_order_ref, gateway_payment_id, signature_valid)
	DO NOTHING
	RETURNING id;
	`

	// lib/pq sends []byte as bytea; jsonb wants text.
	payload := string(cb.Payload)
	if payload == "" {
		payload = "{}"
	}

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		cb.GatewayOrderRef,
		cb.GatewayPaymentID,
		cb.SignatureValid,
		payload,
	).Scan(&id)

	if err != nil {
		// Redelivery of a callback we already logged.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkCallbackProcessed(ctx context.Context, id int64, result string) error {
	const q = `
	UPDATE payment_callbacks
	SET processed_at = now(),
		result = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, id, result)
	return err
}

func (r *repository) MarkCallbackFailed(ctx context.Context, id int64, reason string) error {
	const q = `
	UPDATE payment_callbacks
	SET processed_at = now(),
		process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, id, reason)
	return err
}
