package payment

import (
	"context"
	"errors"
)

var (
	// ErrGatewayUnavailable covers transport errors, timeouts and non-success
	// answers. On a timeout the gateway order may still have been created.
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrInvalidAmount       = errors.New("invalid payment amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrSignatureMismatch   = errors.New("callback signature mismatch")
)

// Gateway mints payment intents at the external provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Intent, error)
}
