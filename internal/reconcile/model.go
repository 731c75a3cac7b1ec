package reconcile

import (
	"encoding/json"

	"orderpay-be/internal/order"
)

// PaymentIntent is what the client needs to open the gateway checkout.
type PaymentIntent struct {
	GatewayOrderRef string `json:"gatewayOrderRef"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func intentFrom(gw *order.GatewayOrder) *PaymentIntent {
	return &PaymentIntent{GatewayOrderRef: gw.Ref, Amount: gw.Amount, Currency: gw.Currency}
}

type Callback struct {
	GatewayOrderRef  string `json:"gatewayOrderRef"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`

	// Raw is the request body as received, kept for the audit log.
	Raw json.RawMessage `json:"-"`
}

type CallbackOutcome struct {
	OrderID string
	// Duplicate is a redelivery of a callback that already confirmed the order.
	Duplicate bool
	// Inventory is empty when this call did not run the adjustment.
	Inventory order.InventoryOutcome
}
