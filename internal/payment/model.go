package payment

import (
	"encoding/json"
	"time"
)

type CreateOrderRequest struct {
	// Amount is in minor units of Currency.
	Amount   int64
	Currency string
	// Receipt is our order id, echoed back by the gateway.
	Receipt string
}

// Intent is the gateway-side order awaiting payment.
type Intent struct {
	Ref      string
	Amount   int64
	Currency string
	Status   string
	Raw      json.RawMessage
}

type rzpOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type rzpOrderResponse struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// CallbackRecord is one gateway callback as received, kept for audit.
type CallbackRecord struct {
	ID               int64
	GatewayOrderRef  string
	GatewayPaymentID string
	SignatureValid   bool
	Payload          json.RawMessage
	ReceivedAt       time.Time
}
