package order

import (
	"fmt"
	"strings"
	"time"
)

type PaymentState string

const (
	StateCreated              PaymentState = "CREATED"
	StateAwaitingConfirmation PaymentState = "AWAITING_CONFIRMATION"
	StatePaid                 PaymentState = "PAID"
	StateDelivered            PaymentState = "DELIVERED"
)

// lifecycle is the only legal order of payment states.
var lifecycle = []PaymentState{StateCreated, StateAwaitingConfirmation, StatePaid, StateDelivered}

func (s PaymentState) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

func (s PaymentState) Valid() bool { return s.rank() >= 0 }

// AtLeast reports whether s is target or any state after it.
func (s PaymentState) AtLeast(target PaymentState) bool {
	return s.Valid() && target.Valid() && s.rank() >= target.rank()
}

// CanTransition allows exactly one step forward.
func CanTransition(from, to PaymentState) bool {
	return from.Valid() && to.Valid() && to.rank() == from.rank()+1
}

type InventoryOutcome string

const (
	InventoryPending InventoryOutcome = ""
	InventoryApplied InventoryOutcome = "APPLIED"
	InventoryPartial InventoryOutcome = "PARTIAL"
)

type Item struct {
	ProductID    string
	Quantity     int
	UnitPrice    int64
	NameSnapshot string
}

func (i Item) Subtotal() int64 { return int64(i.Quantity) * i.UnitPrice }

// Amounts are minor units of the store currency.
type Amounts struct {
	ItemsTotal    int64
	ShippingTotal int64
	TaxTotal      int64
	GrandTotal    int64
}

// NewAmounts derives GrandTotal from its parts.
func NewAmounts(itemsTotal, shippingTotal, taxTotal int64) (Amounts, error) {
	a := Amounts{
		ItemsTotal:    itemsTotal,
		ShippingTotal: shippingTotal,
		TaxTotal:      taxTotal,
		GrandTotal:    itemsTotal + shippingTotal + taxTotal,
	}
	return a, a.Validate()
}

func (a Amounts) Validate() error {
	if a.ItemsTotal < 0 || a.ShippingTotal < 0 || a.TaxTotal < 0 || a.GrandTotal < 0 {
		return fmt.Errorf("%w: amounts must be non-negative", ErrInvalidOrder)
	}
	if a.GrandTotal != a.ItemsTotal+a.ShippingTotal+a.TaxTotal {
		return fmt.Errorf("%w: grand total %d does not equal %d+%d+%d",
			ErrInvalidOrder, a.GrandTotal, a.ItemsTotal, a.ShippingTotal, a.TaxTotal)
	}
	return nil
}

// GatewayOrder is the payment intent minted by the gateway.
// Amount and Currency are in the settlement currency.
type GatewayOrder struct {
	Ref      string
	Amount   int64
	Currency string
}

type PaymentResult struct {
	GatewayPaymentID string
	VerifiedAt       time.Time
}

type Order struct {
	ID               string
	UserID           *string
	Items            []Item
	Amounts          Amounts
	StoreCurrency    string
	PaymentState     PaymentState
	Gateway          *GatewayOrder
	PaymentResult    *PaymentResult
	InventoryApplied bool
	InventoryOutcome InventoryOutcome
	PaidAt           *time.Time
	DeliveredAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New builds a CREATED order whose items total is derived from the line items.
func New(id string, items []Item, shippingTotal, taxTotal int64, currency string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidOrder)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no order items", ErrInvalidOrder)
	}

	var itemsTotal int64
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, fmt.Errorf("%w: item %d has no product id", ErrInvalidOrder, i)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be greater than zero", ErrInvalidOrder, i)
		}
		if it.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %d has a negative unit price", ErrInvalidOrder, i)
		}
		itemsTotal += it.Subtotal()
	}

	amounts, err := NewAmounts(itemsTotal, shippingTotal, taxTotal)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Order{
		ID:            id,
		Items:         append([]Item(nil), items...),
		Amounts:       amounts,
		StoreCurrency: strings.ToUpper(currency),
		PaymentState:  StateCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GatewayRef returns the gateway order reference, or "" before AWAITING_CONFIRMATION.
func (o *Order) GatewayRef() string {
	if o.Gateway == nil {
		return ""
	}
	return o.Gateway.Ref
}

// PaidWith reports whether the order was confirmed by the given gateway payment.
func (o *Order) PaidWith(gatewayPaymentID string) bool {
	return o.PaymentState.AtLeast(StatePaid) &&
		o.PaymentResult != nil &&
		o.PaymentResult.GatewayPaymentID == gatewayPaymentID
}
