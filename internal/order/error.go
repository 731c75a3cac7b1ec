package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// TransitionError carries the state an order was actually in when a
// conditional transition matched no row.
type TransitionError struct {
	OrderID string
	Current PaymentState
	Target  PaymentState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: order %s is %s, cannot move to %s",
		ErrInvalidStateTransition, e.OrderID, e.Current, e.Target)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }
