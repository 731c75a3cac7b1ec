package reconcile

import "errors"

// ErrConflictingPayment is a verified callback for an order already paid
// with a different gateway payment id.
var ErrConflictingPayment = errors.New("order already paid with a different payment")
