package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var ErrProductNotFound = errors.New("product not found")

// Line is one product decrement.
type Line struct {
	ProductID string
	Quantity  int
}

// Applied is a line whose stock was decremented. Clamped lines had less stock
// than ordered and were floored at zero.
type Applied struct {
	ProductID string
	Quantity  int
	Remaining int
	Clamped   bool
}

type Failed struct {
	ProductID string
	Quantity  int
	Reason    string
}

type Result struct {
	Applied []Applied
	Failed  []Failed
}

func (r *Result) ClampedCount() int {
	n := 0
	for _, a := range r.Applied {
		if a.Clamped {
			n++
		}
	}
	return n
}

// PartialFailure is returned when at least one line could not be applied.
// Lines in Result.Applied were still written.
type PartialFailure struct {
	OrderID string
	Result  *Result
}

func (e *PartialFailure) Error() string {
	ids := make([]string, 0, len(e.Result.Failed))
	for _, f := range e.Result.Failed {
		ids = append(ids, f.ProductID)
	}
	return fmt.Sprintf("inventory partially applied for order %s: %d applied, %d failed [%s]",
		e.OrderID, len(e.Result.Applied), len(e.Result.Failed), strings.Join(ids, ","))
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(lines []Line) []Line {
	idx := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}
