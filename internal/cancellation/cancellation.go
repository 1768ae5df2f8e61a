// Package cancellation derives the cancelled flag of orders. The flag is
// never stored: an order is cancelled when any row of the same upload with
// the same order number has type "Cancellation".
package cancellation

import (
	"strings"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// IsCancellation reports whether orderType names a cancellation row.
func IsCancellation(orderType string) bool {
	return strings.EqualFold(strings.TrimSpace(orderType), model.OrderTypeCancellation)
}

// Set returns the order numbers that have a cancellation row in orders.
// Callers pass the orders of a single upload.
func Set(orders []model.Order) map[string]struct{} {
	out := make(map[string]struct{})
	for _, o := range orders {
		if IsCancellation(o.OrderType) {
			out[o.OrderNumber] = struct{}{}
		}
	}
	return out
}

// OrderNumbers returns the distinct order numbers of views, in first-seen
// order, for scoping a cancellation lookup to a page.
func OrderNumbers(views []model.OrderView) []string {
	seen := make(map[string]struct{}, len(views))
	out := make([]string, 0, len(views))
	for _, v := range views {
		if _, ok := seen[v.OrderNumber]; ok {
			continue
		}
		seen[v.OrderNumber] = struct{}{}
		out = append(out, v.OrderNumber)
	}
	return out
}

// Flag sets Cancelled on every view whose order number is in cancelled.
func Flag(views []model.OrderView, cancelled map[string]struct{}) {
	for i := range views {
		_, views[i].Cancelled = cancelled[views[i].OrderNumber]
	}
}
