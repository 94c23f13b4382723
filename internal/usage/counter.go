// Package usage tracks monthly consumption of the estimation endpoint
// in a persistent counter keyed by calendar month.
package usage

import (
	"context"
	"time"
)

// Counter is the monthly quota collaborator. Increment is atomic
// add-and-return-new-value; both operations hit the backing store.
type Counter interface {
	Count(ctx context.Context, period string) (int, error)
	Increment(ctx context.Context, period string) (int, error)
}

// MonthKey formats t as the period key for its UTC calendar month.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
