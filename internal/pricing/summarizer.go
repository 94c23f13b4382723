package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/carlosmorenolosa/corsam-pricing/pkg/api"
	"github.com/carlosmorenolosa/corsam-pricing/pkg/robust"
)

// Summarize estimates every item independently and rolls totals up
// weighted by quantity. Items never influence each other; the first
// collaborator failure aborts the whole batch with no partial result.
func (e *Estimator) Summarize(ctx context.Context, items []api.LineItem, p Params) (api.BatchResult, error) {
	start := time.Now()

	enriched := make([]api.EnrichedItem, 0, len(items))
	for i, item := range items {
		ei, err := e.Estimate(ctx, item, p)
		if err != nil {
			return api.BatchResult{}, fmt.Errorf("item %d (%q): %w", i, item.Description, err)
		}
		enriched = append(enriched, ei)
	}

	var totalOriginal, totalOptimized, totalHours, totalProfit float64
	for _, it := range enriched {
		totalOriginal += it.Quantity * it.CurrentPrice
		totalOptimized += it.Quantity * it.OptimizedPrice
		totalHours += it.Quantity * it.HoursUnit
		totalProfit += it.Quantity * it.ProfitUnit
	}

	savings := robust.Money(totalOriginal - totalOptimized)
	savingsPct := 0.0
	if totalOriginal > 0 {
		savingsPct = robust.Money(100 * savings / totalOriginal)
	}
	profitPerHour := 0.0
	if totalHours > 0 {
		profitPerHour = robust.Money(totalProfit / totalHours)
	}

	return api.BatchResult{
		Items:          enriched,
		TotalOriginal:  robust.Money(totalOriginal),
		TotalOptimized: robust.Money(totalOptimized),
		TotalSavings:   savings,
		SavingsPercent: savingsPct,
		TotalHours:     robust.Money(totalHours),
		TotalProfit:    robust.Money(totalProfit),
		ProfitPerHour:  profitPerHour,
		ElapsedSec:     robust.Round2(time.Since(start).Seconds()),
	}, nil
}
