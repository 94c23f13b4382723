// Package pricing derives optimized prices for budget line items from
// similar historical items.
package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carlosmorenolosa/corsam-pricing/internal/embedding"
	"github.com/carlosmorenolosa/corsam-pricing/internal/vectorindex"
	"github.com/carlosmorenolosa/corsam-pricing/pkg/api"
	"github.com/carlosmorenolosa/corsam-pricing/pkg/robust"
)

// defaultNearDuplicateScore marks a retrieved match as near-identical
// to the queried description. Above it the estimate is driven by the
// few best matches instead of being diluted by weaker analogues.
const defaultNearDuplicateScore = 0.90

// narrowWindow is the effective window size used when a near-duplicate
// leads the ranking.
const narrowWindow = 3

// Params are the per-request estimation knobs.
type Params struct {
	TopK       int     // neighbors to retrieve
	TargetRate float64 // currency per labor hour
	MarginPct  float64 // percentage markup on materials
}

// Estimator prices one line item from its historical neighbors.
type Estimator struct {
	embedder  embedding.Embedder
	index     vectorindex.Index
	threshold float64
	log       zerolog.Logger
}

// NewEstimator creates an estimator over the given collaborators.
func NewEstimator(e embedding.Embedder, idx vectorindex.Index, log zerolog.Logger) *Estimator {
	return &Estimator{
		embedder:  e,
		index:     idx,
		threshold: defaultNearDuplicateScore,
		log:       log,
	}
}

// WithThreshold overrides the near-duplicate score cutoff.
func (e *Estimator) WithThreshold(score float64) *Estimator {
	if score > 0 {
		e.threshold = score
	}
	return e
}

// chooseEffectiveWindow decides how many retrieved matches actually
// feed the aggregation. A near-duplicate best match narrows the window
// to the top few; otherwise every retrieved match is used. Returns the
// windowed slice and the count used.
func chooseEffectiveWindow(matches []vectorindex.Match, requestedK int, threshold float64) ([]vectorindex.Match, int) {
	k := requestedK
	if len(matches) > 0 && matches[0].Score >= threshold {
		k = narrowWindow
	}
	if k > len(matches) {
		k = len(matches)
	}
	if k < 0 {
		k = 0
	}
	return matches[:k], k
}

// Estimate prices a single item: embed its description, retrieve the
// top-k similar historical items, reduce their unit economics with
// zero-resistant medians, and derive price, profit and productivity.
// The input item is never mutated. Collaborator failures propagate;
// malformed historical data degrades to missing.
func (e *Estimator) Estimate(ctx context.Context, item api.LineItem, p Params) (api.EnrichedItem, error) {
	vec, err := e.embedder.Embed(ctx, item.Description)
	if err != nil {
		return api.EnrichedItem{}, fmt.Errorf("embedding description: %w", err)
	}

	matches, err := e.index.Query(ctx, vec, p.TopK)
	if err != nil {
		return api.EnrichedItem{}, fmt.Errorf("querying similar items: %w", err)
	}

	window, kUsed := chooseEffectiveWindow(matches, p.TopK, e.threshold)

	hoursMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Hours })))
	materialMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Material })))
	subcMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Subcontract })))
	laborMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Labor })))
	costMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Cost })))
	saleMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Sale })))
	benefMed := robust.Money(robust.MedianNonZero(gather(window, func(m vectorindex.Metadata) *float64 { return m.Profitability })))

	// Price model: labor at the target hourly rate plus materials with
	// the configured markup. The cost median already includes material,
	// so profit subtracts it once.
	optimized := robust.Money(hoursMed*p.TargetRate + materialMed*(1+p.MarginPct/100))
	profit := robust.Money(optimized - costMed)
	rentHour := 0.0
	if hoursMed > 0 {
		rentHour = robust.Money(profit / hoursMed)
	}

	calcPrices := make([]float64, 0, len(window))
	for _, m := range window {
		calcPrices = append(calcPrices, matchPrice(m.Metadata, p))
	}
	priceStd := robust.Money(robust.SampleStdDev(calcPrices))

	enriched := api.EnrichedItem{
		LineItem:       item,
		OptimizedPrice: optimized,
		HoursUnit:      hoursMed,
		MaterialUnit:   materialMed,
		ContrataUnit:   subcMed,
		ManoObraUnit:   laborMed,
		CostTotalUnit:  costMed,
		VentaHistUnit:  saleMed,
		BenefHistUnit:  benefMed,
		ProfitUnit:     profit,
		RentHour:       rentHour,
		PriceStdDev:    priceStd,
		Supplier:       supplierConsensus(matches),
		Similar:        matchViews(matches, p),
		KUsed:          kUsed,
	}

	// A price of 0 means no usable history. Never surface it when the
	// item carried a real price of its own.
	if optimized != 0 {
		enriched.Savings = robust.Money(item.CurrentPrice - optimized)
	} else {
		enriched.OptimizedPrice = item.CurrentPrice
	}

	e.log.Debug().
		Str("description", item.Description).
		Int("matches", len(matches)).
		Int("k_used", kUsed).
		Float64("optimized_price", enriched.OptimizedPrice).
		Msg("item estimated")

	return enriched, nil
}

// gather collects the present values of one dimension across matches.
func gather(matches []vectorindex.Match, pick func(vectorindex.Metadata) *float64) []float64 {
	vals := make([]float64, 0, len(matches))
	for _, m := range matches {
		if p := pick(m.Metadata); p != nil {
			vals = append(vals, *p)
		}
	}
	return vals
}

// matchPrice applies the price model to one match's own units.
func matchPrice(md vectorindex.Metadata, p Params) float64 {
	h := vectorindex.Value(md.Hours)
	mat := vectorindex.Value(md.Material)
	return robust.Money(h*p.TargetRate + mat*(1+p.MarginPct/100))
}

// matchViews derives per-match economics for every retrieved match,
// not just the effective window, so callers can inspect what the
// estimate was built from.
func matchViews(matches []vectorindex.Match, p Params) []api.MatchView {
	views := make([]api.MatchView, 0, len(matches))
	for _, m := range matches {
		md := m.Metadata
		calc := matchPrice(md, p)
		cost := vectorindex.Value(md.Cost)
		hours := vectorindex.Value(md.Hours)
		profit := robust.Money(calc - cost)
		rent := 0.0
		if hours != 0 {
			rent = robust.Money(profit / hours)
		}
		views = append(views, api.MatchView{
			Code:          md.Code,
			Desc:          combineDesc(md.DescPre, md.DescPpy),
			HoursUnit:     hours,
			MaterialUnit:  vectorindex.Value(md.Material),
			ContrataUnit:  vectorindex.Value(md.Subcontract),
			ManoObraUnit:  vectorindex.Value(md.Labor),
			CosteUnit:     cost,
			VentaUnit:     vectorindex.Value(md.Sale),
			Supplier:      md.Supplier,
			CalcPrice:     calc,
			ProfitUnit:    profit,
			RentHour:      rent,
			SimilarityPct: robust.Round2(m.Score * 100),
		})
	}
	return views
}

func combineDesc(pre, ppy string) string {
	return strings.Trim(pre+" || "+ppy, " |")
}

// supplierConsensus returns the most frequent non-empty supplier among
// the matches. Ties go to the supplier seen first in rank order.
func supplierConsensus(matches []vectorindex.Match) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, m := range matches {
		s := m.Metadata.Supplier
		if s == "" {
			continue
		}
		if _, ok := counts[s]; !ok {
			firstSeen[s] = i
		}
		counts[s]++
	}
	best := ""
	for s, n := range counts {
		switch {
		case best == "",
			n > counts[best],
			n == counts[best] && firstSeen[s] < firstSeen[best]:
			best = s
		}
	}
	return best
}
