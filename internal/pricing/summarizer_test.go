package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosmorenolosa/corsam-pricing/internal/vectorindex"
	"github.com/carlosmorenolosa/corsam-pricing/pkg/api"
)

func TestSummarizeWeightsTotalsByQuantity(t *testing.T) {
	// With zero hours and margin 0, each item's optimized price is
	// just its material median: 10 for the first, 20 for the second.
	idx := &sequencedIndex{responses: [][]vectorindex.Match{
		{match(0.8, vectorindex.Metadata{Material: f(10)})},
		{match(0.8, vectorindex.Metadata{Material: f(20)})},
	}}
	e := testEstimator(&stubEmbedder{vec: []float64{1}}, idx)

	items := []api.LineItem{
		{Description: "a", Quantity: 2, CurrentPrice: 15},
		{Description: "b", Quantity: 3, CurrentPrice: 25},
	}
	res, err := e.Summarize(context.Background(), items, Params{TopK: 6, TargetRate: 50, MarginPct: 0})
	require.NoError(t, err)

	// optimized prices are 10 and 20
	assert.Equal(t, 2*15.0+3*25.0, res.TotalOriginal)
	assert.Equal(t, 2*10.0+3*20.0, res.TotalOptimized)
	assert.Equal(t, 105.0-80.0, res.TotalSavings)
	// 100 * 25 / 105 = 23.809... -> 23.81
	assert.Equal(t, 23.81, res.SavingsPercent)
	assert.Equal(t, 0.0, res.TotalHours)
	assert.Equal(t, 0.0, res.ProfitPerHour)
	require.Len(t, res.Items, 2)
	assert.GreaterOrEqual(t, res.ElapsedSec, 0.0)
}

func TestSummarizeEmptyBatch(t *testing.T) {
	e := testEstimator(&stubEmbedder{vec: []float64{1}}, &stubIndex{})
	res, err := e.Summarize(context.Background(), nil, Params{TopK: 6, TargetRate: 50})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.TotalOriginal)
	assert.Equal(t, 0.0, res.SavingsPercent)
	assert.Empty(t, res.Items)
}

func TestSummarizeAbortsOnFirstFailure(t *testing.T) {
	emb := &stubEmbedder{vec: []float64{1}}
	idx := &stubIndex{err: errors.New("index down")}
	e := testEstimator(emb, idx)

	items := []api.LineItem{{Description: "a"}, {Description: "b"}, {Description: "c"}}
	_, err := e.Summarize(context.Background(), items, Params{TopK: 6})
	require.Error(t, err)
	assert.ErrorContains(t, err, `item 0 ("a")`)
	// No partial results: the batch stops at the first failed item.
	assert.Equal(t, 1, idx.calls)
}

// sequencedIndex returns a different canned response per call.
type sequencedIndex struct {
	responses [][]vectorindex.Match
	call      int
}

func (s *sequencedIndex) Query(ctx context.Context, vector []float64, topK int) ([]vectorindex.Match, error) {
	if s.call >= len(s.responses) {
		return nil, nil
	}
	r := s.responses[s.call]
	s.call++
	return r, nil
}
