package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosmorenolosa/corsam-pricing/internal/pricing"
	"github.com/carlosmorenolosa/corsam-pricing/internal/vectorindex"
	"github.com/carlosmorenolosa/corsam-pricing/pkg/api"
)

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float64{0.5}, nil
}

type stubIndex struct {
	calls   int
	matches []vectorindex.Match
}

func (s *stubIndex) Query(ctx context.Context, vector []float64, topK int) ([]vectorindex.Match, error) {
	s.calls++
	return s.matches, nil
}

type stubCounter struct {
	count      int
	countErr   error
	incrErr    error
	increments int
}

func (s *stubCounter) Count(ctx context.Context, period string) (int, error) {
	return s.count, s.countErr
}

func (s *stubCounter) Increment(ctx context.Context, period string) (int, error) {
	if s.incrErr != nil {
		return 0, s.incrErr
	}
	s.increments++
	s.count++
	return s.count, nil
}

func f(v float64) *float64 { return &v }

func newTestServer(emb *stubEmbedder, idx *stubIndex, counter *stubCounter) *Server {
	estimator := pricing.NewEstimator(emb, idx, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.MaxMonthlyUses = 20
	if counter == nil {
		// Typed nil in the interface would defeat the nil check.
		return New(estimator, nil, nil, cfg, zerolog.Nop())
	}
	return New(estimator, counter, nil, cfg, zerolog.Nop())
}

func postEstimate(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/estimate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestEstimateRejectsMalformedBody(t *testing.T) {
	s := newTestServer(&stubEmbedder{}, &stubIndex{}, nil)

	rec := postEstimate(t, s, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postEstimate(t, s, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postEstimate(t, s, `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postEstimate(t, s, `{"items":[{"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postEstimate(t, s, `{"items":[{"description":"x"}],"targetRate":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateHappyPath(t *testing.T) {
	idx := &stubIndex{matches: []vectorindex.Match{
		{Score: 0.8, Metadata: vectorindex.Metadata{Hours: f(2), Material: f(10), Cost: f(80)}},
	}}
	s := newTestServer(&stubEmbedder{}, idx, nil)

	rec := postEstimate(t, s, `{"items":[{"description":"tabique","quantity":2,"currentPrice":150}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res api.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	// price = 2*50 + 10*1.3 = 113 with the default rate and margin
	assert.Equal(t, 226.0, res.TotalOptimized)
	assert.Equal(t, 300.0, res.TotalOriginal)
	assert.Nil(t, res.Usage)
}

func TestEstimateHonorsRequestRateAndMargin(t *testing.T) {
	idx := &stubIndex{matches: []vectorindex.Match{
		{Score: 0.8, Metadata: vectorindex.Metadata{Hours: f(1), Material: f(100)}},
	}}
	s := newTestServer(&stubEmbedder{}, idx, nil)

	rec := postEstimate(t, s, `{"items":[{"description":"x","quantity":1}],"targetRate":40,"materialsMargin":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res api.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	// 1*40 + 100*1.1 = 150
	assert.Equal(t, 150.0, res.TotalOptimized)
}

func TestQuotaExhaustedShortCircuits(t *testing.T) {
	emb := &stubEmbedder{}
	idx := &stubIndex{}
	counter := &stubCounter{count: 20}
	s := newTestServer(emb, idx, counter)

	rec := postEstimate(t, s, `{"items":[{"description":"x"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A rejected request must not pay for retrieval.
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, 0, idx.calls)
	assert.Equal(t, 0, counter.increments)
}

func TestQuotaIncrementFailureIsServerError(t *testing.T) {
	counter := &stubCounter{count: 1, incrErr: errors.New("dynamo down")}
	s := newTestServer(&stubEmbedder{}, &stubIndex{}, counter)

	rec := postEstimate(t, s, `{"items":[{"description":"x"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQuotaReportsUsage(t *testing.T) {
	counter := &stubCounter{count: 4}
	s := newTestServer(&stubEmbedder{}, &stubIndex{}, counter)

	rec := postEstimate(t, s, `{"items":[{"description":"x","currentPrice":10}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res api.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Usage)
	assert.Equal(t, 5, res.Usage.Current)
	assert.Equal(t, 20, res.Usage.Max)
}

func TestCollaboratorFailureAbortsBatch(t *testing.T) {
	s := newTestServer(&stubEmbedder{err: errors.New("provider down")}, &stubIndex{}, nil)

	rec := postEstimate(t, s, `{"items":[{"description":"x"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&stubEmbedder{}, &stubIndex{}, nil)
	h := s.Handler()

	for _, path := range []string{"/health", "/health/ready", "/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
