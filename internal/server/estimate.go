package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carlosmorenolosa/corsam-pricing/internal/pricing"
	"github.com/carlosmorenolosa/corsam-pricing/internal/usage"
	"github.com/carlosmorenolosa/corsam-pricing/pkg/api"
)

// handleEstimate runs the whole pipeline for one batch: validate,
// quota gate, estimate, roll up, audit. The quota is checked before
// any retrieval work so a rejected request never pays for embeddings.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req api.EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Items) == 0 {
		s.jsonError(w, http.StatusBadRequest, "items is required and must not be empty")
		return
	}
	for i, item := range req.Items {
		if item.Description == "" {
			s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("item %d: description is required", i))
			return
		}
	}

	params := pricing.Params{
		TopK:       s.config.DefaultTopK,
		TargetRate: s.config.DefaultTargetRate,
		MarginPct:  s.config.DefaultMarginPct,
	}
	if req.TargetRate != nil {
		params.TargetRate = *req.TargetRate
	}
	if req.MaterialsMargin != nil {
		params.MarginPct = *req.MaterialsMargin
	}
	if params.TargetRate <= 0 {
		s.jsonError(w, http.StatusBadRequest, "targetRate must be positive")
		return
	}
	if params.MarginPct < 0 {
		s.jsonError(w, http.StatusBadRequest, "materialsMargin must not be negative")
		return
	}

	ctx := r.Context()

	var currentUse int
	if s.counter != nil {
		period := usage.MonthKey(time.Now())
		n, err := s.counter.Count(ctx, period)
		if err != nil {
			s.log.Error().Err(err).Msg("usage counter read failed")
			s.jsonError(w, http.StatusInternalServerError, "usage counter unavailable")
			return
		}
		if n >= s.config.MaxMonthlyUses {
			s.jsonError(w, http.StatusTooManyRequests, "monthly usage limit reached")
			return
		}
		currentUse, err = s.counter.Increment(ctx, period)
		if err != nil {
			s.log.Error().Err(err).Msg("usage counter increment failed")
			s.jsonError(w, http.StatusInternalServerError, "usage counter unavailable")
			return
		}
	}

	result, err := s.estimator.Summarize(ctx, req.Items, params)
	if err != nil {
		s.log.Error().Err(err).Msg("batch estimation failed")
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("estimation failed: %v", err))
		return
	}

	if s.counter != nil {
		result.Usage = &api.UsageInfo{Current: currentUse, Max: s.config.MaxMonthlyUses}
	}

	if s.auditLog != nil {
		if err := s.auditLog.Record(ctx, uuid.New(), result); err != nil {
			// Audit is best-effort; the estimate already succeeded.
			s.log.Warn().Err(err).Msg("recording batch history failed")
		}
	}

	s.jsonResponse(w, http.StatusOK, result)
}
