package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadscore-backtest/logger"
	"leadscore-backtest/metrics"
	"leadscore-backtest/qualification"
)

func (s *Server) handleQualifyDomain(w http.ResponseWriter, r *http.Request) {
	var req QualifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		s.respondWithError(w, r, http.StatusBadRequest, "domain field required", nil)
		return
	}

	writeJSON(w, http.StatusOK, s.qualifyDomain(r.Context(), req))
}

func (s *Server) handleQualifyText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.UrgencyLevel < 0 || req.UrgencyLevel > qualification.MaxUrgencyLevel {
		msg := fmt.Sprintf("urgency_level must be between 0 and %d", qualification.MaxUrgencyLevel)
		s.respondWithError(w, r, http.StatusBadRequest, msg, nil)
		return
	}

	res := s.scorer.Score(qualification.Input{
		Text:         req.Text,
		Industry:     req.Industry,
		CompanyName:  req.CompanyName,
		UrgencyLevel: req.UrgencyLevel,
	})
	s.metrics.ObserveQualification(res.Score, res.Qualified, string(res.Confidence))

	writeJSON(w, http.StatusOK, TextResponse{Result: res, Timestamp: s.now().UTC()})
}

func (s *Server) handleQualifyBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Leads == nil {
		s.respondWithError(w, r, http.StatusBadRequest, "leads array required", nil)
		return
	}
	if len(req.Leads) > s.cfg.BatchLimit {
		msg := fmt.Sprintf("Maximum %d leads per batch", s.cfg.BatchLimit)
		s.respondWithError(w, r, http.StatusBadRequest, msg, nil)
		return
	}

	results := make([]QualifyResponse, len(req.Leads))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.cfg.BatchWorkers)
	for i, lead := range req.Leads {
		if strings.TrimSpace(lead.Domain) == "" {
			results[i] = QualifyResponse{Domain: "unknown", Error: "domain field required", Timestamp: s.now().UTC()}
			continue
		}
		g.Go(func() error {
			results[i] = s.qualifyDomain(ctx, lead)
			return nil
		})
	}
	g.Wait()

	writeJSON(w, http.StatusOK, BatchResponse{
		Results:        results,
		TotalProcessed: len(results),
		Timestamp:      s.now().UTC(),
	})
}

// qualifyDomain fetches (or reuses) the website text of a domain and scores
// it. A website that cannot be analyzed yields the fixed fallback score with
// Error set, never a failed request.
func (s *Server) qualifyDomain(ctx context.Context, req QualifyRequest) QualifyResponse {
	domain := strings.TrimSpace(req.Domain)
	resp := QualifyResponse{
		Domain:      domain,
		ContactName: req.ContactName,
		CompanyName: req.CompanyName,
		Timestamp:   s.now().UTC(),
	}

	text, cached, err := s.websiteText(ctx, domain)
	if err != nil {
		s.log.Info("website not analyzable",
			zap.String(logger.FieldDomain, domain),
			zap.String(logger.FieldRequestID, RequestID(ctx)),
			zap.Error(err))
		d := qualification.Decide(qualification.FallbackErrorScore, string(qualification.ConfidenceLow))
		resp.Score = d.Score
		resp.Qualified = d.Qualified
		resp.Confidence = string(d.Confidence)
		resp.Reasoning = []string{"Website content could not be analyzed"}
		resp.Context = qualification.EmptyContext()
		resp.Error = err.Error()
		return resp
	}

	res := s.scorer.Score(qualification.Input{Text: text, CompanyName: req.CompanyName})
	s.metrics.ObserveQualification(res.Score, res.Qualified, string(res.Confidence))

	resp.Score = res.Score
	resp.Qualified = res.Qualified
	resp.Confidence = string(res.Confidence)
	resp.Reasoning = res.Reasoning
	resp.Context = res.Context
	resp.ContentAnalyzed = len([]rune(text))
	resp.Cached = cached
	return resp
}

func (s *Server) websiteText(ctx context.Context, domain string) (string, bool, error) {
	if entry, ok := s.cache.Get(ctx, domain); ok {
		s.metrics.ObserveCacheLookup(metrics.CacheHit)
		return entry.Text, true, nil
	}
	if s.cache.Enabled() {
		s.metrics.ObserveCacheLookup(metrics.CacheMiss)
	} else {
		s.metrics.ObserveCacheLookup(metrics.CacheBypass)
	}

	text, err := s.fetcher.FetchText(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNoContent) {
			s.metrics.ObserveWebsiteFetch(metrics.FetchEmpty)
		} else {
			s.metrics.ObserveWebsiteFetch(metrics.FetchFailed)
		}
		return "", false, err
	}
	s.metrics.ObserveWebsiteFetch(metrics.FetchOK)

	if err := s.cache.Put(ctx, domain, text, s.now()); err != nil {
		s.log.Warn("website cache write failed", zap.String(logger.FieldDomain, domain), zap.Error(err))
	}
	return text, false, nil
}
