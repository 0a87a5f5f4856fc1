package api

import (
	"net/http"

	"leadscore-backtest/qualification"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.scorer != nil && s.scorer.Catalog() != nil,
		Timestamp:   s.now().UTC(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	cat := s.scorer.Catalog()

	industry := make(map[string]float64, len(cat.IndustryMultipliers))
	for _, m := range cat.IndustryMultipliers {
		industry[m.Key] = m.Value
	}

	categories := make(map[string]int)
	for _, t := range []struct {
		name  string
		count int
	}{
		{cat.Strength.Name, len(cat.Strength.Categories)},
		{cat.Industries.Name, len(cat.Industries.Categories)},
		{cat.UseCases.Name, len(cat.UseCases.Categories)},
		{cat.Enterprise.Name, len(cat.Enterprise.Categories)},
		{cat.Scale.Name, len(cat.Scale.Categories)},
		{cat.Urgency.Name, len(cat.Urgency.Categories)},
		{cat.Competitors.Name, len(cat.Competitors.Categories)},
		{cat.Geography.Name, len(cat.Geography.Categories)},
	} {
		categories[t.name] = t.count
	}

	writeJSON(w, http.StatusOK, ModelInfo{
		ModelVersion: cat.Version,
		Approach:     "Keyword signal tables scored on strength, scale, urgency and industry fit",
		Thresholds: map[string]float64{
			"qualified":       qualification.Threshold,
			"high_confidence": 0.8,
		},
		Weights:             cat.Weights,
		ScaleMultipliers:    cat.ScaleMultipliers,
		IndustryMultipliers: industry,
		Categories:          categories,
		WebsiteCache:        s.cache.Enabled(),
	})
}
