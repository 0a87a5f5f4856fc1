package api

import (
	"time"

	"leadscore-backtest/qualification"
	"leadscore-backtest/signals"
)

// QualifyRequest asks for the qualification of a company domain.
type QualifyRequest struct {
	Domain      string `json:"domain"`
	ContactName string `json:"contact_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// QualifyResponse is the scorer's answer for one domain. Error is set when
// the website could not be analyzed; the score is then the fixed fallback.
type QualifyResponse struct {
	Domain          string                        `json:"domain"`
	ContactName     string                        `json:"contact_name"`
	CompanyName     string                        `json:"company_name"`
	Score           float64                       `json:"qualification_score"`
	Qualified       bool                          `json:"is_qualified"`
	Confidence      string                        `json:"confidence"`
	Reasoning       []string                      `json:"reasoning"`
	Context         qualification.BusinessContext `json:"business_context"`
	ContentAnalyzed int                           `json:"content_analyzed"`
	Cached          bool                          `json:"cached,omitempty"`
	Error           string                        `json:"error,omitempty"`
	Timestamp       time.Time                     `json:"timestamp"`
}

// TextRequest scores raw text such as a call transcript.
type TextRequest struct {
	Text         string `json:"text"`
	Industry     string `json:"industry,omitempty"`
	UrgencyLevel int    `json:"urgency_level,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
}

// TextResponse is the full scorer result for a TextRequest.
type TextResponse struct {
	qualification.Result
	Timestamp time.Time `json:"timestamp"`
}

// BatchRequest qualifies several domains at once.
type BatchRequest struct {
	Leads []QualifyRequest `json:"leads"`
}

// BatchResponse keeps results in request order.
type BatchResponse struct {
	Results        []QualifyResponse `json:"results"`
	TotalProcessed int               `json:"total_processed"`
	Timestamp      time.Time         `json:"timestamp"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string    `json:"status"`
	ModelLoaded bool      `json:"model_loaded"`
	Timestamp   time.Time `json:"timestamp"`
}

// ModelInfo describes the loaded signal tables.
type ModelInfo struct {
	ModelVersion        string             `json:"model_version"`
	Approach            string             `json:"approach"`
	Thresholds          map[string]float64 `json:"thresholds"`
	Weights             signals.Weights    `json:"weights"`
	ScaleMultipliers    map[string]float64 `json:"scale_multipliers"`
	IndustryMultipliers map[string]float64 `json:"industry_multipliers"`
	Categories          map[string]int     `json:"categories"`
	WebsiteCache        bool               `json:"website_cache"`
}
