// Package qualification turns extracted signals into a qualification score,
// a confidence bucket and ordered human-readable reasoning.
package qualification

import (
	"math"
	"strings"

	"leadscore-backtest/signals"
)

// MaxUrgencyLevel caps the caller supplied urgency level.
const MaxUrgencyLevel = 5

// Input is the text to be scored with its optional hints.
type Input struct {
	Text         string
	Industry     string
	CompanyName  string
	UrgencyLevel int
}

// BusinessContext lists the labels of the categories detected in the text.
type BusinessContext struct {
	Industries           []string `json:"industries"`
	UseCases             []string `json:"use_cases"`
	EnterpriseIndicators []string `json:"enterprise_indicators"`
	Competitors          []string `json:"competitors"`
	Markets              []string `json:"markets"`
}

// Breakdown exposes the intermediate values of a score, in points.
type Breakdown struct {
	BasePoints         float64 `json:"base_points"`
	StrengthCategory   string  `json:"strength_category"`
	StrengthPoints     float64 `json:"strength_points"`
	Scale              string  `json:"scale"`
	ScaleMultiplier    float64 `json:"scale_multiplier"`
	UrgencyPoints      float64 `json:"urgency_points"`
	IndustryMatch      string  `json:"industry_match,omitempty"`
	IndustryMultiplier float64 `json:"industry_multiplier"`
	Points             float64 `json:"points"`
}

// Result is the output of Score.
type Result struct {
	Score           float64         `json:"qualification_score"`
	Qualified       bool            `json:"is_qualified"`
	Confidence      ConfidenceLevel `json:"confidence"`
	ConfidenceValue float64         `json:"confidence_value"`
	Reasoning       []string        `json:"reasoning"`
	Context         BusinessContext `json:"business_context"`
	Breakdown       Breakdown       `json:"breakdown"`
}

// Scorer scores text against a compiled signal catalog. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	catalog *signals.Catalog
}

// NewScorer creates a scorer over the given catalog.
func NewScorer(catalog *signals.Catalog) *Scorer {
	return &Scorer{catalog: catalog}
}

// Catalog returns the tables the scorer was built with.
func (s *Scorer) Catalog() *signals.Catalog {
	return s.catalog
}

// Score computes the qualification of in. It never fails: empty text yields
// the minimum score with LOW confidence.
func (s *Scorer) Score(in Input) Result {
	if strings.TrimSpace(in.Text) == "" {
		return Result{
			Score:      MinScore,
			Qualified:  IsQualified(MinScore),
			Confidence: ConfidenceLow,
			Reasoning:  []string{"No text content available to analyze"},
			Context:    EmptyContext(),
			Breakdown:  Breakdown{Points: MinScore * 100, ScaleMultiplier: 1, IndustryMultiplier: 1},
		}
	}

	w := s.catalog.Weights
	level := in.UrgencyLevel
	if level < 0 {
		level = 0
	}
	if level > MaxUrgencyLevel {
		level = MaxUrgencyLevel
	}

	strength := signals.Extract(in.Text, s.catalog.Strength)
	scaleFeats := signals.Extract(strings.TrimSpace(in.Text+" "+in.Industry), s.catalog.Scale)
	urgency := signals.Extract(in.Text, s.catalog.Urgency)
	ctx := s.businessContext(in.Text)

	// signal strength
	strongest := strength.Strongest()
	strengthPoints := math.Min(100, strongest.Weighted*w.StrengthScale)
	strengthConf := math.Min(1, float64(len(strength.MatchedPhrases()))*0.2)

	// scale
	bucket, scaleConf := pickScale(scaleFeats)
	scaleMult := s.catalog.ScaleMultipliers[bucket]

	// urgency
	urgencyHits := urgency.Total()
	urgencyPoints := math.Min(100, math.Max(
		float64(urgencyHits)*w.UrgencyTextPoints,
		float64(level)*w.UrgencyLevelPoints,
	))
	urgencyConf := math.Min(1, 0.3+0.1*float64(urgencyHits)+0.1*float64(level))

	// industry
	industryLabel := in.Industry
	if strings.TrimSpace(industryLabel) == "" {
		industryLabel = strings.Join(ctx.Industries, ", ")
	}
	industryKey, industryMult := s.industryMultiplier(industryLabel)

	points := (w.BaseScore + strengthPoints*w.StrengthFactor) * scaleMult
	points += urgencyPoints * w.UrgencyFactor
	points *= industryMult
	points = clamp(math.Round(points), w.MinPoints, w.MaxPoints)
	score := points / 100

	confValue := (strengthConf + scaleConf + urgencyConf) / 3

	res := Result{
		Score:           score,
		Qualified:       IsQualified(score),
		Confidence:      ConfidenceFor(confValue),
		ConfidenceValue: math.Round(confValue*1000) / 1000,
		Context:         ctx,
		Breakdown: Breakdown{
			BasePoints:         w.BaseScore,
			StrengthCategory:   strongest.Label,
			StrengthPoints:     strengthPoints,
			Scale:              bucket,
			ScaleMultiplier:    scaleMult,
			UrgencyPoints:      urgencyPoints,
			IndustryMatch:      industryKey,
			IndustryMultiplier: industryMult,
			Points:             points,
		},
	}
	res.Reasoning = buildReasoning(reasonInputs{
		strongest:      strongest,
		strengthPoints: strengthPoints,
		scale:          scaleFeats.Get(bucket),
		bucket:         bucket,
		urgency:        urgency,
		urgencyPoints:  urgencyPoints,
		urgencyLevel:   level,
		industryKey:    industryKey,
		industryMult:   industryMult,
	})
	return res
}

// pickScale returns the bucket with the most hits and its share of all hits.
// Ties go to the lower bucket, so no hits at all means small.
func pickScale(feats signals.Features) (string, float64) {
	best := signals.ScaleSmall
	bestCount := feats.Get(best).Count
	total := 0
	for _, bucket := range signals.ScaleBuckets {
		c := feats.Get(bucket).Count
		total += c
		if c > bestCount {
			best, bestCount = bucket, c
		}
	}
	if total == 0 {
		return best, 0
	}
	return best, float64(bestCount) / float64(total)
}

// industryMultiplier returns the highest multiplier whose key occurs in label.
func (s *Scorer) industryMultiplier(label string) (string, float64) {
	if strings.TrimSpace(label) == "" {
		return "", 1.0
	}
	key, mult := "", 1.0
	for _, m := range s.catalog.IndustryMultipliers {
		if !m.Matches(label) {
			continue
		}
		if key == "" || m.Value > mult {
			key, mult = m.Key, m.Value
		}
	}
	return key, mult
}

func (s *Scorer) businessContext(text string) BusinessContext {
	return BusinessContext{
		Industries:           signals.Extract(text, s.catalog.Industries).PresentLabels(),
		UseCases:             signals.Extract(text, s.catalog.UseCases).PresentLabels(),
		EnterpriseIndicators: signals.Extract(text, s.catalog.Enterprise).PresentLabels(),
		Competitors:          signals.Extract(text, s.catalog.Competitors).MatchedPhrases(),
		Markets:              signals.Extract(text, s.catalog.Geography).PresentLabels(),
	}
}

// EmptyContext is a context with no detected labels. Lists are non-nil so
// they encode as [] rather than null.
func EmptyContext() BusinessContext {
	return BusinessContext{
		Industries:           []string{},
		UseCases:             []string{},
		EnterpriseIndicators: []string{},
		Competitors:          []string{},
		Markets:              []string{},
	}
}
