package types

// ConfidenceBucket holds per-confidence qualification statistics
type ConfidenceBucket struct {
	Confidence string  `json:"confidence"`
	Count      int64   `json:"count"`
	AvgScore   float64 `json:"avg_score"`
}

// BacktestSummary is the aggregate view over qualifications and progressions.
// It is derived on demand and never stored as state.
type BacktestSummary struct {
	// Qualification side
	TotalContacts  int64   `json:"total_contacts"`
	ModelQualified int64   `json:"model_qualified"`
	AvgScore       float64 `json:"avg_score"`
	HighConfidence int64   `json:"high_confidence"`
	LowConfidence  int64   `json:"low_confidence"`
	Fallbacks      int64   `json:"fallbacks"`

	// Progression side
	AnalyzedContacts int64   `json:"analyzed_contacts"`
	DealsProgressed  int64   `json:"deals_progressed"`
	WithOpportunity  int64   `json:"with_opportunity"`
	AvgAlignment     float64 `json:"avg_alignment"`
	HighAlignment    int64   `json:"high_alignment"`
	LowAlignment     int64   `json:"low_alignment"`

	// Confusion matrix over analysed contacts
	TruePositives  int64 `json:"true_positives"`
	FalsePositives int64 `json:"false_positives"`
	TrueNegatives  int64 `json:"true_negatives"`
	FalseNegatives int64 `json:"false_negatives"`

	// Derived rates, zero when undefined
	Accuracy          float64 `json:"accuracy"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	QualificationRate float64 `json:"qualification_rate"`
	ProgressionRate   float64 `json:"progression_rate"`

	ByConfidence []ConfidenceBucket `json:"by_confidence"`
}

// ComputeRates fills the derived rates from the counts
func (s *BacktestSummary) ComputeRates() {
	tp, fp, tn, fn := s.TruePositives, s.FalsePositives, s.TrueNegatives, s.FalseNegatives
	s.Accuracy = ratio(tp+tn, tp+fp+tn+fn)
	s.Precision = ratio(tp, tp+fp)
	s.Recall = ratio(tp, tp+fn)
	s.QualificationRate = ratio(s.ModelQualified, s.TotalContacts)
	s.ProgressionRate = ratio(s.DealsProgressed, s.AnalyzedContacts)
}

// MatrixTotal is TP+FP+TN+FN
func (s *BacktestSummary) MatrixTotal() int64 {
	return s.TruePositives + s.FalsePositives + s.TrueNegatives + s.FalseNegatives
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
