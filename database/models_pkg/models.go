package models

import "time"

// Qualification sources.
const (
	SourceScorer           = "scorer"
	SourceFallbackNoDomain = "fallback_no_domain"
	SourceFallbackError    = "fallback_error"
)

// Stage classification bases recorded with each progression analysis.
const (
	StageBasisAdvancedKeyword = "advanced_keyword"
	StageBasisEarlyKeyword    = "early_keyword"
	StageBasisDefaultAdvanced = "default_advanced"
	StageBasisEmptyStage      = "empty_stage"
	StageBasisNoOpportunity   = "no_opportunity"
)

// LeadQualification is the model's verdict on one CRM contact.
// There is at most one row per contact; re-scoring overwrites it.
//
// Key Fields:
//   - ContactID: CRM contact id, the natural key
//   - QualificationScore: score on [0,1]
//   - IsQualified: always equal to score >= the qualification threshold
//   - Confidence: LOW, UNCERTAIN, CONFIDENT or HIGH
//   - Reasoning: ordered explanation lines (at most four)
//   - Source: scorer, or the fallback that produced the row
//   - ProcessedAt: time of the last write
type LeadQualification struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ContactID            string     `gorm:"size:32;uniqueIndex;not null" json:"contact_id"`
	ContactName          string     `gorm:"size:255" json:"contact_name"`
	CompanyName          string     `gorm:"size:255" json:"company_name"`
	Email                string     `gorm:"size:255" json:"email"`
	Domain               string     `gorm:"size:255;index" json:"domain"`
	AccountID            string     `gorm:"size:32;index" json:"account_id"`
	ContactCreatedAt     *time.Time `json:"contact_created_at,omitempty"`
	QualificationScore   float64    `gorm:"not null" json:"qualification_score"`
	IsQualified          bool       `gorm:"not null;index" json:"is_qualified"`
	Confidence           string     `gorm:"size:16;not null" json:"confidence"`
	Industries           []string   `gorm:"serializer:json;type:text" json:"industries"`
	UseCases             []string   `gorm:"serializer:json;type:text" json:"use_cases"`
	EnterpriseIndicators []string   `gorm:"serializer:json;type:text" json:"enterprise_indicators"`
	Reasoning            []string   `gorm:"serializer:json;type:text" json:"reasoning"`
	Source               string     `gorm:"size:32;not null" json:"source"`
	ErrorDetail          string     `gorm:"type:text" json:"error_detail,omitempty"`
	ContentLength        int        `json:"content_length"`
	ProcessedAt          time.Time  `gorm:"not null;index" json:"processed_at"`

	// The foreign key lives on deal_progressions.contact_id
	Progression *DealProgression `gorm:"foreignKey:ContactID;references:ContactID" json:"-"`
}

// TableName specifies the table name for LeadQualification
func (LeadQualification) TableName() string {
	return "lead_qualifications"
}

// DealProgression records what actually happened in the pipeline for a
// qualified-or-not contact, and how well the model's call matched it.
// Rows are write-once.
type DealProgression struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ContactID       string    `gorm:"size:32;uniqueIndex;not null" json:"contact_id"`
	AccountID       string    `gorm:"size:32;index" json:"account_id"`
	OpportunityID   string    `gorm:"size:32" json:"opportunity_id"`
	OpportunityName string    `gorm:"size:255" json:"opportunity_name"`
	StageName       string    `gorm:"size:128" json:"stage_name"`
	BeyondStageOne  bool      `gorm:"not null" json:"beyond_stage_one"`
	StageBasis      string    `gorm:"size:32;not null" json:"stage_basis"`
	AEOwner         string    `gorm:"column:ae_owner;size:255" json:"ae_owner"`
	AEReasoning     string    `gorm:"column:ae_reasoning;type:text" json:"ae_reasoning"`
	CloseDate       string    `gorm:"size:32" json:"close_date"`
	Amount          *float64  `json:"amount,omitempty"`
	WinReason       string    `gorm:"type:text" json:"win_reason"`
	LossReason      string    `gorm:"type:text" json:"loss_reason"`
	ModelScore      float64   `gorm:"not null" json:"model_score"`
	ModelQualified  bool      `gorm:"not null" json:"model_qualified"`
	ModelReasoning  string    `gorm:"type:text" json:"model_reasoning"`
	AlignmentScore  float64   `gorm:"not null;index" json:"alignment_score"`
	AnalysisNotes   string    `gorm:"type:text" json:"analysis_notes"`
	AnalyzedAt      time.Time `gorm:"not null" json:"analyzed_at"`
}

// TableName specifies the table name for DealProgression
func (DealProgression) TableName() string {
	return "deal_progressions"
}

// BacktestSummaryRecord is a point-in-time snapshot of the backtest summary,
// appended once per coordinator run.
type BacktestSummaryRecord struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID            string    `gorm:"size:36;index;not null" json:"run_id"`
	AnalysisDate     time.Time `gorm:"not null;index" json:"analysis_date"`
	TotalContacts    int64     `json:"total_contacts"`
	ModelQualified   int64     `json:"model_qualified"`
	AnalyzedContacts int64     `json:"analyzed_contacts"`
	DealsProgressed  int64     `json:"deals_progressed"`
	TruePositives    int64     `json:"true_positives"`
	FalsePositives   int64     `json:"false_positives"`
	TrueNegatives    int64     `json:"true_negatives"`
	FalseNegatives   int64     `json:"false_negatives"`
	Accuracy         float64   `json:"accuracy"`
	Precision        float64   `json:"precision"`
	Recall           float64   `json:"recall"`
	AvgAlignment     float64   `json:"avg_alignment"`
	Insights         []string  `gorm:"serializer:json;type:text" json:"insights"`
}

// TableName specifies the table name for BacktestSummaryRecord
func (BacktestSummaryRecord) TableName() string {
	return "backtest_summary"
}
