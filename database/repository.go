package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadscore-backtest/database/types"
	"leadscore-backtest/qualification"
)

// qualificationUpdateColumns are overwritten when a contact is re-scored
var qualificationUpdateColumns = []string{
	"contact_name", "company_name", "email", "domain", "account_id",
	"contact_created_at", "qualification_score", "is_qualified", "confidence",
	"industries", "use_cases", "enterprise_indicators", "reasoning",
	"source", "error_detail", "content_length", "processed_at",
}

// BacktestRepository handles database operations for the backtest tables
type BacktestRepository struct {
	db  *Database
	now func() time.Time
}

// NewBacktestRepository creates a new backtest repository
func NewBacktestRepository(db *Database) *BacktestRepository {
	return &BacktestRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// InitSchema creates or migrates the backtest tables
func (r *BacktestRepository) InitSchema(ctx context.Context) error {
	err := r.db.db.WithContext(ctx).AutoMigrate(
		&LeadQualification{},
		&DealProgression{},
		&BacktestSummaryRecord{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// Ping checks the store is reachable
func (r *BacktestRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// ============================================================================
// Qualifications
// ============================================================================

// UpsertQualification inserts or replaces the qualification of a contact.
// ProcessedAt is set to the time of this write.
func (r *BacktestRepository) UpsertQualification(ctx context.Context, q *LeadQualification) error {
	if err := validateQualification(q); err != nil {
		return err
	}
	q.ProcessedAt = r.now()

	err := r.db.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_id"}},
		DoUpdates: clause.AssignmentColumns(qualificationUpdateColumns),
	}).Create(q).Error
	if err != nil {
		return WrapDBError("UpsertQualification", err)
	}
	return nil
}

// GetQualification returns the qualification of a contact
func (r *BacktestRepository) GetQualification(ctx context.Context, contactID string) (*LeadQualification, error) {
	var q LeadQualification
	err := r.db.db.WithContext(ctx).Where("contact_id = ?", contactID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundErrorWithID("qualification", contactID)
	}
	if err != nil {
		return nil, WrapDBError("GetQualification", err)
	}
	return &q, nil
}

// FetchPendingForAlignment returns qualifications that have no progression
// analysis yet, oldest first
func (r *BacktestRepository) FetchPendingForAlignment(ctx context.Context, limit int) ([]LeadQualification, error) {
	var pending []LeadQualification

	db := r.db.db.WithContext(ctx)
	subQuery := db.Model(&DealProgression{}).Select("contact_id")

	query := db.Where("contact_id NOT IN (?)", subQuery).
		Order("processed_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&pending).Error; err != nil {
		return nil, WrapDBError("FetchPendingForAlignment", err)
	}
	return pending, nil
}

// PendingCount returns the number of qualifications awaiting analysis
func (r *BacktestRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64

	db := r.db.db.WithContext(ctx)
	subQuery := db.Model(&DealProgression{}).Select("contact_id")

	err := db.Model(&LeadQualification{}).
		Where("contact_id NOT IN (?)", subQuery).
		Count(&count).Error
	if err != nil {
		return 0, WrapDBError("PendingCount", err)
	}
	return count, nil
}

// ============================================================================
// Progressions
// ============================================================================

// StoreProgressionAnalysis writes the progression analysis of a contact.
// It fails with ErrUnknownContact when no qualification exists and with
// ErrAlreadyAnalyzed when the contact was analysed before; the existing row
// is never modified.
func (r *BacktestRepository) StoreProgressionAnalysis(ctx context.Context, p *DealProgression) error {
	if strings.TrimSpace(p.ContactID) == "" {
		return NewValidationErrorWithValue("contact_id", "must not be empty", p.ContactID)
	}
	if p.AlignmentScore < 0 || p.AlignmentScore > 1 {
		return NewValidationErrorWithValue("alignment_score", "must be within [0,1]", p.AlignmentScore)
	}
	if p.AnalyzedAt.IsZero() {
		p.AnalyzedAt = r.now()
	}

	return r.db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&LeadQualification{}).Where("contact_id = ?", p.ContactID).Count(&count).Error; err != nil {
			return WrapDBError("StoreProgressionAnalysis", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownContact, p.ContactID)
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contact_id"}},
			DoNothing: true,
		}).Create(p)
		if res.Error != nil {
			return WrapDBError("StoreProgressionAnalysis", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyAnalyzed, p.ContactID)
		}
		return nil
	})
}

// GetProgression returns the progression analysis of a contact
func (r *BacktestRepository) GetProgression(ctx context.Context, contactID string) (*DealProgression, error) {
	var p DealProgression
	err := r.db.db.WithContext(ctx).Where("contact_id = ?", contactID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundErrorWithID("progression", contactID)
	}
	if err != nil {
		return nil, WrapDBError("GetProgression", err)
	}
	return &p, nil
}

// ============================================================================
// Summary
// ============================================================================

// ComputeSummary aggregates both tables into the backtest summary. It does
// not write anything.
func (r *BacktestRepository) ComputeSummary(ctx context.Context) (*types.BacktestSummary, error) {
	db := r.db.db.WithContext(ctx)

	var quals struct {
		TotalContacts  int64
		ModelQualified int64
		AvgScore       float64
		HighConfidence int64
		LowConfidence  int64
		Fallbacks      int64
	}
	err := db.Raw(`
		SELECT
			COUNT(*) AS total_contacts,
			COALESCE(SUM(CASE WHEN is_qualified THEN 1 ELSE 0 END), 0) AS model_qualified,
			COALESCE(AVG(qualification_score), 0) AS avg_score,
			COALESCE(SUM(CASE WHEN confidence IN ('HIGH', 'CONFIDENT') THEN 1 ELSE 0 END), 0) AS high_confidence,
			COALESCE(SUM(CASE WHEN confidence = 'LOW' THEN 1 ELSE 0 END), 0) AS low_confidence,
			COALESCE(SUM(CASE WHEN source <> 'scorer' THEN 1 ELSE 0 END), 0) AS fallbacks
		FROM lead_qualifications
	`).Scan(&quals).Error
	if err != nil {
		return nil, WrapDBError("ComputeSummary", err)
	}

	var progress struct {
		AnalyzedContacts int64
		DealsProgressed  int64
		WithOpportunity  int64
		AvgAlignment     float64
		HighAlignment    int64
		LowAlignment     int64
		TruePositives    int64
		FalsePositives   int64
		TrueNegatives    int64
		FalseNegatives   int64
	}
	err = db.Raw(`
		SELECT
			COUNT(*) AS analyzed_contacts,
			COALESCE(SUM(CASE WHEN dp.beyond_stage_one THEN 1 ELSE 0 END), 0) AS deals_progressed,
			COALESCE(SUM(CASE WHEN dp.opportunity_id <> '' THEN 1 ELSE 0 END), 0) AS with_opportunity,
			COALESCE(AVG(dp.alignment_score), 0) AS avg_alignment,
			COALESCE(SUM(CASE WHEN dp.alignment_score > 0.8 THEN 1 ELSE 0 END), 0) AS high_alignment,
			COALESCE(SUM(CASE WHEN dp.alignment_score < 0.4 THEN 1 ELSE 0 END), 0) AS low_alignment,
			COALESCE(SUM(CASE WHEN dp.model_qualified AND dp.beyond_stage_one THEN 1 ELSE 0 END), 0) AS true_positives,
			COALESCE(SUM(CASE WHEN dp.model_qualified AND NOT dp.beyond_stage_one THEN 1 ELSE 0 END), 0) AS false_positives,
			COALESCE(SUM(CASE WHEN NOT dp.model_qualified AND NOT dp.beyond_stage_one THEN 1 ELSE 0 END), 0) AS true_negatives,
			COALESCE(SUM(CASE WHEN NOT dp.model_qualified AND dp.beyond_stage_one THEN 1 ELSE 0 END), 0) AS false_negatives
		FROM deal_progressions dp
		JOIN lead_qualifications lq ON lq.contact_id = dp.contact_id
	`).Scan(&progress).Error
	if err != nil {
		return nil, WrapDBError("ComputeSummary", err)
	}

	summary := types.BacktestSummary{
		TotalContacts:  quals.TotalContacts,
		ModelQualified: quals.ModelQualified,
		AvgScore:       quals.AvgScore,
		HighConfidence: quals.HighConfidence,
		LowConfidence:  quals.LowConfidence,
		Fallbacks:      quals.Fallbacks,
	}
	summary.AnalyzedContacts = progress.AnalyzedContacts
	summary.DealsProgressed = progress.DealsProgressed
	summary.WithOpportunity = progress.WithOpportunity
	summary.AvgAlignment = progress.AvgAlignment
	summary.HighAlignment = progress.HighAlignment
	summary.LowAlignment = progress.LowAlignment
	summary.TruePositives = progress.TruePositives
	summary.FalsePositives = progress.FalsePositives
	summary.TrueNegatives = progress.TrueNegatives
	summary.FalseNegatives = progress.FalseNegatives

	buckets := []types.ConfidenceBucket{}
	err = db.Model(&LeadQualification{}).
		Select("confidence, COUNT(*) AS count, AVG(qualification_score) AS avg_score").
		Group("confidence").
		Order("confidence").
		Scan(&buckets).Error
	if err != nil {
		return nil, WrapDBError("ComputeSummary", err)
	}

	summary.ByConfidence = buckets
	summary.ComputeRates()
	return &summary, nil
}

// SaveSummarySnapshot appends a summary snapshot for the given run
func (r *BacktestRepository) SaveSummarySnapshot(ctx context.Context, runID string, s *types.BacktestSummary, insights []string) (*BacktestSummaryRecord, error) {
	rec := &BacktestSummaryRecord{
		RunID:            runID,
		AnalysisDate:     r.now(),
		TotalContacts:    s.TotalContacts,
		ModelQualified:   s.ModelQualified,
		AnalyzedContacts: s.AnalyzedContacts,
		DealsProgressed:  s.DealsProgressed,
		TruePositives:    s.TruePositives,
		FalsePositives:   s.FalsePositives,
		TrueNegatives:    s.TrueNegatives,
		FalseNegatives:   s.FalseNegatives,
		Accuracy:         s.Accuracy,
		Precision:        s.Precision,
		Recall:           s.Recall,
		AvgAlignment:     s.AvgAlignment,
		Insights:         insights,
	}
	if err := r.db.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, WrapDBError("SaveSummarySnapshot", err)
	}
	return rec, nil
}

// LatestSummarySnapshot returns the most recent snapshot, or a NotFoundError
func (r *BacktestRepository) LatestSummarySnapshot(ctx context.Context) (*BacktestSummaryRecord, error) {
	var rec BacktestSummaryRecord
	err := r.db.db.WithContext(ctx).Order("analysis_date DESC").Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundErrorWithID("backtest summary", nil)
	}
	if err != nil {
		return nil, WrapDBError("LatestSummarySnapshot", err)
	}
	return &rec, nil
}

func validateQualification(q *LeadQualification) error {
	if strings.TrimSpace(q.ContactID) == "" {
		return NewValidationErrorWithValue("contact_id", "must not be empty", q.ContactID)
	}
	if q.QualificationScore < 0 || q.QualificationScore > 1 {
		return NewValidationErrorWithValue("qualification_score", "must be within [0,1]", q.QualificationScore)
	}
	if !qualification.ConfidenceLevel(q.Confidence).Valid() {
		return NewValidationErrorWithValue("confidence", "must be LOW, UNCERTAIN, CONFIDENT or HIGH", q.Confidence)
	}
	if q.IsQualified != qualification.IsQualified(q.QualificationScore) {
		return NewValidationErrorWithValue("is_qualified", "disagrees with the qualification threshold", q.IsQualified)
	}
	if q.Source == "" {
		return NewValidationErrorWithValue("source", "must not be empty", q.Source)
	}
	return nil
}
