package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscore-backtest/config"
	models "leadscore-backtest/database/models_pkg"
)

func newTestRepository(t *testing.T) *BacktestRepository {
	t.Helper()

	db, err := Connect(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "backtest.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewBacktestRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))

	// deterministic, strictly increasing clock
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return repo
}

func qualificationFor(contactID string, score float64) *LeadQualification {
	return &LeadQualification{
		ContactID:          contactID,
		ContactName:        "Contact " + contactID,
		CompanyName:        "Acme",
		Domain:             "acme.io",
		AccountID:          "001" + contactID,
		QualificationScore: score,
		IsQualified:        score >= 0.5,
		Confidence:         "CONFIDENT",
		Industries:         []string{"Technology"},
		Reasoning:          []string{"Strong Voice AI signals detected: voice ai", "Enterprise-scale business indicators: enterprise"},
		Source:             models.SourceScorer,
	}
}

func progressionFor(contactID string, qualified, progressed bool, alignment float64) *DealProgression {
	return &DealProgression{
		ContactID:      contactID,
		OpportunityID:  "006" + contactID,
		StageName:      "Discovery",
		BeyondStageOne: progressed,
		StageBasis:     models.StageBasisAdvancedKeyword,
		ModelQualified: qualified,
		AlignmentScore: alignment,
	}
}

func TestUpsertQualificationLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.UpsertQualification(ctx, qualificationFor("C1", 0.72)))

	again := qualificationFor("C1", 0.31)
	again.Confidence = "LOW"
	again.Reasoning = []string{"No measurable qualification signals detected"}
	require.NoError(t, repo.UpsertQualification(ctx, again))

	got, err := repo.GetQualification(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 0.31, got.QualificationScore)
	assert.False(t, got.IsQualified)
	assert.Equal(t, "LOW", got.Confidence)
	assert.Equal(t, []string{"No measurable qualification signals detected"}, got.Reasoning)
	assert.Equal(t, []string{"Technology"}, got.Industries)

	var count int64
	require.NoError(t, repo.db.DB().Model(&LeadQualification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertQualificationValidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	tests := []struct {
		name   string
		mutate func(*LeadQualification)
		field  string
	}{
		{"empty contact", func(q *LeadQualification) { q.ContactID = "" }, "contact_id"},
		{"score above one", func(q *LeadQualification) { q.QualificationScore = 1.2 }, "qualification_score"},
		{"unknown confidence", func(q *LeadQualification) { q.Confidence = "ERROR" }, "confidence"},
		{"decision disagrees", func(q *LeadQualification) { q.IsQualified = false }, "is_qualified"},
		{"missing source", func(q *LeadQualification) { q.Source = "" }, "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := qualificationFor("CV", 0.8)
			tt.mutate(q)

			err := repo.UpsertQualification(ctx, q)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGetQualificationNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetQualification(context.Background(), "missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFetchPendingForAlignment(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, repo.UpsertQualification(ctx, qualificationFor(id, 0.6)))
	}
	// re-scoring B moves it to the back of the queue
	require.NoError(t, repo.UpsertQualification(ctx, qualificationFor("B", 0.7)))
	require.NoError(t, repo.StoreProgressionAnalysis(ctx, progressionFor("C", true, true, 0.9)))

	pending, err := repo.FetchPendingForAlignment(ctx, 10)
	require.NoError(t, err)

	ids := []string{}
	for _, p := range pending {
		ids = append(ids, p.ContactID)
	}
	assert.Equal(t, []string{"A", "D", "B"}, ids)

	limited, err := repo.FetchPendingForAlignment(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	count, err := repo.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestStoreProgressionAnalysis(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	t.Run("unknown contact", func(t *testing.T) {
		err := repo.StoreProgressionAnalysis(ctx, progressionFor("ghost", false, false, 1))
		assert.True(t, errors.Is(err, ErrUnknownContact))
	})

	t.Run("write once", func(t *testing.T) {
		require.NoError(t, repo.UpsertQualification(ctx, qualificationFor("P1", 0.8)))
		require.NoError(t, repo.StoreProgressionAnalysis(ctx, progressionFor("P1", true, true, 0.94)))

		second := progressionFor("P1", true, false, 0.1)
		err := repo.StoreProgressionAnalysis(ctx, second)
		assert.True(t, errors.Is(err, ErrAlreadyAnalyzed))

		got, err := repo.GetProgression(ctx, "P1")
		require.NoError(t, err)
		assert.True(t, got.BeyondStageOne)
		assert.Equal(t, 0.94, got.AlignmentScore)
		assert.False(t, got.AnalyzedAt.IsZero())
	})

	t.Run("alignment out of range", func(t *testing.T) {
		err := repo.StoreProgressionAnalysis(ctx, progressionFor("P1", true, true, 1.5))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestComputeSummaryEmpty(t *testing.T) {
	repo := newTestRepository(t)

	s, err := repo.ComputeSummary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.TotalContacts)
	assert.Zero(t, s.AnalyzedContacts)
	assert.Zero(t, s.Accuracy)
	assert.Zero(t, s.Precision)
	assert.Zero(t, s.Recall)
	assert.Empty(t, s.ByConfidence)
}

func TestComputeSummaryConfusionMatrix(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	cases := []struct {
		id         string
		score      float64
		progressed bool
		alignment  float64
	}{
		{"tp1", 0.8, true, 0.95},
		{"tp2", 0.7, true, 0.85},
		{"fp", 0.6, false, 0.1},
		{"tn", 0.3, false, 1.0},
		{"fn", 0.2, true, 0.3},
	}
	for _, c := range cases {
		q := qualificationFor(c.id, c.score)
		require.NoError(t, repo.UpsertQualification(ctx, q))
		require.NoError(t, repo.StoreProgressionAnalysis(ctx, progressionFor(c.id, q.IsQualified, c.progressed, c.alignment)))
	}
	// scored but not yet analysed
	pendingQ := qualificationFor("pending", 0.9)
	pendingQ.Confidence = "HIGH"
	require.NoError(t, repo.UpsertQualification(ctx, pendingQ))

	s, err := repo.ComputeSummary(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(6), s.TotalContacts)
	assert.Equal(t, int64(4), s.ModelQualified)
	assert.Equal(t, int64(5), s.AnalyzedContacts)
	assert.Equal(t, int64(3), s.DealsProgressed)
	assert.Equal(t, int64(5), s.WithOpportunity)

	assert.Equal(t, int64(2), s.TruePositives)
	assert.Equal(t, int64(1), s.FalsePositives)
	assert.Equal(t, int64(1), s.TrueNegatives)
	assert.Equal(t, int64(1), s.FalseNegatives)
	assert.Equal(t, s.AnalyzedContacts, s.MatrixTotal())

	assert.InDelta(t, 0.6, s.Accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.Recall, 1e-9)
	assert.InDelta(t, 0.64, s.AvgAlignment, 1e-9)
	assert.Equal(t, int64(3), s.HighAlignment)
	assert.Equal(t, int64(2), s.LowAlignment)

	require.Len(t, s.ByConfidence, 2)
	assert.Equal(t, "CONFIDENT", s.ByConfidence[0].Confidence)
	assert.Equal(t, int64(5), s.ByConfidence[0].Count)
	assert.Equal(t, "HIGH", s.ByConfidence[1].Confidence)
}

func TestSummarySnapshots(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.LatestSummarySnapshot(ctx)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	s, err := repo.ComputeSummary(ctx)
	require.NoError(t, err)

	_, err = repo.SaveSummarySnapshot(ctx, "run-1", s, []string{"first"})
	require.NoError(t, err)
	_, err = repo.SaveSummarySnapshot(ctx, "run-2", s, []string{"second"})
	require.NoError(t, err)

	latest, err := repo.LatestSummarySnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	assert.Equal(t, []string{"second"}, latest.Insights)
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func tableDDL(t *testing.T, repo *BacktestRepository, table string) string {
	t.Helper()
	var ddl string
	err := repo.db.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl).Error
	require.NoError(t, err)
	require.NotEmpty(t, ddl, table)
	return ddl
}

func TestSchemaForeignKeyOnProgressions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	assert.Contains(t, tableDDL(t, repo, "deal_progressions"), "REFERENCES `lead_qualifications`")
	assert.NotContains(t, tableDDL(t, repo, "lead_qualifications"), "REFERENCES")

	// a qualification can be written before any progression exists
	require.NoError(t, repo.UpsertQualification(ctx, qualificationFor("003000000000001", 0.8)))
	require.NoError(t, repo.StoreProgressionAnalysis(ctx, progressionFor("003000000000001", true, true, 0.9)))
	// re-scoring an analysed contact still upserts
	require.NoError(t, repo.UpsertQualification(ctx, qualificationFor("003000000000001", 0.4)))

	err := repo.StoreProgressionAnalysis(ctx, progressionFor("003000000000999", true, true, 0.9))
	assert.True(t, errors.Is(err, ErrUnknownContact))
}
