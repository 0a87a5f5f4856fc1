package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscore-backtest/config"
	"leadscore-backtest/crm"
	"leadscore-backtest/database"
	"leadscore-backtest/database/types"
)

func newTestRepo(t *testing.T) *database.BacktestRepository {
	t.Helper()

	db, err := database.Connect(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "backtest.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewBacktestRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

func storedQualification(contactID, accountID string, score float64, reasoning ...string) *database.LeadQualification {
	return &database.LeadQualification{
		ContactID:          contactID,
		ContactName:        "Contact " + contactID,
		AccountID:          accountID,
		QualificationScore: score,
		IsQualified:        score >= 0.5,
		Confidence:         "CONFIDENT",
		Reasoning:          reasoning,
		Source:             database.SourceScorer,
	}
}

func newTestAnalyzer(opps OpportunitySource, store ProgressionStore, opts AnalysisOptions) *DealAnalyzer {
	d := NewDealAnalyzer(opps, store, opts, nil)
	d.now = func() time.Time { return fixedNow }
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestAnalyzeWithoutAccount(t *testing.T) {
	opps := &fakeOpportunities{}
	d := newTestAnalyzer(opps, nil, AnalysisOptions{})

	t.Run("qualified contact is a false positive", func(t *testing.T) {
		rec, err := d.Analyze(context.Background(), storedQualification("003A", "", 0.8, "Technology company"))
		require.NoError(t, err)
		assert.Equal(t, NoOpportunityStage, rec.StageName)
		assert.False(t, rec.BeyondStageOne)
		assert.Equal(t, database.StageBasisNoOpportunity, rec.StageBasis)
		assert.Equal(t, "No opportunity created", rec.AEReasoning)
		assert.Zero(t, rec.AlignmentScore)
		assert.Contains(t, rec.AnalysisNotes, "false positive")
	})

	t.Run("unqualified contact is a true negative", func(t *testing.T) {
		rec, err := d.Analyze(context.Background(), storedQualification("003B", "", 0.2))
		require.NoError(t, err)
		assert.Equal(t, 1.0, rec.AlignmentScore)
	})

	assert.Empty(t, opps.calls)
}

func TestAnalyzeInvalidAccountIsNoOpportunity(t *testing.T) {
	opps := &fakeOpportunities{errs: map[string]error{"bad'id": crm.ErrInvalidID}}
	d := newTestAnalyzer(opps, nil, AnalysisOptions{})

	rec, err := d.Analyze(context.Background(), storedQualification("003A", "bad'id", 0.3))
	require.NoError(t, err)
	assert.Equal(t, NoOpportunityStage, rec.StageName)
	assert.Equal(t, 1.0, rec.AlignmentScore)
}

func TestAnalyzeCRMFailure(t *testing.T) {
	opps := &fakeOpportunities{errs: map[string]error{"001A": errCRMDown}}
	d := newTestAnalyzer(opps, nil, AnalysisOptions{})

	rec, err := d.Analyze(context.Background(), storedQualification("003A", "001A", 0.3))
	assert.ErrorIs(t, err, errCRMDown)
	assert.Nil(t, rec)
}

func TestAnalyzePicksAdvancedOpportunity(t *testing.T) {
	amount := 12000.0
	opps := &fakeOpportunities{opps: map[string][]crm.Opportunity{
		"001A": {
			{ID: "006new", Name: "Renewal", StageName: "Prospecting"},
			{ID: "006demo", Name: "Voice rollout", StageName: "Demo", OwnerName: "Sam AE",
				Description: "wants API integration for their tech stack", Amount: &amount, CloseDate: "2024-04-30"},
		},
	}}
	d := newTestAnalyzer(opps, nil, AnalysisOptions{})

	rec, err := d.Analyze(context.Background(),
		storedQualification("003A", "001A", 0.81, "Technology company", "API integration needs"))
	require.NoError(t, err)

	assert.Equal(t, "006demo", rec.OpportunityID)
	assert.Equal(t, "Voice rollout", rec.OpportunityName)
	assert.True(t, rec.BeyondStageOne)
	assert.Equal(t, database.StageBasisAdvancedKeyword, rec.StageBasis)
	assert.Equal(t, "Sam AE", rec.AEOwner)
	assert.Equal(t, "2024-04-30", rec.CloseDate)
	require.NotNil(t, rec.Amount)
	assert.Equal(t, amount, *rec.Amount)
	assert.Equal(t, "Technology company; API integration needs", rec.ModelReasoning)
	assert.InDelta(t, 0.82, rec.AlignmentScore, 1e-9)
	assert.Contains(t, rec.AnalysisNotes, "Shared themes: technology, integration")
	assert.Equal(t, 0.81, rec.ModelScore)
	assert.True(t, rec.ModelQualified)
}

func TestRunCycleWritesAnalyses(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertQualification(ctx, storedQualification("003A", "001A", 0.81, "Technology company")))
	require.NoError(t, repo.UpsertQualification(ctx, storedQualification("003B", "", 0.2)))
	require.NoError(t, repo.UpsertQualification(ctx, storedQualification("003C", "001C", 0.6)))

	opps := &fakeOpportunities{
		opps: map[string][]crm.Opportunity{"001A": {{ID: "006A", StageName: "Negotiation"}}},
		errs: map[string]error{"001C": errCRMDown},
	}
	d := newTestAnalyzer(opps, repo, AnalysisOptions{PendingLimit: 10, Once: true})

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, StateIdle, d.State())

	rep := d.Report()
	assert.Equal(t, 1, rep.Cycles)
	assert.Equal(t, 2, rep.Analyzed)
	assert.Equal(t, 1, rep.Progressed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, rep.Errors)
	// 003A matches on decision only (0.70), 003B is a clean true negative
	assert.Equal(t, 1, rep.HighAlignment)
	assert.Zero(t, rep.LowAlignment)
	assert.InDelta(t, 0.85, rep.AvgAlignment(), 1e-9)

	a, err := repo.GetProgression(ctx, "003A")
	require.NoError(t, err)
	assert.True(t, a.BeyondStageOne)
	assert.False(t, a.AnalyzedAt.IsZero())

	b, err := repo.GetProgression(ctx, "003B")
	require.NoError(t, err)
	assert.Equal(t, NoOpportunityStage, b.StageName)

	// the contact whose lookup failed is retried next cycle
	pending, err := repo.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	delete(opps.errs, "001C")
	require.NoError(t, d.RunCycle(ctx))
	pending, err = repo.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	summary, err := repo.ComputeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.AnalyzedContacts)
	assert.Equal(t, int64(1), summary.TruePositives)
	assert.Equal(t, int64(1), summary.TrueNegatives)
	assert.Equal(t, int64(1), summary.FalsePositives)
}

func TestRunCycleRespectsPendingLimit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.UpsertQualification(ctx, storedQualification(fmt.Sprintf("003%d", i), "", 0.2)))
	}

	d := newTestAnalyzer(&fakeOpportunities{}, repo, AnalysisOptions{PendingLimit: 2})
	require.NoError(t, d.RunCycle(ctx))

	pending, err := repo.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)
}

// conflictStore reports every write as a duplicate.
type conflictStore struct {
	pending []database.LeadQualification
}

func (c *conflictStore) FetchPendingForAlignment(context.Context, int) ([]database.LeadQualification, error) {
	return c.pending, nil
}

func (c *conflictStore) StoreProgressionAnalysis(_ context.Context, p *database.DealProgression) error {
	return fmt.Errorf("%w: %s", database.ErrAlreadyAnalyzed, p.ContactID)
}

func (c *conflictStore) ComputeSummary(context.Context) (*types.BacktestSummary, error) {
	return &types.BacktestSummary{}, nil
}

func TestRunCycleSkipsConflicts(t *testing.T) {
	store := &conflictStore{pending: []database.LeadQualification{*storedQualification("003A", "", 0.2)}}
	d := newTestAnalyzer(&fakeOpportunities{}, store, AnalysisOptions{})

	require.NoError(t, d.RunCycle(context.Background()))
	rep := d.Report()
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, rep.Analyzed)
	assert.Zero(t, rep.Errors)
}

// blockingStore holds the pending query open until the context ends.
type blockingStore struct {
	conflictStore
	fetching chan struct{}
}

func (b *blockingStore) FetchPendingForAlignment(ctx context.Context, _ int) ([]database.LeadQualification, error) {
	close(b.fetching)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunOnceShutdownDuringFetchIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &blockingStore{fetching: make(chan struct{})}
	d := newTestAnalyzer(&fakeOpportunities{}, store, AnalysisOptions{Once: true})

	go func() {
		<-store.fetching
		cancel()
	}()

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, StateIdle, d.State())
	assert.Zero(t, d.Report().Errors)
}

func TestAnalysisOptionsFrom(t *testing.T) {
	opts := AnalysisOptionsFrom(config.JobsConfig{
		PendingLimit:          20,
		OpportunityWindowDays: 60,
		AnalysisDelay:         2 * time.Second,
		PollInterval:          time.Minute,
		ProgressEveryAnalyses: 10,
	}, true)
	assert.Equal(t, AnalysisOptions{
		PendingLimit:  20,
		WindowDays:    60,
		Delay:         2 * time.Second,
		PollInterval:  time.Minute,
		ProgressEvery: 10,
		Once:          true,
	}, opts)
}
