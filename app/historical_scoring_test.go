package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscore-backtest/api"
	"leadscore-backtest/config"
	"leadscore-backtest/crm"
	"leadscore-backtest/database"
	"leadscore-backtest/qualification"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestScorer(contacts ContactSource, q Qualifier, store QualificationStore, opts ScoringOptions) (*HistoricalScorer, *int) {
	h := NewHistoricalScorer(contacts, q, store, opts, nil)
	h.now = func() time.Time { return fixedNow }
	sleeps := 0
	h.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return h, &sleeps
}

func contactsN(n int) []crm.Contact {
	out := make([]crm.Contact, n)
	for i := range out {
		out[i] = crm.Contact{
			ID:          fmt.Sprintf("003%03d", i),
			Name:        fmt.Sprintf("Contact %d", i),
			Email:       fmt.Sprintf("c%d@company%d.com", i, i),
			AccountID:   fmt.Sprintf("001%03d", i),
			AccountName: fmt.Sprintf("Company %d", i),
			CreatedAt:   fixedNow.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestScoreContactNoDomain(t *testing.T) {
	q := &fakeQualifier{}
	h, _ := newTestScorer(&fakeContacts{}, q, newMemoryQualifications(), ScoringOptions{})

	row := h.ScoreContact(context.Background(), crm.Contact{ID: "003A", Name: "Jo", Email: "jo@gmail.com"})

	assert.Equal(t, qualification.FallbackNoDomainScore, row.QualificationScore)
	assert.False(t, row.IsQualified)
	assert.Equal(t, string(qualification.ConfidenceLow), row.Confidence)
	assert.Equal(t, database.SourceFallbackNoDomain, row.Source)
	assert.Empty(t, row.Domain)
	assert.Len(t, row.Reasoning, 1)
	assert.Empty(t, q.requests, "unscorable contacts never reach the scorer")
}

func TestScoreContactScorerFailure(t *testing.T) {
	q := &fakeQualifier{errs: map[string]error{"acme.io": &api.StatusError{Code: 503}}}
	h, _ := newTestScorer(&fakeContacts{}, q, newMemoryQualifications(), ScoringOptions{})

	row := h.ScoreContact(context.Background(), crm.Contact{ID: "003A", Website: "https://acme.io"})

	assert.Equal(t, qualification.FallbackErrorScore, row.QualificationScore)
	assert.False(t, row.IsQualified)
	assert.Equal(t, database.SourceFallbackError, row.Source)
	assert.Equal(t, "acme.io", row.Domain)
	assert.NotEmpty(t, row.ErrorDetail)
}

func TestScoreContactNormalisesResponse(t *testing.T) {
	q := &fakeQualifier{responses: map[string]*api.QualifyResponse{
		"acme.io": {
			Score:      0.72,
			Qualified:  false, // disagrees with the threshold
			Confidence: "very sure",
			Reasoning:  []string{"a", "b", "c", "d", "e"},
			Context: qualification.BusinessContext{
				Industries: []string{"Technology"},
			},
			ContentAnalyzed: 1200,
		},
	}}
	h, _ := newTestScorer(&fakeContacts{}, q, newMemoryQualifications(), ScoringOptions{})

	created := fixedNow.Add(-48 * time.Hour)
	row := h.ScoreContact(context.Background(), crm.Contact{
		ID: "003A", Name: "Jo", AccountName: "Acme", Website: "acme.io", CreatedAt: created,
	})

	require.Len(t, q.requests, 1)
	assert.Equal(t, api.QualifyRequest{Domain: "acme.io", ContactName: "Jo", CompanyName: "Acme"}, q.requests[0])

	assert.Equal(t, 0.72, row.QualificationScore)
	assert.True(t, row.IsQualified)
	assert.Equal(t, string(qualification.ConfidenceLow), row.Confidence)
	assert.Len(t, row.Reasoning, qualification.MaxReasons)
	assert.Equal(t, []string{"Technology"}, row.Industries)
	assert.NotNil(t, row.UseCases)
	assert.Equal(t, 1200, row.ContentLength)
	assert.Equal(t, database.SourceScorer, row.Source)
	require.NotNil(t, row.ContactCreatedAt)
	assert.True(t, created.Equal(*row.ContactCreatedAt))
}

func TestScoreContactWebsiteFailureResponse(t *testing.T) {
	q := &fakeQualifier{responses: map[string]*api.QualifyResponse{
		"acme.io": {Score: 0.3, Confidence: "LOW", Error: "website unreachable"},
	}}
	h, _ := newTestScorer(&fakeContacts{}, q, newMemoryQualifications(), ScoringOptions{})

	row := h.ScoreContact(context.Background(), crm.Contact{ID: "003A", Website: "acme.io"})
	assert.Equal(t, database.SourceFallbackError, row.Source)
	assert.Equal(t, "website unreachable", row.ErrorDetail)
	assert.False(t, row.IsQualified)
}

func TestRunCycleScoresAllContacts(t *testing.T) {
	contacts := contactsN(5)
	contacts[4].Email = "someone@hotmail.com"

	q := &fakeQualifier{responses: map[string]*api.QualifyResponse{
		"company0.com": {Score: 0.81, Confidence: "HIGH", Reasoning: []string{"Strong Voice AI signals detected"}},
		"company1.com": {Score: 0.55, Confidence: "CONFIDENT"},
	}, errs: map[string]error{"company2.com": errors.New("scorer unavailable")}}
	store := newMemoryQualifications()
	src := &fakeContacts{contacts: contacts}

	h, sleeps := newTestScorer(src, q, store, ScoringOptions{LookbackDays: 30, BatchSize: 2, Limit: 100})
	require.NoError(t, h.Run(context.Background()))

	assert.Equal(t, StateDone, h.State())
	assert.Equal(t, fixedNow.AddDate(0, 0, -30), src.since)
	assert.Equal(t, fixedNow, src.until)
	assert.Equal(t, 100, src.limit)

	require.Len(t, store.rows, 5)
	assert.Equal(t, database.SourceScorer, store.rows["003000"].Source)
	assert.Equal(t, database.SourceFallbackError, store.rows["003002"].Source)
	assert.Equal(t, database.SourceFallbackNoDomain, store.rows["003004"].Source)
	for id, row := range store.rows {
		assert.Equal(t, qualification.IsQualified(row.QualificationScore), row.IsQualified, id)
	}

	rep := h.Report()
	assert.Equal(t, 1, rep.Cycles)
	assert.Equal(t, 5, rep.Processed)
	assert.Equal(t, 2, rep.Qualified)
	assert.Equal(t, 2, rep.Fallbacks)
	assert.Zero(t, rep.Errors)
	assert.InDelta(t, 0.4, rep.QualificationRate(), 1e-9)

	// one delay between each pair of contacts
	assert.Equal(t, 4, *sleeps)
}

func TestRunCycleStoreErrorsAreCounted(t *testing.T) {
	store := newMemoryQualifications()
	store.err = errors.New("disk full")

	h, _ := newTestScorer(&fakeContacts{contacts: contactsN(3)}, &fakeQualifier{}, store, ScoringOptions{BatchSize: 10})
	require.NoError(t, h.RunCycle(context.Background()))

	rep := h.Report()
	assert.Equal(t, 3, rep.Errors)
	assert.Zero(t, rep.Processed)
}

func TestRunFailsWhenFetchFails(t *testing.T) {
	h, _ := newTestScorer(&fakeContacts{err: errCRMDown}, &fakeQualifier{}, newMemoryQualifications(), ScoringOptions{})

	err := h.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errCRMDown)
	assert.Equal(t, StateFailed, h.State())
}

func TestRunShutdownDuringFetchIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetching := make(chan struct{})
	src := contactSourceFunc(func(ctx context.Context, _, _ time.Time, _ int) ([]crm.Contact, error) {
		close(fetching)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h, _ := newTestScorer(src, &fakeQualifier{}, newMemoryQualifications(), ScoringOptions{})

	go func() {
		<-fetching
		cancel()
	}()

	require.NoError(t, h.Run(ctx))
	assert.Equal(t, StateDone, h.State())
	assert.Zero(t, h.Report().Cycles)
}

func TestRunCycleEmptyWindow(t *testing.T) {
	h, sleeps := newTestScorer(&fakeContacts{}, &fakeQualifier{}, newMemoryQualifications(), ScoringOptions{})
	require.NoError(t, h.RunCycle(context.Background()))
	assert.Equal(t, StateDone, h.State())
	assert.Zero(t, *sleeps)
}

func TestRunCycleStopsBetweenContacts(t *testing.T) {
	store := newMemoryQualifications()
	q := &fakeQualifier{}
	h := NewHistoricalScorer(&fakeContacts{contacts: contactsN(4)}, q, store, ScoringOptions{BatchSize: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sleep = func(ctx context.Context, _ time.Duration) error {
		// interrupt arrives while waiting after the first contact
		cancel()
		return ctx.Err()
	}

	require.NoError(t, h.RunCycle(ctx))
	assert.Len(t, store.rows, 1)
	assert.Len(t, q.requests, 1)
}

func TestRunRepeatsWithInterval(t *testing.T) {
	store := newMemoryQualifications()
	src := &fakeContacts{contacts: contactsN(1)}
	h := NewHistoricalScorer(src, &fakeQualifier{}, store, ScoringOptions{Interval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	h.sleep = func(context.Context, time.Duration) error { return nil }
	h.contacts = contactSourceFunc(func(ctx context.Context, since, until time.Time, limit int) ([]crm.Contact, error) {
		cycles++
		if cycles == 3 {
			cancel()
		}
		return src.ContactsSince(ctx, since, until, limit)
	})

	require.NoError(t, h.Run(ctx))
	assert.Equal(t, 3, h.Report().Cycles)
}

type contactSourceFunc func(ctx context.Context, since, until time.Time, limit int) ([]crm.Contact, error)

func (f contactSourceFunc) ContactsSince(ctx context.Context, since, until time.Time, limit int) ([]crm.Contact, error) {
	return f(ctx, since, until, limit)
}

func TestScoringOptionsFrom(t *testing.T) {
	cfg := config.JobsConfig{LookbackDays: 30, BatchSize: 10, MaxContacts: 0, TestLimit: 20}

	opts := ScoringOptionsFrom(cfg, false)
	assert.Equal(t, 0, opts.Limit)
	assert.Equal(t, 10, opts.BatchSize)
	assert.Equal(t, 5, opts.ProgressEvery)

	opts = ScoringOptionsFrom(cfg, true)
	assert.Equal(t, 20, opts.Limit)

	cfg.MaxContacts = 5
	opts = ScoringOptionsFrom(cfg, true)
	assert.Equal(t, 5, opts.Limit)
}
