package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadscore-backtest/api"
	"leadscore-backtest/crm"
	"leadscore-backtest/database"
	"leadscore-backtest/database/types"
)

var errCRMDown = errors.New("crm: connection reset")

type fakeContacts struct {
	contacts []crm.Contact
	err      error
	since    time.Time
	until    time.Time
	limit    int
}

func (f *fakeContacts) ContactsSince(_ context.Context, since, until time.Time, limit int) ([]crm.Contact, error) {
	f.since, f.until, f.limit = since, until, limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.contacts) {
		return f.contacts[:limit], nil
	}
	return f.contacts, nil
}

// fakeQualifier answers per domain; unknown domains get a low score.
type fakeQualifier struct {
	mu        sync.Mutex
	responses map[string]*api.QualifyResponse
	errs      map[string]error
	requests  []api.QualifyRequest
}

func (f *fakeQualifier) QualifyDomain(_ context.Context, req api.QualifyRequest) (*api.QualifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Domain]; err != nil {
		return nil, err
	}
	if resp, ok := f.responses[req.Domain]; ok {
		return resp, nil
	}
	return &api.QualifyResponse{Domain: req.Domain, Score: 0.25, Confidence: "UNCERTAIN", Reasoning: []string{"Limited qualification signals detected"}}, nil
}

type memoryQualifications struct {
	mu   sync.Mutex
	rows map[string]*database.LeadQualification
	err  error
}

func newMemoryQualifications() *memoryQualifications {
	return &memoryQualifications{rows: map[string]*database.LeadQualification{}}
}

func (m *memoryQualifications) UpsertQualification(_ context.Context, q *database.LeadQualification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[q.ContactID] = q
	return nil
}

func (m *memoryQualifications) ComputeSummary(context.Context) (*types.BacktestSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &types.BacktestSummary{TotalContacts: int64(len(m.rows))}
	for _, r := range m.rows {
		if r.IsQualified {
			s.ModelQualified++
		}
	}
	return s, nil
}

// fakeOpportunities returns per-account opportunities or errors.
type fakeOpportunities struct {
	mu    sync.Mutex
	opps  map[string][]crm.Opportunity
	errs  map[string]error
	calls []string
}

func (f *fakeOpportunities) Opportunities(_ context.Context, accountID string, _ time.Time) ([]crm.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accountID)
	if err := f.errs[accountID]; err != nil {
		return nil, err
	}
	return f.opps[accountID], nil
}
