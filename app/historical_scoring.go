package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"leadscore-backtest/api"
	"leadscore-backtest/config"
	"leadscore-backtest/crm"
	"leadscore-backtest/database"
	"leadscore-backtest/database/types"
	"leadscore-backtest/helpers"
	"leadscore-backtest/logger"
	"leadscore-backtest/qualification"
)

// ContactSource lists CRM contacts.
type ContactSource interface {
	ContactsSince(ctx context.Context, since, until time.Time, limit int) ([]crm.Contact, error)
}

// Qualifier scores a domain through the scorer API.
type Qualifier interface {
	QualifyDomain(ctx context.Context, req api.QualifyRequest) (*api.QualifyResponse, error)
}

// QualificationStore persists qualification rows.
type QualificationStore interface {
	UpsertQualification(ctx context.Context, q *database.LeadQualification) error
	ComputeSummary(ctx context.Context) (*types.BacktestSummary, error)
}

// ScoringOptions tune the historical scoring job.
type ScoringOptions struct {
	LookbackDays  int
	BatchSize     int
	Limit         int // contacts per cycle, 0 for no limit
	Delay         time.Duration
	ProgressEvery int           // batches between progress lines
	Interval      time.Duration // 0 runs a single cycle
}

// ScoringOptionsFrom derives options from configuration. Test mode caps the
// cycle at the configured test limit.
func ScoringOptionsFrom(cfg config.JobsConfig, test bool) ScoringOptions {
	opts := ScoringOptions{
		LookbackDays:  cfg.LookbackDays,
		BatchSize:     cfg.BatchSize,
		Limit:         cfg.MaxContacts,
		Delay:         cfg.ScoringDelay,
		ProgressEvery: cfg.ProgressEveryBatches,
		Interval:      cfg.ScoringInterval,
	}
	if test && (opts.Limit == 0 || cfg.TestLimit < opts.Limit) {
		opts.Limit = cfg.TestLimit
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 5
	}
	return opts
}

// ScoringReport accumulates the counters of a run.
type ScoringReport struct {
	Cycles    int
	Processed int
	Qualified int
	Fallbacks int
	Errors    int
	ScoreSum  float64
	Started   time.Time
	Finished  time.Time
}

// AvgScore is the mean stored score.
func (r ScoringReport) AvgScore() float64 {
	if r.Processed == 0 {
		return 0
	}
	return r.ScoreSum / float64(r.Processed)
}

// QualificationRate is qualified over processed.
func (r ScoringReport) QualificationRate() float64 {
	if r.Processed == 0 {
		return 0
	}
	return float64(r.Qualified) / float64(r.Processed)
}

// Duration is the wall time of the run so far.
func (r ScoringReport) Duration() time.Duration {
	end := r.Finished
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.Started)
}

// batchResult holds the counters of one batch.
type batchResult struct {
	processed int
	qualified int
	fallbacks int
	errors    int
	scoreSum  float64
}

// HistoricalScorer pulls recent contacts from the CRM, scores each through
// the scorer API and stores one qualification row per contact.
type HistoricalScorer struct {
	contacts ContactSource
	scorer   Qualifier
	store    QualificationStore
	opts     ScoringOptions
	log      *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu     sync.Mutex
	state  JobState
	report ScoringReport
}

// NewHistoricalScorer creates the scoring job.
func NewHistoricalScorer(contacts ContactSource, scorer Qualifier, store QualificationStore, opts ScoringOptions, log *zap.Logger) *HistoricalScorer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 5
	}
	return &HistoricalScorer{
		contacts: contacts,
		scorer:   scorer,
		store:    store,
		opts:     opts,
		log:      logger.OrNop(log).Named("job1").With(zap.String(logger.FieldJob, "historical-scoring")),
		now:      time.Now,
		sleep:    helpers.WaitFor,
		state:    StateIdle,
	}
}

// State returns the current phase.
func (h *HistoricalScorer) State() JobState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Report returns a copy of the counters.
func (h *HistoricalScorer) Report() ScoringReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.report
}

func (h *HistoricalScorer) setState(s JobState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Run executes one cycle, or repeats cycles every Interval until ctx is done.
// A failed fetch fails a single-cycle run; in repeat mode it is logged and
// retried on the next cycle.
func (h *HistoricalScorer) Run(ctx context.Context) error {
	h.mu.Lock()
	h.report = ScoringReport{Started: h.now()}
	h.mu.Unlock()

	h.log.Info("historical scoring starting",
		zap.Int("lookback_days", h.opts.LookbackDays),
		zap.Int("batch_size", h.opts.BatchSize),
		zap.Int("limit", h.opts.Limit),
		zap.Duration("interval", h.opts.Interval))

	var err error
	if h.opts.Interval > 0 {
		err = RunEvery(ctx, h.opts.Interval, func(ctx context.Context) error {
			if cerr := h.RunCycle(ctx); cerr != nil {
				h.log.Error("scoring cycle failed, retrying next interval", zap.Error(cerr))
			}
			return nil
		})
	} else {
		err = h.RunCycle(ctx)
	}

	h.mu.Lock()
	h.report.Finished = h.now()
	h.mu.Unlock()
	h.logReport(ctx)
	return err
}

// RunCycle fetches one window of contacts and scores them batch by batch.
func (h *HistoricalScorer) RunCycle(ctx context.Context) error {
	h.setState(StateFetching)
	now := h.now()
	since := now.AddDate(0, 0, -h.opts.LookbackDays)

	contacts, err := h.contacts.ContactsSince(ctx, since, now, h.opts.Limit)
	if err != nil && ctx.Err() != nil {
		h.log.Info("shutdown requested during contact fetch", zap.Error(err))
		h.setState(StateDone)
		return nil
	}
	if err != nil {
		h.setState(StateFailed)
		return fmt.Errorf("fetch contacts: %w", err)
	}

	h.mu.Lock()
	h.report.Cycles++
	h.mu.Unlock()

	if len(contacts) == 0 {
		h.log.Info("no contacts found in window", zap.Time("since", since), zap.Time("until", now))
		h.setState(StateDone)
		return nil
	}

	h.setState(StateScoring)
	totalBatches := (len(contacts) + h.opts.BatchSize - 1) / h.opts.BatchSize
	h.log.Info("contacts fetched",
		zap.Int("contacts", len(contacts)),
		zap.Int("batches", totalBatches))

	for i := 0; i < len(contacts); i += h.opts.BatchSize {
		if ctx.Err() != nil {
			h.log.Info("shutdown requested, not starting next batch")
			break
		}
		batchNum := i/h.opts.BatchSize + 1
		batch := contacts[i:min(i+h.opts.BatchSize, len(contacts))]

		res := h.processBatch(ctx, batch, i == 0)

		h.mu.Lock()
		h.report.Processed += res.processed
		h.report.Qualified += res.qualified
		h.report.Fallbacks += res.fallbacks
		h.report.Errors += res.errors
		h.report.ScoreSum += res.scoreSum
		rep := h.report
		h.mu.Unlock()

		avg := 0.0
		if res.processed > 0 {
			avg = res.scoreSum / float64(res.processed)
		}
		h.log.Info(fmt.Sprintf("batch %d/%d complete: %d/%d qualified", batchNum, totalBatches, res.qualified, res.processed),
			zap.String("avg_score", helpers.FormatPercent(avg)),
			zap.Int("fallbacks", res.fallbacks),
			zap.Int("errors", res.errors))

		if batchNum%h.opts.ProgressEvery == 0 {
			h.log.Info(fmt.Sprintf("progress: %d processed, %d qualified (%s)",
				rep.Processed, rep.Qualified, helpers.FormatPercent(rep.QualificationRate())),
				zap.String("avg_score", helpers.FormatPercent(rep.AvgScore())),
				zap.String("rate", helpers.FormatRate(rep.Processed, h.now().Sub(rep.Started))))
		}
	}

	h.setState(StateDone)
	return nil
}

// processBatch scores and stores each contact. Cancellation is honoured
// between contacts; the contact in flight always completes.
func (h *HistoricalScorer) processBatch(ctx context.Context, batch []crm.Contact, first bool) batchResult {
	var res batchResult
	for j, c := range batch {
		if !first || j > 0 {
			if err := h.sleep(ctx, h.opts.Delay); err != nil {
				return res
			}
		}
		if ctx.Err() != nil {
			return res
		}

		inflight := context.WithoutCancel(ctx)
		row := h.ScoreContact(inflight, c)
		if err := h.store.UpsertQualification(inflight, row); err != nil {
			res.errors++
			h.log.Error("failed to store qualification", zap.String(logger.FieldContactID, c.ID), zap.Error(err))
			continue
		}

		res.processed++
		res.scoreSum += row.QualificationScore
		if row.IsQualified {
			res.qualified++
		}
		if row.Source != database.SourceScorer {
			res.fallbacks++
		}

		status := "not qualified"
		if row.IsQualified {
			status = "qualified"
		}
		h.log.Info(fmt.Sprintf("%s: %s", c.Name, status),
			zap.String(logger.FieldContactID, c.ID),
			zap.String(logger.FieldDomain, row.Domain),
			zap.String("score", helpers.FormatPercent(row.QualificationScore)),
			zap.String("confidence", row.Confidence),
			zap.String("source", row.Source))
	}
	return res
}

// ScoreContact turns a contact into a qualification row. It never fails:
// unresolvable domains and scorer failures produce fallback rows.
func (h *HistoricalScorer) ScoreContact(ctx context.Context, c crm.Contact) *database.LeadQualification {
	row := &database.LeadQualification{
		ContactID:   c.ID,
		ContactName: c.Name,
		CompanyName: c.AccountName,
		Email:       c.Email,
		AccountID:   c.AccountID,
	}
	if !c.CreatedAt.IsZero() {
		created := c.CreatedAt.UTC()
		row.ContactCreatedAt = &created
	}

	domain, ok := ResolveDomain(c)
	if !ok {
		applyFallback(row, qualification.FallbackNoDomainScore, database.SourceFallbackNoDomain,
			"No business domain found", "No business domain available for analysis")
		return row
	}
	row.Domain = domain

	resp, err := h.scorer.QualifyDomain(ctx, api.QualifyRequest{
		Domain:      domain,
		ContactName: c.Name,
		CompanyName: c.AccountName,
	})
	if err != nil {
		h.log.Warn("scoring failed, storing fallback",
			zap.String(logger.FieldContactID, c.ID),
			zap.String(logger.FieldDomain, domain),
			zap.Error(err))
		applyFallback(row, qualification.FallbackErrorScore, database.SourceFallbackError,
			err.Error(), "Qualification service unavailable for this contact")
		return row
	}

	d := qualification.Decide(resp.Score, resp.Confidence)
	row.QualificationScore = d.Score
	row.IsQualified = d.Qualified
	row.Confidence = string(d.Confidence)
	row.Industries = nonNil(resp.Context.Industries)
	row.UseCases = nonNil(resp.Context.UseCases)
	row.EnterpriseIndicators = nonNil(resp.Context.EnterpriseIndicators)
	row.Reasoning = nonNil(resp.Reasoning)
	if len(row.Reasoning) > qualification.MaxReasons {
		row.Reasoning = row.Reasoning[:qualification.MaxReasons]
	}
	row.ContentLength = resp.ContentAnalyzed
	row.Source = database.SourceScorer
	if resp.Error != "" {
		row.Source = database.SourceFallbackError
		row.ErrorDetail = resp.Error
	}
	return row
}

func applyFallback(row *database.LeadQualification, score float64, source, detail, reason string) {
	d := qualification.Decide(score, string(qualification.ConfidenceLow))
	row.QualificationScore = d.Score
	row.IsQualified = d.Qualified
	row.Confidence = string(d.Confidence)
	row.Industries = []string{}
	row.UseCases = []string{}
	row.EnterpriseIndicators = []string{}
	row.Reasoning = []string{reason}
	row.Source = source
	row.ErrorDetail = detail
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *HistoricalScorer) logReport(ctx context.Context) {
	rep := h.Report()
	h.log.Info("historical scoring complete",
		zap.Duration("duration", rep.Duration().Round(time.Second)),
		zap.Int("cycles", rep.Cycles),
		zap.Int("processed", rep.Processed),
		zap.Int("qualified", rep.Qualified),
		zap.Int("fallbacks", rep.Fallbacks),
		zap.Int("errors", rep.Errors),
		zap.String("qualification_rate", helpers.FormatPercent(rep.QualificationRate())),
		zap.String("avg_score", helpers.FormatPercent(rep.AvgScore())),
		zap.String("rate", helpers.FormatRate(rep.Processed, rep.Duration())))

	summary, err := h.store.ComputeSummary(context.WithoutCancel(ctx))
	if err != nil {
		h.log.Warn("could not read store summary", zap.Error(err))
		return
	}
	h.log.Info("store summary",
		zap.Int64("total_contacts", summary.TotalContacts),
		zap.Int64("qualified", summary.ModelQualified),
		zap.Int64("high_confidence", summary.HighConfidence),
		zap.Int64("low_confidence", summary.LowConfidence),
		zap.Int64("fallbacks", summary.Fallbacks))
}
