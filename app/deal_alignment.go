package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"leadscore-backtest/config"
	"leadscore-backtest/crm"
	"leadscore-backtest/database"
	"leadscore-backtest/database/types"
	"leadscore-backtest/helpers"
	"leadscore-backtest/logger"
)

// OpportunitySource lists the opportunities of an account.
type OpportunitySource interface {
	Opportunities(ctx context.Context, accountID string, since time.Time) ([]crm.Opportunity, error)
}

// ProgressionStore reads pending qualifications and writes analyses.
type ProgressionStore interface {
	FetchPendingForAlignment(ctx context.Context, limit int) ([]database.LeadQualification, error)
	StoreProgressionAnalysis(ctx context.Context, p *database.DealProgression) error
	ComputeSummary(ctx context.Context) (*types.BacktestSummary, error)
}

// AnalysisOptions tune the deal alignment job.
type AnalysisOptions struct {
	PendingLimit  int
	WindowDays    int
	Delay         time.Duration
	PollInterval  time.Duration
	ProgressEvery int
	Once          bool
}

// AnalysisOptionsFrom derives options from configuration.
func AnalysisOptionsFrom(cfg config.JobsConfig, once bool) AnalysisOptions {
	return AnalysisOptions{
		PendingLimit:  cfg.PendingLimit,
		WindowDays:    cfg.OpportunityWindowDays,
		Delay:         cfg.AnalysisDelay,
		PollInterval:  cfg.PollInterval,
		ProgressEvery: cfg.ProgressEveryAnalyses,
		Once:          once,
	}
}

// AnalysisReport accumulates the counters of a run.
type AnalysisReport struct {
	Cycles        int
	Analyzed      int
	Progressed    int
	Skipped       int
	Errors        int
	AlignmentSum  float64
	HighAlignment int
	LowAlignment  int
	Started       time.Time
}

// AvgAlignment is the mean alignment of the analyses written by this run.
func (r AnalysisReport) AvgAlignment() float64 {
	if r.Analyzed == 0 {
		return 0
	}
	return r.AlignmentSum / float64(r.Analyzed)
}

// DealAnalyzer compares stored qualifications with what actually happened to
// the account's deals and writes one progression analysis per contact.
type DealAnalyzer struct {
	opps  OpportunitySource
	store ProgressionStore
	opts  AnalysisOptions
	log   *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu     sync.Mutex
	state  JobState
	report AnalysisReport
}

// NewDealAnalyzer creates the alignment job.
func NewDealAnalyzer(opps OpportunitySource, store ProgressionStore, opts AnalysisOptions, log *zap.Logger) *DealAnalyzer {
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = 20
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 60
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	return &DealAnalyzer{
		opps:  opps,
		store: store,
		opts:  opts,
		log:   logger.OrNop(log).Named("job2").With(zap.String(logger.FieldJob, "deal-alignment")),
		now:   time.Now,
		sleep: helpers.WaitFor,
		state: StateIdle,
	}
}

// State returns the current phase.
func (d *DealAnalyzer) State() JobState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Report returns a copy of the counters.
func (d *DealAnalyzer) Report() AnalysisReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.report
}

func (d *DealAnalyzer) setState(s JobState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run analyses pending contacts once, or polls until ctx is done. A failed
// cycle in polling mode is logged and retried after the poll interval.
func (d *DealAnalyzer) Run(ctx context.Context) error {
	d.mu.Lock()
	d.report = AnalysisReport{Started: d.now()}
	d.mu.Unlock()

	d.log.Info("deal alignment starting",
		zap.Int("pending_limit", d.opts.PendingLimit),
		zap.Int("window_days", d.opts.WindowDays),
		zap.Duration("poll_interval", d.opts.PollInterval),
		zap.Bool("once", d.opts.Once))

	var err error
	if d.opts.Once {
		err = d.RunCycle(ctx)
	} else {
		err = RunEvery(ctx, d.opts.PollInterval, func(ctx context.Context) error {
			if cerr := d.RunCycle(ctx); cerr != nil {
				d.log.Error("analysis cycle failed, retrying next poll", zap.Error(cerr))
			}
			return nil
		})
	}

	d.logFinal(ctx)
	return err
}

// RunCycle analyses up to PendingLimit pending contacts, oldest first.
func (d *DealAnalyzer) RunCycle(ctx context.Context) error {
	d.setState(StatePolling)
	defer d.setState(StateIdle)

	pending, err := d.store.FetchPendingForAlignment(ctx, d.opts.PendingLimit)
	if err != nil && ctx.Err() != nil {
		d.log.Info("shutdown requested during pending fetch", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch pending: %w", err)
	}

	d.mu.Lock()
	d.report.Cycles++
	d.mu.Unlock()

	if len(pending) == 0 {
		d.log.Debug("no contacts pending analysis")
		return nil
	}

	d.setState(StateAnalyzing)
	d.log.Info("analyzing pending contacts", zap.Int("pending", len(pending)))

	var written int
	var cycleSum float64
	for i := range pending {
		q := &pending[i]
		if i > 0 {
			if err := d.sleep(ctx, d.opts.Delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		inflight := context.WithoutCancel(ctx)
		rec, err := d.Analyze(inflight, q)
		if err != nil {
			d.recordSkip(false)
			d.log.Warn("opportunity lookup failed, contact stays pending",
				zap.String(logger.FieldContactID, q.ContactID), zap.Error(err))
			continue
		}

		if err := d.store.StoreProgressionAnalysis(inflight, rec); err != nil {
			if errors.Is(err, database.ErrAlreadyAnalyzed) || errors.Is(err, database.ErrUnknownContact) {
				d.recordSkip(false)
				d.log.Warn("progression not written", zap.String(logger.FieldContactID, q.ContactID), zap.Error(err))
			} else {
				d.recordSkip(true)
				d.log.Error("failed to store progression", zap.String(logger.FieldContactID, q.ContactID), zap.Error(err))
			}
			continue
		}

		written++
		cycleSum += rec.AlignmentScore
		rep := d.recordAnalysis(rec)

		model, ae := "not qualified", "no progress"
		if rec.ModelQualified {
			model = "qualified"
		}
		if rec.BeyondStageOne {
			ae = "progressed"
		}
		d.log.Info(fmt.Sprintf("%s: model %s, AE %s", q.ContactName, model, ae),
			zap.String(logger.FieldContactID, q.ContactID),
			zap.String("stage", rec.StageName),
			zap.String("alignment", fmt.Sprintf("%.2f", rec.AlignmentScore)),
			zap.String("notes", helpers.Truncate(rec.AnalysisNotes, 100)))

		if rep.Analyzed%d.opts.ProgressEvery == 0 {
			elapsed := d.now().Sub(rep.Started)
			d.log.Info(fmt.Sprintf("progress: %d analyzed, avg alignment %.2f", rep.Analyzed, rep.AvgAlignment()),
				zap.Duration("runtime", elapsed.Round(time.Second)),
				zap.String("rate", helpers.FormatRate(rep.Analyzed, elapsed)))
		}
	}

	avg := 0.0
	if written > 0 {
		avg = cycleSum / float64(written)
	}
	d.log.Info(fmt.Sprintf("cycle complete: %d of %d analyzed, avg alignment %.2f", written, len(pending), avg))
	return nil
}

// Analyze builds the progression analysis of one qualification. It returns
// an error only when the CRM could not be read; the contact then stays
// pending.
func (d *DealAnalyzer) Analyze(ctx context.Context, q *database.LeadQualification) (*database.DealProgression, error) {
	modelReasoning := strings.Join(q.Reasoning, "; ")
	rec := &database.DealProgression{
		ContactID:      q.ContactID,
		AccountID:      q.AccountID,
		ModelScore:     q.QualificationScore,
		ModelQualified: q.IsQualified,
		ModelReasoning: modelReasoning,
	}

	var opps []crm.Opportunity
	if q.AccountID != "" {
		since := d.now().AddDate(0, 0, -d.opts.WindowDays)
		var err error
		opps, err = d.opps.Opportunities(ctx, q.AccountID, since)
		if err != nil && !errors.Is(err, crm.ErrInvalidID) {
			return nil, err
		}
	}

	if len(opps) == 0 {
		rec.StageName = NoOpportunityStage
		rec.BeyondStageOne = false
		rec.StageBasis = database.StageBasisNoOpportunity
		rec.AEReasoning = "No opportunity created"
		rec.AlignmentScore = AlignmentScore(q.IsQualified, false, "", "")
		rec.AnalysisNotes = "No opportunities found; " + AnalysisNotes(q.IsQualified, false, rec.AlignmentScore, nil)
		return rec, nil
	}

	best := BestOpportunity(opps)
	beyond, basis := ClassifyStage(best.StageName)
	aeReasoning := AEReasoning(best)
	shared, _ := ReasoningOverlap(modelReasoning, aeReasoning)
	if strings.TrimSpace(modelReasoning) == "" || aeReasoning == "" {
		shared = nil
	}

	rec.OpportunityID = best.ID
	rec.OpportunityName = best.Name
	rec.StageName = best.StageName
	rec.BeyondStageOne = beyond
	rec.StageBasis = basis
	rec.AEOwner = best.OwnerName
	rec.AEReasoning = aeReasoning
	rec.CloseDate = best.CloseDate
	rec.Amount = best.Amount
	rec.WinReason = best.WinReason
	rec.LossReason = best.LossReason
	rec.AlignmentScore = AlignmentScore(q.IsQualified, beyond, modelReasoning, aeReasoning)
	rec.AnalysisNotes = AnalysisNotes(q.IsQualified, beyond, rec.AlignmentScore, shared)
	return rec, nil
}

func (d *DealAnalyzer) recordSkip(isError bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if isError {
		d.report.Errors++
	} else {
		d.report.Skipped++
	}
}

func (d *DealAnalyzer) recordAnalysis(rec *database.DealProgression) AnalysisReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.Analyzed++
	d.report.AlignmentSum += rec.AlignmentScore
	if rec.BeyondStageOne {
		d.report.Progressed++
	}
	if rec.AlignmentScore > 0.8 {
		d.report.HighAlignment++
	}
	if rec.AlignmentScore < 0.4 {
		d.report.LowAlignment++
	}
	return d.report
}

func (d *DealAnalyzer) logFinal(ctx context.Context) {
	rep := d.Report()
	d.log.Info("deal alignment summary",
		zap.Int("cycles", rep.Cycles),
		zap.Int("analyzed", rep.Analyzed),
		zap.Int("progressed", rep.Progressed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("errors", rep.Errors),
		zap.String("avg_alignment", fmt.Sprintf("%.2f", rep.AvgAlignment())),
		zap.Int("high_alignment", rep.HighAlignment),
		zap.Int("low_alignment", rep.LowAlignment))

	summary, err := d.store.ComputeSummary(context.WithoutCancel(ctx))
	if err != nil {
		d.log.Warn("could not read store summary", zap.Error(err))
		return
	}
	d.log.Info("store summary",
		zap.Int64("analyzed_contacts", summary.AnalyzedContacts),
		zap.Int64("deals_progressed", summary.DealsProgressed),
		zap.String("avg_alignment", fmt.Sprintf("%.2f", summary.AvgAlignment)),
		zap.String("accuracy", helpers.FormatPercent(summary.Accuracy)))
}
