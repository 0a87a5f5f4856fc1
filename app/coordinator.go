package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadscore-backtest/api"
	"leadscore-backtest/config"
	"leadscore-backtest/database"
	"leadscore-backtest/database/types"
	"leadscore-backtest/helpers"
	"leadscore-backtest/logger"
)

// ErrPrerequisites means a dependency of the backtest was unavailable before
// any job started.
var ErrPrerequisites = errors.New("backtest prerequisites not met")

// Child job names, which are also the subcommands they run as.
const (
	JobHistoricalScoring = "score-history"
	JobDealAlignment     = "analyze-deals"
)

// HealthChecker reports the health of the scoring service.
type HealthChecker interface {
	Health(ctx context.Context) (*api.HealthResponse, error)
}

// Pinger checks that a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SummaryStore is the part of the result store the coordinator reads.
type SummaryStore interface {
	Ping(ctx context.Context) error
	PendingCount(ctx context.Context) (int64, error)
	ComputeSummary(ctx context.Context) (*types.BacktestSummary, error)
	SaveSummarySnapshot(ctx context.Context, runID string, s *types.BacktestSummary, insights []string) (*database.BacktestSummaryRecord, error)
}

// CoordinatorOptions tune the backtest run.
type CoordinatorOptions struct {
	Job2Warmup     time.Duration
	PollInterval   time.Duration
	StatusInterval time.Duration
	ShutdownGrace  time.Duration
	Job1Args       []string
	Job2Args       []string
}

// CoordinatorOptionsFrom derives options from configuration.
func CoordinatorOptionsFrom(cfg config.CoordinatorConfig) CoordinatorOptions {
	return CoordinatorOptions{
		Job2Warmup:     cfg.Job2Warmup,
		PollInterval:   cfg.PollInterval,
		StatusInterval: cfg.StatusInterval,
		ShutdownGrace:  cfg.ShutdownGrace,
	}
}

// Coordinator runs both jobs as child processes, watches them, and writes
// the final backtest summary.
type Coordinator struct {
	scorer   HealthChecker
	crm      Pinger
	store    SummaryStore
	launcher Launcher
	opts     CoordinatorOptions
	runID    string
	log      *zap.Logger

	mu    sync.Mutex
	state JobState
}

// NewCoordinator creates a coordinator with a fresh run id.
func NewCoordinator(scorer HealthChecker, crm Pinger, store SummaryStore, launcher Launcher, opts CoordinatorOptions, log *zap.Logger) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 10 * time.Minute
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	runID := uuid.NewString()
	return &Coordinator{
		scorer:   scorer,
		crm:      crm,
		store:    store,
		launcher: launcher,
		opts:     opts,
		runID:    runID,
		log:      logger.OrNop(log).Named("coordinator").With(zap.String(logger.FieldRunID, runID)),
		state:    StateIdle,
	}
}

// RunID identifies this run in logs and in the summary snapshot.
func (c *Coordinator) RunID() string { return c.runID }

// State returns the current phase.
func (c *Coordinator) State() JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s JobState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Debug("state changed", zap.String("state", string(s)))
}

// CheckPrerequisites checks the scorer, the CRM and the store. Every failure
// is reported, wrapped in ErrPrerequisites.
func (c *Coordinator) CheckPrerequisites(ctx context.Context) error {
	var failures []string

	if health, err := c.scorer.Health(ctx); err != nil {
		failures = append(failures, fmt.Sprintf("scoring service: %v", err))
	} else if health.Status != "healthy" {
		failures = append(failures, fmt.Sprintf("scoring service: status %q", health.Status))
	} else {
		c.log.Info("scoring service healthy")
	}

	if err := c.crm.Ping(ctx); err != nil {
		failures = append(failures, fmt.Sprintf("crm: %v", err))
	} else {
		c.log.Info("crm reachable")
	}

	if err := c.store.Ping(ctx); err != nil {
		failures = append(failures, fmt.Sprintf("result store: %v", err))
	} else {
		c.log.Info("result store reachable")
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: %s", ErrPrerequisites, strings.Join(failures, "; "))
	}
	return nil
}

// Run executes the whole backtest. It returns once the backlog is drained,
// both jobs have exited, or ctx is cancelled, after both children have
// stopped. The returned summary
// is the final state of the store.
func (c *Coordinator) Run(ctx context.Context) (*types.BacktestSummary, error) {
	started := time.Now()
	c.log.Info("backtest starting",
		zap.Duration("job2_warmup", c.opts.Job2Warmup),
		zap.Duration("poll_interval", c.opts.PollInterval))

	c.setState(StateCheckingPrerequisites)
	if err := c.CheckPrerequisites(ctx); err != nil {
		c.setState(StateFailed)
		return nil, err
	}

	c.setState(StateStartingJob1)
	job1, err := c.launcher.Launch(ctx, JobHistoricalScoring, c.opts.Job1Args)
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("start %s: %w", JobHistoricalScoring, err)
	}
	c.log.Info("job started", zap.String(logger.FieldJob, JobHistoricalScoring))

	job1Done := job1.Done()
	job1Exited := false

	c.setState(StateStartingJob2)
	c.log.Info(fmt.Sprintf("waiting %s before starting %s", c.opts.Job2Warmup, JobDealAlignment))
	warmup := time.NewTimer(c.opts.Job2Warmup)
warm:
	for {
		select {
		case <-ctx.Done():
			warmup.Stop()
			c.shutdown(job1)
			return c.finish(ctx, started)
		case <-job1Done:
			c.logExit(JobHistoricalScoring, job1)
			job1Done, job1Exited = nil, true
		case <-warmup.C:
			break warm
		}
	}

	job2, err := c.launcher.Launch(ctx, JobDealAlignment, c.opts.Job2Args)
	if err != nil {
		c.shutdown(job1)
		c.setState(StateFailed)
		return nil, fmt.Errorf("start %s: %w", JobDealAlignment, err)
	}
	c.log.Info("job started", zap.String(logger.FieldJob, JobDealAlignment))

	c.setState(StateMonitoring)
	c.monitor(ctx, job1Done, job1Exited, job1, job2)

	c.shutdown(job1, job2)
	return c.finish(ctx, started)
}

// monitor returns when ctx is done, when both jobs have exited, or when
// Job 1 has exited and nothing is left pending. A job that exits early does
// not stop the other one.
func (c *Coordinator) monitor(ctx context.Context, job1Done <-chan struct{}, job1Exited bool, job1, job2 Process) {
	poll := time.NewTicker(c.opts.PollInterval)
	defer poll.Stop()
	status := time.NewTicker(c.opts.StatusInterval)
	defer status.Stop()

	job2Done := job2.Done()
	job2Exited := false

	for {
		select {
		case <-ctx.Done():
			c.log.Info("interrupt received")
			return
		case <-job1Done:
			c.logExit(JobHistoricalScoring, job1)
			job1Done, job1Exited = nil, true
			if job2Exited {
				c.log.Info("both jobs have exited")
				return
			}
		case <-job2Done:
			c.logExit(JobDealAlignment, job2)
			job2Done, job2Exited = nil, true
			if job1Exited {
				c.log.Info("both jobs have exited")
				return
			}
			c.log.Warn("deal alignment stopped, scoring continues", zap.String(logger.FieldJob, JobHistoricalScoring))
		case <-poll.C:
			if !job1Exited || job2Exited {
				continue
			}
			pending, err := c.store.PendingCount(ctx)
			if err != nil {
				c.log.Warn("could not count pending contacts", zap.Error(err))
				continue
			}
			if pending == 0 {
				c.log.Info("scoring finished and backlog drained")
				return
			}
			c.log.Debug("waiting for backlog", zap.Int64("pending", pending))
		case <-status.C:
			c.logStatus(ctx)
		}
	}
}

func (c *Coordinator) logExit(job string, p Process) {
	if err := p.ExitErr(); err != nil {
		c.log.Warn("job exited with error", zap.String(logger.FieldJob, job), zap.Error(err))
		return
	}
	c.log.Info("job exited", zap.String(logger.FieldJob, job))
}

func (c *Coordinator) logStatus(ctx context.Context) {
	s, err := c.store.ComputeSummary(ctx)
	if err != nil {
		c.log.Warn("status unavailable", zap.Error(err))
		return
	}
	c.log.Info("backtest status",
		zap.Int64("scored", s.TotalContacts),
		zap.Int64("qualified", s.ModelQualified),
		zap.Int64("analyzed", s.AnalyzedContacts),
		zap.Int64("progressed", s.DealsProgressed),
		zap.String("avg_alignment", fmt.Sprintf("%.2f", s.AvgAlignment)))
}

// shutdown terminates the running children, waits up to the grace period,
// then kills what is left.
func (c *Coordinator) shutdown(procs ...Process) {
	c.setState(StateShuttingDown)

	var running []Process
	for _, p := range procs {
		select {
		case <-p.Done():
			continue
		default:
		}
		if err := p.Terminate(); err != nil {
			c.log.Warn("terminate failed", zap.Error(err))
		}
		running = append(running, p)
	}
	if len(running) == 0 {
		return
	}

	grace := time.NewTimer(c.opts.ShutdownGrace)
	defer grace.Stop()
	for _, p := range running {
		select {
		case <-p.Done():
		case <-grace.C:
			c.log.Warn("grace period exceeded, killing remaining jobs")
			for _, q := range running {
				select {
				case <-q.Done():
				default:
					if err := q.Kill(); err != nil {
						c.log.Warn("kill failed", zap.Error(err))
					}
					<-q.Done()
				}
			}
			return
		}
	}
	c.log.Info("all jobs stopped")
}

// finish reads the final summary, logs it with commentary and stores a
// snapshot. It runs after cancellation too.
func (c *Coordinator) finish(ctx context.Context, started time.Time) (*types.BacktestSummary, error) {
	ctx = context.WithoutCancel(ctx)
	s, err := c.store.ComputeSummary(ctx)
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("final summary: %w", err)
	}

	insights := Insights(s)
	c.log.Info("backtest summary",
		zap.Duration("runtime", time.Since(started).Round(time.Second)),
		zap.Int64("scored", s.TotalContacts),
		zap.Int64("qualified", s.ModelQualified),
		zap.String("qualification_rate", helpers.FormatPercent(s.QualificationRate)),
		zap.Int64("analyzed", s.AnalyzedContacts),
		zap.Int64("progressed", s.DealsProgressed),
		zap.String("avg_alignment", fmt.Sprintf("%.2f", s.AvgAlignment)))
	if s.AnalyzedContacts > 0 {
		c.log.Info("model performance",
			zap.Int64("true_positives", s.TruePositives),
			zap.Int64("false_positives", s.FalsePositives),
			zap.Int64("true_negatives", s.TrueNegatives),
			zap.Int64("false_negatives", s.FalseNegatives),
			zap.String("accuracy", helpers.FormatPercent(s.Accuracy)),
			zap.String("precision", helpers.FormatPercent(s.Precision)),
			zap.String("recall", helpers.FormatPercent(s.Recall)))
	}
	for _, line := range insights {
		c.log.Info(line)
	}

	if _, err := c.store.SaveSummarySnapshot(ctx, c.runID, s, insights); err != nil {
		c.log.Error("failed to save summary snapshot", zap.Error(err))
	}
	c.setState(StateDone)
	return s, nil
}

// Insights turns a summary into the qualitative commentary of a run.
func Insights(s *types.BacktestSummary) []string {
	if s == nil || s.TotalContacts == 0 {
		return []string{"No contacts were scored"}
	}

	rate := helpers.FormatPercent(s.QualificationRate)
	var out []string
	if s.QualificationRate < 0.5 {
		out = append(out, fmt.Sprintf("Conservative qualification (%s) reduces AE time spent on weak leads", rate))
	} else {
		out = append(out, fmt.Sprintf("Active qualification (%s) generates more opportunities", rate))
	}

	if s.AnalyzedContacts == 0 {
		return append(out, "No deal progressions analyzed yet")
	}

	switch a := s.AvgAlignment; {
	case a > 0.7:
		out = append(out, fmt.Sprintf("High model-AE alignment (%.2f) validates the approach", a))
	case a > 0.5:
		out = append(out, fmt.Sprintf("Moderate alignment (%.2f), model needs tuning", a))
	default:
		out = append(out, fmt.Sprintf("Low alignment (%.2f), significant model issues", a))
	}

	if s.FalsePositives > s.FalseNegatives {
		out = append(out, "Model over-qualifies relative to AE decisions")
	} else if s.FalseNegatives > s.FalsePositives {
		out = append(out, "Model misses leads that AEs progressed")
	}
	return out
}
