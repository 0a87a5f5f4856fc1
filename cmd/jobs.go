package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"leadscore-backtest/config"
)

// Job flag names shared by score-history, analyze-deals and backtest.
const (
	flagAPIURL    = "api-url"
	flagDays      = "days"
	flagBatchSize = "batch-size"
	flagInterval  = "interval"
	flagOnce      = "once"
	flagTest      = "test"
)

func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagAPIURL, config.DefaultAPIURL, "qualification API URL")
	cmd.Flags().Int(flagDays, config.DefaultLookbackDays, "days back to analyze")
	cmd.Flags().Int(flagBatchSize, config.DefaultBatchSize, "contacts per batch")
	cmd.Flags().Int(flagInterval, 0, "repeat interval in seconds (scoring cycles, or deal polling)")
	cmd.Flags().Bool(flagOnce, false, "run a single cycle and exit")
	cmd.Flags().Bool(flagTest, false, "test mode: small capped run")
}

// jobRun is what a job command resolved from its flags.
type jobRun struct {
	once bool
	test bool
}

// applyScoringFlags overrides the scoring settings with the flags that were set.
func applyScoringFlags(cmd *cobra.Command, cfg *config.Config) jobRun {
	run := applyCommonFlags(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed(flagBatchSize) {
		cfg.Jobs.BatchSize, _ = flags.GetInt(flagBatchSize)
	}
	if flags.Changed(flagInterval) {
		cfg.Jobs.ScoringInterval = intervalFlag(cmd)
	}
	if run.once || run.test {
		cfg.Jobs.ScoringInterval = 0
	}
	return run
}

// applyAnalysisFlags overrides the deal alignment settings with the flags
// that were set. The batch size is the number of pending contacts per cycle.
func applyAnalysisFlags(cmd *cobra.Command, cfg *config.Config) jobRun {
	run := applyCommonFlags(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed(flagBatchSize) {
		cfg.Jobs.PendingLimit, _ = flags.GetInt(flagBatchSize)
	}
	if flags.Changed(flagInterval) {
		if d := intervalFlag(cmd); d > 0 {
			cfg.Jobs.PollInterval = d
		}
	}
	if run.test {
		run.once = true
		cfg.Jobs.AnalysisDelay = min(cfg.Jobs.AnalysisDelay, time.Second)
	}
	return run
}

func applyCommonFlags(cmd *cobra.Command, cfg *config.Config) jobRun {
	flags := cmd.Flags()
	if flags.Changed(flagAPIURL) {
		cfg.Scorer.APIURL, _ = flags.GetString(flagAPIURL)
	}
	if flags.Changed(flagDays) {
		cfg.Jobs.LookbackDays, _ = flags.GetInt(flagDays)
	}
	var run jobRun
	run.once, _ = flags.GetBool(flagOnce)
	run.test, _ = flags.GetBool(flagTest)
	return run
}

func intervalFlag(cmd *cobra.Command) time.Duration {
	seconds, _ := cmd.Flags().GetInt(flagInterval)
	return time.Duration(seconds) * time.Second
}

// forwardFlags renders the named flags that were set, for a child process.
func forwardFlags(cmd *cobra.Command, names ...string) []string {
	var args []string
	for _, name := range names {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		args = append(args, "--"+name+"="+f.Value.String())
	}
	return args
}
