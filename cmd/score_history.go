package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscore-backtest/api"
	"leadscore-backtest/app"
	"leadscore-backtest/crm"
)

var scoreHistoryCmd = &cobra.Command{
	Use:   app.JobHistoricalScoring,
	Short: "Score recent CRM contacts through the qualification API (job 1)",
	RunE:  runScoreHistory,
}

func init() {
	rootCmd.AddCommand(scoreHistoryCmd)
	addJobFlags(scoreHistoryCmd)
}

func runScoreHistory(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	run := applyScoringFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	crmClient, err := crm.New(cfg.CRM, log)
	if err != nil {
		return err
	}

	scorer := api.NewClient(cfg.Scorer, log)
	if _, err := scorer.Health(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("qualification API at %s is not available: %w", scorer.BaseURL(), err)
	}

	opts := app.ScoringOptionsFrom(cfg.Jobs, run.test)
	log.Info("starting historical scoring",
		zap.String("version", version),
		zap.String("api_url", scorer.BaseURL()),
		zap.Bool("test", run.test))

	return app.NewHistoricalScorer(crmClient, scorer, repo, opts, log).Run(ctx)
}
