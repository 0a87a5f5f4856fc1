package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscore-backtest/app"
	"leadscore-backtest/crm"
)

var analyzeDealsCmd = &cobra.Command{
	Use:   app.JobDealAlignment,
	Short: "Compare scored contacts with their deal progression (job 2)",
	RunE:  runAnalyzeDeals,
}

func init() {
	rootCmd.AddCommand(analyzeDealsCmd)
	addJobFlags(analyzeDealsCmd)
}

func runAnalyzeDeals(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	run := applyAnalysisFlags(cmd, cfg)
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

	opts := app.AnalysisOptionsFrom(cfg.Jobs, run.once)
	log.Info("starting deal alignment", zap.String("version", version), zap.Bool("once", run.once))

	return app.NewDealAnalyzer(crmClient, repo, opts, log).Run(ctx)
}
