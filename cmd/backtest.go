package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscore-backtest/api"
	"leadscore-backtest/app"
	"leadscore-backtest/crm"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run both jobs as supervised child processes and report the model's alignment",
	RunE:  runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
	addJobFlags(backtestCmd)
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	applyCommonFlags(cmd, cfg)
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

	global := forwardFlags(cmd, "debug", "json", "env-file")
	opts := app.CoordinatorOptionsFrom(cfg.Coordinator)
	opts.Job1Args = append(append([]string{}, global...), forwardFlags(cmd, flagAPIURL, flagDays, flagBatchSize, flagTest)...)
	opts.Job1Args = append(opts.Job1Args, "--"+flagOnce)
	opts.Job2Args = append(append([]string{}, global...), forwardFlags(cmd, flagAPIURL, flagInterval)...)

	coordinator := app.NewCoordinator(scorer, crmClient, repo, &app.ExecLauncher{Log: log}, opts, log)
	log.Info("starting backtest",
		zap.String("version", version),
		zap.String("run_id", coordinator.RunID()),
		zap.Strings("job1_args", opts.Job1Args),
		zap.Strings("job2_args", opts.Job2Args))

	_, err = coordinator.Run(ctx)
	return err
}
