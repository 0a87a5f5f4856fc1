package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"leadscore-backtest/app"
	"leadscore-backtest/database"
	"leadscore-backtest/database/types"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the backtest summary computed from the result store",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

type summaryOutput struct {
	Summary      *types.BacktestSummary          `json:"summary"`
	Insights     []string                        `json:"insights"`
	LastSnapshot *database.BacktestSummaryRecord `json:"last_snapshot,omitempty"`
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := repo.ComputeSummary(ctx)
	if err != nil {
		return err
	}
	out := summaryOutput{Summary: summary, Insights: app.Insights(summary)}
	if snap, err := repo.LatestSummarySnapshot(ctx); err == nil {
		out.LastSnapshot = snap
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
