package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscore-backtest/api"
	"leadscore-backtest/cache"
	"leadscore-backtest/metrics"
	"leadscore-backtest/qualification"
	"leadscore-backtest/signals"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lead qualification API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default SERVER_ADDR or :8080)")
	serveCmd.Flags().String("signal-tables", "", "YAML file overriding the built-in signal tables")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("signal-tables") {
		cfg.SignalTablesFile, _ = cmd.Flags().GetString("signal-tables")
	}

	catalog, err := signals.Load(cfg.SignalTablesFile)
	if err != nil {
		return fmt.Errorf("loading signal tables: %w", err)
	}
	scorer := qualification.NewScorer(catalog)
	fetcher := api.NewHTTPFetcher(cfg.Server.WebsiteTimeout, cfg.Server.UserAgent, cfg.Server.WebsiteMaxChars)

	var websiteCache *cache.WebsiteCache
	if cfg.RedisEnabled() {
		redisClient := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, log)
		defer redisClient.Close()
		websiteCache = cache.NewWebsiteCache(redisClient, cfg.Server.WebsiteCacheTTL)
	}
	if !websiteCache.Enabled() {
		log.Info("website cache disabled")
	}

	m := metrics.New(metrics.WithRuntimeCollectors())
	server := api.NewServer(cfg.Server, scorer, fetcher, websiteCache, m, log)

	ctx, stop := signalContext()
	defer stop()

	log.Info("starting the scorer", zap.String("version", version))
	return server.Start(ctx)
}
