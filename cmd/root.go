// Package cmd wires the leadscore command line: the scorer API, the two
// backtest jobs and the coordinator that supervises them.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscore-backtest/config"
	"leadscore-backtest/database"
	"leadscore-backtest/logger"
)

const (
	appName = "leadscore"
)

var (
	// Used for flags.
	envFile string

	rootCmd = &cobra.Command{
		Use:           appName,
		Short:         "leadscore qualifies inbound leads and backtests the model against CRM deal outcomes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "environment file to load (default is .env in current directory)")
}

// setup loads the configuration and builds the logger. Flags win over the
// environment only when they were set.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg := config.LoadFromEnv(files...)
	if envFile != "" && !cfg.EnvFileLoaded {
		return nil, nil, fmt.Errorf("loading env file %s failed", envFile)
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.LogDebug, _ = flags.GetBool("debug")
	}
	if flags.Changed("json") {
		cfg.LogJSON, _ = flags.GetBool("json")
	}

	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}
	if !cfg.EnvFileLoaded {
		log.Debug("no .env file loaded, using process environment")
	}
	return cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore connects the result store and makes sure the schema exists.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*database.BacktestRepository, func(), error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	repo := database.NewBacktestRepository(db)
	if err := repo.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Debug("result store ready", zap.String("driver", db.Driver()))

	return repo, func() {
		if err := db.Close(); err != nil {
			log.Warn("closing result store", zap.Error(err))
		}
	}, nil
}
