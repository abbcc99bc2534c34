package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

var (
	logLevel   string
	dataDir    string
	jsonOutput bool

	reqYear  int
	reqMonth int
	reqMeter string
)

var rootCmd = &cobra.Command{
	Use:   "bilancio",
	Short: "Personal finance reports from meter readings and bank activities",
	Long: `Bilancio computes utility bills from meter readings, bookkeeping reports from
bank activities and the upkeep cost-of-living report. Data is read from append-only
JSONL logs; report snapshots are kept in a local SQLite database.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli.LoadEnvFile()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from DATA_DIR)")
}

// addRequestFlags registers the report parameters shared by report,
// export and recompute.
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&reqYear, "year", 0, "year for the monthly and category reports")
	cmd.Flags().IntVar(&reqMonth, "month", 0, "month (1-12) for the monthly report")
	cmd.Flags().StringVar(&reqMeter, "meter", "", "meter id for the meter report")
}

func request(report string) services.Request {
	return services.Request{Report: report, Year: reqYear, Month: reqMonth, MeterID: reqMeter}
}

// setup loads configuration and builds the report service. Flags override
// the environment.
func setup(ctx context.Context) (*cli.App, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentCLI)
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return app, nil
}

func closeApp(app *cli.App) {
	if err := app.Close(); err != nil {
		app.Logger.Warn("Cleanup failed", applog.FieldError, err)
	}
}
