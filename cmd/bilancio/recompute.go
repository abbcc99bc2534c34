package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/worker"
)

var (
	snapshotKey   string
	snapshotLimit int
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute <report>",
	Short: "Recompute a report and store its snapshot",
	Long: `Queues a recompute request for bilancio-worker when AMQP_URL is set. Without
AMQP, or with --local, the report is recomputed here and its snapshot saved.`,
	Example: `  bilancio recompute utilities
  bilancio recompute monthly --year 2024 --month 5 --local`,
	Args: cobra.ExactArgs(1),
	RunE: runRecompute,
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots <report>",
	Short: "List stored snapshots of a report",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshots,
}

var recomputeLocal bool

func init() {
	addRequestFlags(recomputeCmd)
	recomputeCmd.Flags().BoolVar(&recomputeLocal, "local", false, "recompute in this process even when AMQP is configured")

	snapshotsCmd.Flags().StringVar(&snapshotKey, "key", "", "only show this key")
	snapshotsCmd.Flags().IntVar(&snapshotLimit, "limit", 20, "maximum number of snapshots")
	snapshotsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the newest payload as JSON")

	rootCmd.AddCommand(recomputeCmd, snapshotsCmd)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req := request(args[0])
	if err := req.Validate(); err != nil {
		return err
	}

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)
	cfg := app.Config

	msg := amqp.NewRecomputeMessage(req.Report, req.Year, req.Month, req.MeterID)

	if cfg.AMQPURL != "" && !recomputeLocal {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, app.Logger)
		if err != nil {
			return fmt.Errorf("initialize AMQP client: %w", err)
		}
		defer client.Close()
		if err := client.PublishRecompute(ctx, msg); err != nil {
			return err
		}
		pterm.Success.Printfln("Queued %s (%s)", req.Report, req.Key())
		return nil
	}

	repo, err := cli.InitSQLite(app.Logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := worker.NewRecomputeWorker(app.Reports, repo, app.Logger).HandleRecomputeMessage(ctx, msg); err != nil {
		return err
	}
	pterm.Success.Printfln("Stored snapshot of %s (%s)", req.Report, req.Key())
	return nil
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentCLI)

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	if snapshotKey != "" {
		snap, err := repo.Latest(ctx, args[0], snapshotKey)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(snap.Payload)
		}
		return printTable([][]any{
			{"ID", "Report", "Key", "Created"},
			{snap.ID, snap.Report, snap.Key, snap.CreatedAt.Format(time.RFC3339)},
		})
	}

	snaps, err := repo.List(ctx, args[0], snapshotLimit)
	if err != nil {
		return err
	}
	if jsonOutput && len(snaps) > 0 {
		return printJSON(snaps[0].Payload)
	}
	rows := [][]any{{"ID", "Report", "Key", "Created", "Bytes"}}
	for _, s := range snaps {
		rows = append(rows, []any{s.ID, s.Report, s.Key, s.CreatedAt.Format(time.RFC3339), len(s.Payload)})
	}
	return printTable(rows)
}
