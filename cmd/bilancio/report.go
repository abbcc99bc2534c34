package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bilancio/internal/bookkeeping"
	"bilancio/internal/export"
	"bilancio/internal/services"
)

var reportCmd = &cobra.Command{
	Use:   "report <name>",
	Short: "Compute a report and print it",
	Long: `Computes one report from the current data. Names: ` + strings.Join(services.Reports, ", ") + `.

Meter, utilities and monthly reports print as tables; the others, or any report
with --json, print as JSON.`,
	Example: `  bilancio report meter --meter e1
  bilancio report monthly --year 2024 --month 5
  bilancio report upkeep --json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: services.Reports,
	RunE:      runReport,
}

var metersCmd = &cobra.Command{
	Use:   "meters",
	Short: "List meters",
	Args:  cobra.NoArgs,
	RunE:  runMeters,
}

func init() {
	addRequestFlags(reportCmd)
	reportCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.AddCommand(reportCmd, metersCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp(app)

	result, err := app.Reports.Compute(cmd.Context(), request(args[0]))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}

	switch r := result.(type) {
	case services.MeterReport:
		pterm.DefaultSection.Printfln("Meter %s (%s)", r.Meter.ID, r.Meter.Kind)
		return printTable(export.BillRows(r.Bills))
	case services.UtilityOverview:
		for _, f := range r.Failures {
			pterm.Warning.Printfln("meter %s skipped: %s", f.Meter, f.Error)
		}
		return printTable(export.OverviewRows(r.Years))
	case bookkeeping.MonthOverview:
		pterm.DefaultSection.Printfln("%04d-%02d", r.Year, r.Month)
		return printTable(monthRows(r))
	default:
		return printJSON(result)
	}
}

func runMeters(cmd *cobra.Command, args []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp(app)

	meters, err := app.Reports.Meters(cmd.Context())
	if err != nil {
		return err
	}
	rows := [][]any{{"ID", "Kind", "Location", "Area"}}
	for _, m := range meters {
		rows = append(rows, []any{m.ID, m.Kind, m.Location, m.Area})
	}
	return printTable(rows)
}

// monthRows lists balances per account type followed by the month totals.
func monthRows(o bookkeeping.MonthOverview) [][]any {
	rows := [][]any{{"Account", "Last month", "Current"}}
	for _, t := range bookkeeping.TrackedTypes {
		rows = append(rows, []any{string(t), o.LastMonth[t].Amount, o.Current[t].Amount})
	}
	rows = append(rows,
		[]any{"Income", "", o.Total.Income.Amount},
		[]any{"Expenses", "", o.Total.Expenses.Amount},
	)
	return rows
}

// printTable renders rows with the first row as header. Floats print with
// two decimals.
func printTable(rows [][]any) error {
	if len(rows) <= 1 {
		pterm.Info.Println("No data")
		return nil
	}
	data := make(pterm.TableData, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		data = append(data, cells)
	}
	return pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Render()
}

func formatCell(v any) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.2f", f)
	}
	return fmt.Sprint(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
