package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bilancio/internal/cli"
	"bilancio/internal/export"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export bills or the utility overview",
}

var exportMeterCmd = &cobra.Command{
	Use:     "meter <id>",
	Short:   "Export the bills of one meter",
	Example: `  bilancio export meter e1 --format pdf --out e1.pdf`,
	Args:    cobra.ExactArgs(1),
	RunE:    runExportMeter,
}

var exportUtilitiesCmd = &cobra.Command{
	Use:     "utilities",
	Short:   "Export the yearly utility overview",
	Example: `  bilancio export utilities --format sheets`,
	Args:    cobra.NoArgs,
	RunE:    runExportUtilities,
}

func init() {
	for _, c := range []*cobra.Command{exportMeterCmd, exportUtilitiesCmd} {
		c.Flags().StringVar(&exportFormat, "format", export.FormatXLSX, "xlsx, pdf or sheets")
		c.Flags().StringVar(&exportOut, "out", "", "output file (default <name>.<format>)")
	}
	exportCmd.AddCommand(exportMeterCmd, exportUtilitiesCmd)
	rootCmd.AddCommand(exportCmd)
}

func runExportMeter(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	report, err := app.Reports.MeterReport(ctx, args[0])
	if err != nil {
		return err
	}

	switch exportFormat {
	case export.FormatSheets:
		return exportToSheets(cmd, app, func(e *export.SheetsExporter) (string, error) {
			return e.ExportBills(ctx, report.Meter, report.Bills)
		})
	case export.FormatXLSX:
		data, err := export.BillsXLSX(report.Meter, report.Bills)
		return writeExport(data, err, "meter-"+report.Meter.ID)
	case export.FormatPDF:
		data, err := export.BillsPDF(report.Meter, report.Bills)
		return writeExport(data, err, "meter-"+report.Meter.ID)
	default:
		return fmt.Errorf("unsupported format %q", exportFormat)
	}
}

func runExportUtilities(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	overview, err := app.Reports.UtilityOverview(ctx)
	if err != nil {
		return err
	}
	for _, f := range overview.Failures {
		pterm.Warning.Printfln("meter %s skipped: %s", f.Meter, f.Error)
	}

	switch exportFormat {
	case export.FormatSheets:
		return exportToSheets(cmd, app, func(e *export.SheetsExporter) (string, error) {
			return e.ExportOverview(ctx, overview.Years)
		})
	case export.FormatXLSX:
		data, err := export.OverviewXLSX(overview.Years)
		return writeExport(data, err, "utilities")
	case export.FormatPDF:
		data, err := export.OverviewPDF(overview.Years)
		return writeExport(data, err, "utilities")
	default:
		return fmt.Errorf("unsupported format %q", exportFormat)
	}
}

func exportToSheets(cmd *cobra.Command, app *cli.App, write func(*export.SheetsExporter) (string, error)) error {
	exporter, err := app.SheetsExporter(cmd.Context())
	if err != nil {
		return err
	}
	ref, err := write(exporter)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Written to %s", ref)
	return nil
}

func writeExport(data []byte, err error, name string) error {
	if err != nil {
		return err
	}
	path := exportOut
	if path == "" {
		path = name + "." + exportFormat
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	pterm.Success.Printfln("Written to %s", path)
	return nil
}
