package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bilancio/internal/cli"
	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/sources"
)

var (
	addBillable bool
	addBill     string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a meter reading or payment to the logs",
}

var addMeasurementCmd = &cobra.Command{
	Use:     "measurement <meter> <date> <value>",
	Short:   "Append a cumulative meter reading",
	Example: `  bilancio add measurement e1 2024-06-30 1532.4 --billable`,
	Args:    cobra.ExactArgs(3),
	RunE:    runAddMeasurement,
}

var addPaymentCmd = &cobra.Command{
	Use:     "payment <meter> <date> <amount>",
	Short:   "Append a payment instalment of a bill",
	Example: `  bilancio add payment e1 2024-07-15 42.50 --bill 2024-1`,
	Args:    cobra.ExactArgs(3),
	RunE:    runAddPayment,
}

func init() {
	addMeasurementCmd.Flags().BoolVar(&addBillable, "billable", false, "reading closes a billing interval")
	addPaymentCmd.Flags().StringVar(&addBill, "bill", "", "bill identifier shared by its instalments")
	_ = addPaymentCmd.MarkFlagRequired("bill")

	addCmd.AddCommand(addMeasurementCmd, addPaymentCmd)
	rootCmd.AddCommand(addCmd)
}

func runAddMeasurement(cmd *cobra.Command, args []string) error {
	date, value, err := parseDateValue(args[1], args[2])
	if err != nil {
		return err
	}
	return appendRecord(cmd, args[0], sources.Measurements, core.MeterMeasurement{
		Meter:       args[0],
		Date:        date,
		Measurement: value,
		Billable:    addBillable,
	})
}

func runAddPayment(cmd *cobra.Command, args []string) error {
	date, amount, err := parseDateValue(args[1], args[2])
	if err != nil {
		return err
	}
	return appendRecord(cmd, args[0], sources.Payments, core.MeterPayment{
		Meter: args[0],
		Date:  date,
		Value: core.Euro(amount),
		Bill:  core.BillID(addBill),
	})
}

// appendRecord writes record for a known meter. The memory backend only
// holds a copy of the logs, so it is refused.
func appendRecord(cmd *cobra.Command, meterID string, collection sources.Collection, record any) error {
	ctx := cmd.Context()
	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	if app.Config.DataBackend != "jsonl" {
		return fmt.Errorf("add needs the jsonl backend, not %q", app.Config.DataBackend)
	}
	if err := knownMeter(cmd, app, meterID); err != nil {
		return err
	}
	if err := app.Store.Append(ctx, collection, record); err != nil {
		return err
	}
	pterm.Success.Printfln("Appended to %s in %s", collection, app.Config.DataDir)
	return nil
}

func knownMeter(cmd *cobra.Command, app *cli.App, id string) error {
	meters, err := app.Reports.Meters(cmd.Context())
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(meters, func(m core.Meter) bool { return m.ID == id }) {
		return fmt.Errorf("%w: %s", services.ErrMeterNotFound, id)
	}
	return nil
}

func parseDateValue(date, value string) (core.Date, float64, error) {
	var d core.Date
	if err := d.UnmarshalJSON([]byte(strconv.Quote(date))); err != nil {
		return core.Date{}, 0, fmt.Errorf("%w: date %q", core.ErrMalformedInput, date)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return core.Date{}, 0, fmt.Errorf("%w: number %q", core.ErrMalformedInput, value)
	}
	return d, v, nil
}
