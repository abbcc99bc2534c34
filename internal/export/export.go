// Package export renders meter bills and yearly utility overviews as XLSX,
// PDF or spreadsheet rows.
package export

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"bilancio/internal/core"
	"bilancio/internal/metering"
	"bilancio/internal/metrics"
	"bilancio/internal/sheets"
)

const (
	FormatXLSX   = "xlsx"
	FormatPDF    = "pdf"
	FormatSheets = "sheets"

	dateLayout = "2006-01-02"
)

var (
	billHeader     = []any{"Year", "From", "To", "Consumption", "Days", "Unit", "Base", "Total", "Currency", "Paid"}
	overviewHeader = []any{"Year", "Cold water", "Warm water", "Heating", "Unit", "Base", "Total"}
)

// BillRows returns a header row followed by one row per bill.
func BillRows(bills []metering.Bill) [][]any {
	rows := [][]any{billHeader}
	for _, b := range bills {
		var paid any = ""
		if b.Payments != nil {
			paid = b.Payments.Sum.Amount
		}
		rows = append(rows, []any{
			b.Year,
			b.From.Format(dateLayout),
			b.To.Format(dateLayout),
			b.Consumption,
			b.Days,
			b.Cost.Unit.Amount,
			b.Cost.Base.Amount,
			b.Cost.Total.Amount,
			string(b.Cost.Total.Currency),
			paid,
		})
	}
	return rows
}

// OverviewRows returns a header row followed by one row per year, oldest
// first.
func OverviewRows(years map[int]metering.YearSummary) [][]any {
	keys := make([]int, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	slices.Sort(keys)

	rows := [][]any{overviewHeader}
	for _, y := range keys {
		s := years[y]
		var heating float64
		for _, h := range s.Heaters {
			heating += h.Cost.Total.Amount
		}
		rows = append(rows, []any{
			y,
			billTotal(s.Cold),
			billTotal(s.Warm),
			heating,
			s.Cost.Unit.Amount,
			s.Cost.Base.Amount,
			s.Cost.Total.Amount,
		})
	}
	return rows
}

func billTotal(b *metering.Bill) float64 {
	if b == nil {
		return 0
	}
	return b.Cost.Total.Amount
}

// BillsXLSX renders the bills of one meter as a workbook with a summary and
// a bills sheet.
func BillsXLSX(m core.Meter, bills []metering.Bill) (out []byte, err error) {
	defer observe(FormatXLSX, time.Now(), &err)

	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	f.SetSheetName("Sheet1", summarySheet)

	_ = f.SetCellValue(summarySheet, "A1", "Meter Bills")
	_ = f.SetCellValue(summarySheet, "A3", "Meter")
	_ = f.SetCellValue(summarySheet, "B3", m.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Kind")
	_ = f.SetCellValue(summarySheet, "B4", string(m.Kind))
	_ = f.SetCellValue(summarySheet, "A5", "Location")
	_ = f.SetCellValue(summarySheet, "B5", m.Location)
	_ = f.SetCellValue(summarySheet, "A6", "Bills")
	_ = f.SetCellValue(summarySheet, "B6", len(bills))
	_ = f.SetCellValue(summarySheet, "A7", "Total")
	_ = f.SetCellValue(summarySheet, "B7", sumTotals(bills))

	if err := writeSheet(f, "bills", BillRows(bills)); err != nil {
		return nil, err
	}
	return writeWorkbook(f)
}

// OverviewXLSX renders the yearly utility overview as a workbook.
func OverviewXLSX(years map[int]metering.YearSummary) (out []byte, err error) {
	defer observe(FormatXLSX, time.Now(), &err)

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", "overview")
	if err := writeSheet(f, "overview", OverviewRows(years)); err != nil {
		return nil, err
	}
	return writeWorkbook(f)
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeWorkbook(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BillsPDF renders the bills of one meter as a one-table report.
func BillsPDF(m core.Meter, bills []metering.Bill) (out []byte, err error) {
	defer observe(FormatPDF, time.Now(), &err)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Meter Bills")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Meter: %s (%s)", m.ID, m.Kind))
	pdf.Ln(5)
	if m.Location != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Location: %s", m.Location))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Total: %.2f", sumTotals(bills)))
	pdf.Ln(8)

	table(pdf, []float64{18, 28, 28, 30, 18, 28, 28, 28, 22, 28}, BillRows(bills))
	return outputPDF(pdf)
}

// OverviewPDF renders the yearly utility overview.
func OverviewPDF(years map[int]metering.YearSummary) (out []byte, err error) {
	defer observe(FormatPDF, time.Now(), &err)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, "Utility Overview")
	pdf.Ln(10)

	table(pdf, []float64{20, 28, 28, 28, 28, 28, 28}, OverviewRows(years))
	return outputPDF(pdf)
}

// table draws rows with a bold header; numbers are right aligned.
func table(pdf *gofpdf.Fpdf, widths []float64, rows [][]any) {
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		pdf.SetFont("Arial", style, 9)
		for j, v := range row {
			align := "C"
			text := fmt.Sprint(v)
			if f, ok := v.(float64); ok {
				align, text = "R", fmt.Sprintf("%.2f", f)
			}
			pdf.CellFormat(widths[j], 6, text, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func outputPDF(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sumTotals(bills []metering.Bill) float64 {
	var total float64
	for _, b := range bills {
		total += b.Cost.Total.Amount
	}
	return total
}

// SheetsExporter publishes bills and overviews to a spreadsheet.
type SheetsExporter struct {
	writer sheets.RowWriter
}

func NewSheetsExporter(w sheets.RowWriter) *SheetsExporter {
	return &SheetsExporter{writer: w}
}

// ExportBills writes the bills of m to a sheet named after the meter.
func (e *SheetsExporter) ExportBills(ctx context.Context, m core.Meter, bills []metering.Bill) (ref string, err error) {
	defer observe(FormatSheets, time.Now(), &err)
	return e.writer.WriteRows(ctx, "Meter "+m.ID, BillRows(bills))
}

// ExportOverview writes the yearly overview to the "Utilities" sheet.
func (e *SheetsExporter) ExportOverview(ctx context.Context, years map[int]metering.YearSummary) (ref string, err error) {
	defer observe(FormatSheets, time.Now(), &err)
	return e.writer.WriteRows(ctx, "Utilities", OverviewRows(years))
}

func observe(format string, start time.Time, err *error) {
	metrics.ObserveExport(format, *err, time.Since(start))
}
