package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"solarmine-planner/internal/observability/metrics"
	projection "solarmine-planner/internal/projection/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Report is the exported view of one (configuration, scenario) projection.
type Report struct {
	SystemConfigID string
	ScenarioID     string
	Granularity    projection.Granularity
	Rows           []projection.ProjectionResult
	Summary        projection.FinancialSummary
	GeneratedAt    time.Time
}

// Build renders the report in format.
func Build(format string, report Report) ([]byte, error) {
	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatXLSX:
		data, err = BuildXLSX(report)
	case FormatPDF:
		data, err = BuildPDF(report)
	default:
		err = fmt.Errorf("export: unsupported format %q", format)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(format, result, time.Since(start))
	return data, err
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FormatBTC renders an amount rounded to whole satoshis without trailing
// zeros, e.g. "0.00018 BTC".
func FormatBTC(btc float64) string {
	amount, err := btcutil.NewAmount(btc)
	if err != nil {
		return fmt.Sprintf("%.8f BTC", btc)
	}
	return strconv.FormatFloat(amount.ToBTC(), 'f', -1, 64) + " " + btcutil.AmountBTC.String()
}

// Satoshis rounds btc to whole satoshis.
func Satoshis(btc float64) int64 {
	amount, err := btcutil.NewAmount(btc)
	if err != nil {
		return 0
	}
	return int64(amount)
}

var resultColumns = []string{
	"Period", "Days", "Solar (kWh)", "Mining (kWh)", "Grid Import (kWh)", "Grid Export (kWh)",
	"Mining Hours", "BTC Mined", "Satoshis", "Revenue (USD)", "Electricity (USD)",
	"Operating Cost (USD)", "Net Profit (USD)", "Cumulative Cash Flow (USD)",
}

func resultValues(r projection.ProjectionResult) []any {
	return []any{
		r.PeriodKey.String(), r.Days, r.SolarGenerationKWh, r.MiningConsumptionKWh, r.GridImportKWh, r.GridExportKWh,
		r.EffectiveMiningHours, r.BTCMined, Satoshis(r.BTCMined), r.MiningRevenueUSD, r.ElectricityCostUSD,
		r.TotalOperatingCostUSD, r.NetProfitUSD, r.CumulativeCashFlowUSD,
	}
}

type summaryLine struct {
	label string
	value string
}

func summaryLines(report Report) []summaryLine {
	s := report.Summary
	lines := []summaryLine{
		{"Configuration", report.SystemConfigID},
		{"Scenario", report.ScenarioID},
		{"Granularity", string(report.Granularity)},
		{"Generated", report.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Days", fmt.Sprintf("%d", s.Days)},
		{"Total BTC Mined", FormatBTC(s.TotalBTCMined)},
		{"Total Revenue (USD)", fmt.Sprintf("%.2f", s.TotalRevenueUSD)},
		{"Total Operating Cost (USD)", fmt.Sprintf("%.2f", s.TotalOperatingCostUSD)},
		{"Total Net Profit (USD)", fmt.Sprintf("%.2f", s.TotalNetProfitUSD)},
		{"ROI (%)", fmt.Sprintf("%.2f", s.ROIPercent)},
		{"NPV (USD)", fmt.Sprintf("%.2f", s.NPVUSD)},
		{"IRR (%)", optional(s.IRRPercent, "%.2f", "n/a")},
		{"Payback (months)", optional(s.PaybackMonths, "%.1f", "not reached")},
		{"Break-even BTC Price (USD)", optional(s.BreakEvenBTCPriceUSD, "%.2f", "n/a")},
		{"Break-even Electricity Rate (USD/kWh)", optional(s.BreakEvenElectricityRateUSD, "%.4f", "n/a")},
	}
	return lines
}

func optional(v *float64, format, missing string) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf(format, *v)
}

// BuildXLSX renders a summary sheet and a results sheet.
func BuildXLSX(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	resultsSheet := "results"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Solar Mining Projection")
	for i, line := range summaryLines(report) {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), line.label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), line.value)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 38)
	_ = f.SetColWidth(summarySheet, "B", "B", 24)

	for col, title := range resultColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(resultsSheet, cell, title)
	}
	for i, r := range report.Rows {
		for col, value := range resultValues(r) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(resultsSheet, cell, value)
		}
	}
	_ = f.SetPanes(resultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders the summary and a condensed results table. Daily reports
// longer than a year are rolled up to months to keep the table readable.
func BuildPDF(report Report) ([]byte, error) {
	rows := report.Rows
	if report.Granularity == projection.GranularityDaily && len(rows) > 366 {
		rolled, err := projection.Rollup(rows, projection.GranularityMonthly)
		if err != nil {
			return nil, err
		}
		rows = rolled
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, "Solar Mining Projection")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, line := range summaryLines(report) {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %s", line.label, line.value))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	headers := []string{"Period", "Days", "Solar kWh", "Mining kWh", "BTC", "Revenue", "Op. Cost", "Net Profit", "Cum. Cash"}
	widths := []float64{30, 14, 30, 30, 34, 30, 30, 30, 34}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, r := range rows {
		values := []string{
			r.PeriodKey.String(),
			fmt.Sprintf("%d", r.Days),
			fmt.Sprintf("%.1f", r.SolarGenerationKWh),
			fmt.Sprintf("%.1f", r.MiningConsumptionKWh),
			fmt.Sprintf("%.8f", r.BTCMined),
			fmt.Sprintf("%.2f", r.MiningRevenueUSD),
			fmt.Sprintf("%.2f", r.TotalOperatingCostUSD),
			fmt.Sprintf("%.2f", r.NetProfitUSD),
			fmt.Sprintf("%.2f", r.CumulativeCashFlowUSD),
		}
		for i, v := range values {
			align := "R"
			if i == 0 {
				align = "C"
			}
			pdf.CellFormat(widths[i], 6, v, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
