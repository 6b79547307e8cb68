package projection

import (
	"errors"
	"math"
)

const (
	irrLowerMonthly    = -0.99
	irrUpperMonthly    = 10.0
	bisectIterations   = 200
	bisectTolerance    = 1e-12
	breakEvenPriceCeil = 1e8
	daysPerMonth       = daysPerYear / 12
)

// Summarize computes horizon metrics from daily rows in date order.
// Cash flows are grouped by calendar month with period 0 carrying -investment;
// NPV discounts them at the monthly equivalent of the annual discount rate.
func Summarize(rows []ProjectionResult, investmentUSD float64, econ ResolvedEconomics) FinancialSummary {
	out := FinancialSummary{
		Days:               len(rows),
		TotalInvestmentUSD: investmentUSD,
	}
	if len(rows) == 0 {
		out.NPVUSD = -investmentUSD
		return out
	}

	var availability, otherCost, importCost, exportCredit, importKWh float64
	for _, r := range rows {
		out.TotalBTCMined += r.BTCMined
		out.TotalRevenueUSD += r.MiningRevenueUSD
		out.TotalElectricityCostUSD += r.ElectricityCostUSD
		out.TotalOperatingCostUSD += r.TotalOperatingCostUSD
		out.TotalNetProfitUSD += r.NetProfitUSD
		out.TotalSolarGenerationKWh += r.SolarGenerationKWh
		out.TotalGridImportKWh += r.GridImportKWh
		out.TotalGridExportKWh += r.GridExportKWh
		availability += r.MiningAvailabilityPercent
		otherCost += r.MaintenanceCostUSD + r.InsuranceCostUSD + r.EquipmentDepreciationUSD + r.PropertyTaxUSD
		importCost += r.GridImportCostUSD
		exportCredit += r.GridExportCreditUSD
		importKWh += r.GridImportKWh
	}
	out.AvgMiningAvailabilityPercent = availability / float64(len(rows))
	if investmentUSD > 0 {
		out.ROIPercent = out.TotalNetProfitUSD / investmentUSD * 100
	}

	flows := MonthlyCashFlows(rows, investmentUSD)
	monthlyRate := math.Pow(1+econ.DiscountRateAnnual, 1.0/12) - 1
	out.NPVUSD = NPV(flows, monthlyRate)

	if irr, err := IRR(flows); err == nil {
		pct := (math.Pow(1+irr, 12) - 1) * 100
		out.IRRPercent = &pct
	} else {
		out.Notes = append(out.Notes, "irr: "+err.Error())
	}

	if months, ok := PaybackMonths(rows, investmentUSD); ok {
		out.PaybackMonths = &months
	}

	// Net profit is linear in the electricity rate path, so solve directly.
	if importKWh > 0 {
		var rate float64
		if importCost > 0 && econ.ElectricityRateUSDPerKWh > 0 {
			rate = econ.ElectricityRateUSDPerKWh * (out.TotalRevenueUSD - otherCost + exportCredit) / importCost
		} else {
			rate = (out.TotalRevenueUSD - otherCost + exportCredit) / importKWh
		}
		if rate >= 0 {
			out.BreakEvenElectricityRateUSD = &rate
		}
	}

	if price, ok := breakEvenPrice(rows); ok {
		out.BreakEvenBTCPriceUSD = &price
	}
	return out
}

// breakEvenPrice searches the starting BTC price at which horizon net profit is
// zero, keeping each day's price growth relative to the first day.
func breakEvenPrice(rows []ProjectionResult) (float64, bool) {
	if len(rows) == 0 || rows[0].BTCPriceUSD <= 0 {
		return 0, false
	}
	base := rows[0].BTCPriceUSD
	netAt := func(price float64) float64 {
		var net float64
		for _, r := range rows {
			net += r.BTCMined*r.BTCPriceUSD/base*price - r.TotalOperatingCostUSD
		}
		return net
	}
	price, err := bisect(netAt, 0, breakEvenPriceCeil)
	if err != nil {
		return 0, false
	}
	return price, true
}

// MonthlyCashFlows returns [-investment, month1, month2, ...] grouped by
// calendar month of the daily rows.
func MonthlyCashFlows(rows []ProjectionResult, investmentUSD float64) []float64 {
	flows := []float64{-investmentUSD}
	var current TimeKey
	for _, r := range rows {
		key, err := NewTimeKey(GranularityMonthly, r.Date)
		if err != nil {
			continue
		}
		if key != current {
			flows = append(flows, 0)
			current = key
		}
		flows[len(flows)-1] += r.CashFlowUSD
	}
	return flows
}

// NPV discounts flows[i] by (1+rate)^i.
func NPV(flows []float64, rate float64) float64 {
	var npv float64
	for i, cf := range flows {
		npv += cf / math.Pow(1+rate, float64(i))
	}
	return npv
}

// IRR solves NPV(flows, r) = 0 per period by bisection on [-0.99, 10].
func IRR(flows []float64) (float64, error) {
	rate, err := bisect(func(r float64) float64 { return NPV(flows, r) }, irrLowerMonthly, irrUpperMonthly)
	if err != nil {
		return 0, ErrIRRNotConverged
	}
	return rate, nil
}

// PaybackMonths returns when the cumulative cash flow first reaches zero,
// interpolated within the crossing day.
func PaybackMonths(rows []ProjectionResult, investmentUSD float64) (float64, bool) {
	if investmentUSD <= 0 {
		return 0, true
	}
	cumulative := -investmentUSD
	for i, r := range rows {
		next := cumulative + r.CashFlowUSD
		if next >= 0 {
			fraction := 1.0
			if r.CashFlowUSD > 0 {
				fraction = -cumulative / r.CashFlowUSD
			}
			return (float64(i) + fraction) / daysPerMonth, true
		}
		cumulative = next
	}
	return 0, false
}

var errNoSignChange = errors.New("projection: no sign change in bracket")

// bisect finds a root of f in [lo, hi]. f(lo) and f(hi) must differ in sign.
func bisect(f func(float64) float64, lo, hi float64) (float64, error) {
	flo, fhi := f(lo), f(hi)
	if math.IsNaN(flo) || math.IsNaN(fhi) {
		return 0, errNoSignChange
	}
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if (flo > 0) == (fhi > 0) {
		return 0, errNoSignChange
	}
	for i := 0; i < bisectIterations; i++ {
		mid := (lo + hi) / 2
		fmid := f(mid)
		if fmid == 0 || (hi-lo)/2 < bisectTolerance {
			return mid, nil
		}
		if (fmid > 0) == (flo > 0) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
