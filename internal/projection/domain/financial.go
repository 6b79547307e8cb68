package projection

import (
	"math"
	"time"
)

const daysPerCostYear = 365.0

// CostModel is the set of prices and cost rates in force on one date.
type CostModel struct {
	InvestmentUSD            float64
	ElectricityRateUSDPerKWh float64
	NetMeteringRateUSDPerKWh float64
	MaintenancePercentAnnual float64
	InsurancePercentAnnual   float64
	PropertyTaxPercentAnnual float64
	DepreciationYears        float64
	// DaysInService counts completed days since the system went live.
	DaysInService int
}

// CostModelAt builds the cost model for a date yearsElapsed after the run start.
func (e ResolvedEconomics) CostModelAt(investment, yearsElapsed float64, daysInService int) CostModel {
	return CostModel{
		InvestmentUSD:            investment,
		ElectricityRateUSDPerKWh: e.RateAt(yearsElapsed),
		NetMeteringRateUSDPerKWh: e.NetMeteringRateAt(yearsElapsed),
		MaintenancePercentAnnual: e.MaintenancePercentAnnual,
		InsurancePercentAnnual:   e.InsurancePercentAnnual,
		PropertyTaxPercentAnnual: e.PropertyTaxPercentAnnual,
		DepreciationYears:        e.DepreciationYears,
		DaysInService:            daysInService,
	}
}

// DailyDepreciation is straight-line over DepreciationYears and stops once the
// asset is fully written off.
func (c CostModel) DailyDepreciation() float64 {
	if c.DepreciationYears <= 0 || c.InvestmentUSD <= 0 {
		return 0
	}
	if float64(c.DaysInService) >= c.DepreciationYears*daysPerCostYear {
		return 0
	}
	return c.InvestmentUSD / (c.DepreciationYears * daysPerCostYear)
}

func (c CostModel) dailyPercentOf(pct float64) float64 {
	return c.InvestmentUSD * pct / 100 / daysPerCostYear
}

// DayStep is the simulated energy and mining output of one date.
type DayStep struct {
	Date   time.Time
	Energy EnergyFlowResult
	Mining MiningResult
}

// Accumulator carries the running totals of one run. It is owned by a single
// run and is not safe for concurrent use.
type Accumulator struct {
	configID   string
	scenarioID string

	cumulativeBTC      float64
	cumulativeRevenue  float64
	cumulativeNet      float64
	cumulativeCashFlow float64
}

// NewAccumulator starts the cumulative cash flow at -investment.
func NewAccumulator(configID, scenarioID string, investmentUSD float64) *Accumulator {
	return &Accumulator{
		configID:           configID,
		scenarioID:         scenarioID,
		cumulativeCashFlow: -investmentUSD,
	}
}

// Accumulate prices one day and folds it into the running totals.
func (a *Accumulator) Accumulate(step DayStep, costs CostModel) (ProjectionResult, error) {
	row := ProjectionResult{
		SystemConfigID:           a.configID,
		ScenarioID:               a.scenarioID,
		Date:                     TruncateToDay(step.Date),
		Granularity:              GranularityDaily,
		Days:                     1,
		EnergyFlowResult:         step.Energy,
		MiningResult:             step.Mining,
		ElectricityRateUSDPerKWh: costs.ElectricityRateUSDPerKWh,
		NetMeteringRateUSDPerKWh: costs.NetMeteringRateUSDPerKWh,
	}
	key, err := NewTimeKey(GranularityDaily, row.Date)
	if err != nil {
		return ProjectionResult{}, err
	}
	row.PeriodKey = key

	row.GridImportCostUSD = step.Energy.GridImportKWh * costs.ElectricityRateUSDPerKWh
	row.GridExportCreditUSD = step.Energy.GridExportKWh * costs.NetMeteringRateUSDPerKWh
	row.ElectricityCostUSD = row.GridImportCostUSD - row.GridExportCreditUSD
	row.MaintenanceCostUSD = costs.dailyPercentOf(costs.MaintenancePercentAnnual)
	row.InsuranceCostUSD = costs.dailyPercentOf(costs.InsurancePercentAnnual)
	row.PropertyTaxUSD = costs.dailyPercentOf(costs.PropertyTaxPercentAnnual)
	row.EquipmentDepreciationUSD = costs.DailyDepreciation()
	row.priceDerived()

	for _, v := range []float64{row.MiningRevenueUSD, row.TotalOperatingCostUSD, row.NetProfitUSD} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ProjectionResult{}, domainError(ComponentFinancial, "non-finite value on %s", row.Date.Format("2006-01-02"))
		}
	}

	a.cumulativeBTC += row.BTCMined
	a.cumulativeRevenue += row.MiningRevenueUSD
	a.cumulativeNet += row.NetProfitUSD
	a.cumulativeCashFlow += row.CashFlowUSD
	row.CumulativeBTCMined = a.cumulativeBTC
	row.CumulativeRevenueUSD = a.cumulativeRevenue
	row.CumulativeNetProfitUSD = a.cumulativeNet
	row.CumulativeCashFlowUSD = a.cumulativeCashFlow
	return row, nil
}

// priceDerived fills the fields computed from revenue and the cost lines.
func (r *ProjectionResult) priceDerived() {
	other := r.MaintenanceCostUSD + r.InsuranceCostUSD + r.EquipmentDepreciationUSD + r.PropertyTaxUSD
	r.TotalOperatingCostUSD = r.ElectricityCostUSD + other
	r.NetProfitUSD = r.MiningRevenueUSD - r.TotalOperatingCostUSD
	// Depreciation is a non-cash charge.
	r.CashFlowUSD = r.NetProfitUSD + r.EquipmentDepreciationUSD

	r.ProfitMarginPercent = 0
	if r.MiningRevenueUSD > 0 {
		r.ProfitMarginPercent = r.NetProfitUSD / r.MiningRevenueUSD * 100
	}
	r.BreakEvenBTCPriceUSD = 0
	if r.BTCMined > 0 {
		r.BreakEvenBTCPriceUSD = math.Max(0, r.TotalOperatingCostUSD/r.BTCMined)
	}
	r.BreakEvenElectricityRateUSD = 0
	if r.GridImportKWh > 0 {
		r.BreakEvenElectricityRateUSD = math.Max(0, (r.MiningRevenueUSD-other+r.GridExportCreditUSD)/r.GridImportKWh)
	}
}
