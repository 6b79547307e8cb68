package projection

import "time"

// ProjectionResult is one output row keyed by (config, scenario, date). Daily
// rows are the atomic unit; coarser rows are rollups of daily rows.
type ProjectionResult struct {
	SystemConfigID string      `json:"system_config_id"`
	ScenarioID     string      `json:"scenario_id"`
	Date           time.Time   `json:"projection_date"`
	Granularity    Granularity `json:"granularity"`
	PeriodKey      TimeKey     `json:"period_key"`
	Days           int         `json:"days"`

	EnergyFlowResult
	MiningResult

	ElectricityRateUSDPerKWh    float64 `json:"electricity_rate_usd_kwh"`
	NetMeteringRateUSDPerKWh    float64 `json:"net_metering_rate_usd_kwh"`
	GridImportCostUSD           float64 `json:"grid_import_cost_usd"`
	GridExportCreditUSD         float64 `json:"grid_export_credit_usd"`
	ElectricityCostUSD          float64 `json:"electricity_cost_usd"`
	MaintenanceCostUSD          float64 `json:"maintenance_cost_usd"`
	InsuranceCostUSD            float64 `json:"insurance_cost_usd"`
	EquipmentDepreciationUSD    float64 `json:"equipment_depreciation_usd"`
	PropertyTaxUSD              float64 `json:"property_tax_usd"`
	TotalOperatingCostUSD       float64 `json:"total_operating_cost_usd"`
	NetProfitUSD                float64 `json:"net_profit_usd"`
	CashFlowUSD                 float64 `json:"cash_flow_usd"`
	ProfitMarginPercent         float64 `json:"profit_margin_percent"`
	BreakEvenBTCPriceUSD        float64 `json:"break_even_btc_price_usd"`
	BreakEvenElectricityRateUSD float64 `json:"break_even_electricity_rate_usd"`
	CumulativeBTCMined          float64 `json:"cumulative_btc_mined"`
	CumulativeRevenueUSD        float64 `json:"cumulative_revenue_usd"`
	CumulativeNetProfitUSD      float64 `json:"cumulative_net_profit_usd"`
	CumulativeCashFlowUSD       float64 `json:"cumulative_cash_flow_usd"`
}

// FinancialSummary is the horizon-level result of a run. Nil pointers mean the
// metric is undefined for the horizon (for example payback not reached).
type FinancialSummary struct {
	Days                         int      `json:"days"`
	TotalInvestmentUSD           float64  `json:"total_investment_usd"`
	TotalBTCMined                float64  `json:"total_btc_mined"`
	TotalRevenueUSD              float64  `json:"total_revenue_usd"`
	TotalElectricityCostUSD      float64  `json:"total_electricity_cost_usd"`
	TotalOperatingCostUSD        float64  `json:"total_operating_cost_usd"`
	TotalNetProfitUSD            float64  `json:"total_net_profit_usd"`
	TotalSolarGenerationKWh      float64  `json:"total_solar_generation_kwh"`
	TotalGridImportKWh           float64  `json:"total_grid_import_kwh"`
	TotalGridExportKWh           float64  `json:"total_grid_export_kwh"`
	AvgMiningAvailabilityPercent float64  `json:"avg_mining_availability_percent"`
	ROIPercent                   float64  `json:"roi_percent"`
	NPVUSD                       float64  `json:"npv_usd"`
	IRRPercent                   *float64 `json:"irr_percent"`
	PaybackMonths                *float64 `json:"payback_months"`
	BreakEvenBTCPriceUSD         *float64 `json:"break_even_btc_price_usd"`
	BreakEvenElectricityRateUSD  *float64 `json:"break_even_electricity_rate_usd"`
	Notes                        []string `json:"notes,omitempty"`
}
