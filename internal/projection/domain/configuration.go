package projection

import "time"

// GridConnectionType describes how the site connects to the utility grid.
type GridConnectionType string

const (
	GridNone        GridConnectionType = "none"
	GridTied        GridConnectionType = "grid_tied"
	GridNetMetering GridConnectionType = "net_metering"
)

// MiningMode selects the dispatch policy for miners.
type MiningMode string

const (
	MiningSolarOnly    MiningMode = "solar_only"
	MiningHybrid       MiningMode = "hybrid"
	MiningGridAssisted MiningMode = "grid_assisted"
)

// Location is a project site.
type Location struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Elevation float64 `json:"elevation_m" yaml:"elevation_m"`
	Timezone  string  `json:"timezone" yaml:"timezone"`
}

// LineItemOverrides replaces individual catalog ratings for one line item.
type LineItemOverrides struct {
	HashrateTH       *float64   `json:"hashrate_th,omitempty" yaml:"hashrate_th,omitempty"`
	PowerW           *float64   `json:"power_w,omitempty" yaml:"power_w,omitempty"`
	RatedPowerW      *float64   `json:"rated_power_w,omitempty" yaml:"rated_power_w,omitempty"`
	CapacityKWh      *float64   `json:"capacity_kwh,omitempty" yaml:"capacity_kwh,omitempty"`
	CostUSD          *float64   `json:"cost_usd,omitempty" yaml:"cost_usd,omitempty"`
	InstallationDate *time.Time `json:"installation_date,omitempty" yaml:"installation_date,omitempty"`
}

// LineItem references a catalog entry with a quantity.
type LineItem struct {
	EquipmentID string             `json:"equipment_id" yaml:"equipment_id"`
	Quantity    int                `json:"quantity" yaml:"quantity"`
	Overrides   *LineItemOverrides `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// EconomicParameters are the baseline economics of a configuration.
type EconomicParameters struct {
	ElectricityRateUSDPerKWh    float64 `json:"electricity_rate_usd_kwh" yaml:"electricity_rate_usd_kwh"`
	NetMeteringRateUSDPerKWh    float64 `json:"net_metering_rate_usd_kwh" yaml:"net_metering_rate_usd_kwh"`
	ElectricityEscalationAnnual float64 `json:"electricity_escalation_annual" yaml:"electricity_escalation_annual"`
	DiscountRateAnnual          float64 `json:"discount_rate_annual" yaml:"discount_rate_annual"`
	MaintenancePercentAnnual    float64 `json:"maintenance_percent_annual" yaml:"maintenance_percent_annual"`
	InsurancePercentAnnual      float64 `json:"insurance_percent_annual" yaml:"insurance_percent_annual"`
	PropertyTaxPercentAnnual    float64 `json:"property_tax_percent_annual" yaml:"property_tax_percent_annual"`
	InstallationCostUSD         float64 `json:"installation_cost_usd" yaml:"installation_cost_usd"`
	DepreciationYears           float64 `json:"depreciation_years" yaml:"depreciation_years"`
}

// SystemConfiguration is a named equipment bundle at a site.
// It is immutable for the duration of a projection run.
type SystemConfiguration struct {
	ID               string             `json:"id" yaml:"id"`
	UserID           string             `json:"user_id" yaml:"user_id"`
	Name             string             `json:"name" yaml:"name"`
	Location         Location           `json:"location" yaml:"location"`
	Miners           []LineItem         `json:"miners" yaml:"miners"`
	SolarPanels      []LineItem         `json:"solar_panels" yaml:"solar_panels"`
	Storage          []LineItem         `json:"storage" yaml:"storage"`
	Inverter         *LineItem          `json:"inverter,omitempty" yaml:"inverter,omitempty"`
	Economics        EconomicParameters `json:"economics" yaml:"economics"`
	GridConnection   GridConnectionType `json:"grid_connection_type" yaml:"grid_connection_type"`
	MiningMode       MiningMode         `json:"mining_mode" yaml:"mining_mode"`
	MaxGridPowerKW   float64            `json:"max_grid_power_kw" yaml:"max_grid_power_kw"`
	PerformanceRatio float64            `json:"performance_ratio" yaml:"performance_ratio"`
	InstallationDate time.Time          `json:"installation_date" yaml:"installation_date"`
}

// HasGrid reports whether grid import/export is possible.
func (c SystemConfiguration) HasGrid() bool {
	return c.GridConnection != "" && c.GridConnection != GridNone
}

// Validate checks structural invariants of the configuration.
func (c SystemConfiguration) Validate() error {
	groups := [][]LineItem{c.Miners, c.SolarPanels, c.Storage}
	for _, items := range groups {
		for _, item := range items {
			if item.Quantity < 0 {
				return ErrInvalidQuantity
			}
		}
	}
	if c.Inverter != nil && c.Inverter.Quantity < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Equipment is the catalog content referenced by a configuration.
type Equipment struct {
	Miners      map[string]MinerSpec
	SolarPanels map[string]SolarPanelSpec
	Storage     map[string]StorageSpec
	Inverters   map[string]InverterSpec
}

// TotalInvestmentUSD returns equipment cost (after per-item overrides and the
// scenario cost multiplier) plus installation cost.
func TotalInvestmentUSD(cfg SystemConfiguration, eq Equipment, costMultiplier, installationCost float64) (float64, error) {
	var total float64
	for _, item := range cfg.Miners {
		spec, ok := eq.Miners[item.EquipmentID]
		if !ok {
			return 0, ErrEquipmentNotFound
		}
		total += itemCost(spec.CostUSD, item) * float64(item.Quantity)
	}
	for _, item := range cfg.SolarPanels {
		spec, ok := eq.SolarPanels[item.EquipmentID]
		if !ok {
			return 0, ErrEquipmentNotFound
		}
		total += itemCost(spec.CostUSD, item) * float64(item.Quantity)
	}
	for _, item := range cfg.Storage {
		spec, ok := eq.Storage[item.EquipmentID]
		if !ok {
			return 0, ErrEquipmentNotFound
		}
		total += itemCost(spec.CostUSD, item) * float64(item.Quantity)
	}
	if cfg.Inverter != nil {
		spec, ok := eq.Inverters[cfg.Inverter.EquipmentID]
		if !ok {
			return 0, ErrEquipmentNotFound
		}
		total += itemCost(spec.CostUSD, *cfg.Inverter) * float64(cfg.Inverter.Quantity)
	}
	return total*costMultiplier + installationCost, nil
}

func itemCost(base float64, item LineItem) float64 {
	if item.Overrides != nil && item.Overrides.CostUSD != nil {
		return *item.Overrides.CostUSD
	}
	return base
}
