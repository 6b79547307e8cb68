package projection

// EquipmentKind names a catalog category.
type EquipmentKind string

const (
	KindMiner      EquipmentKind = "miner"
	KindSolarPanel EquipmentKind = "solar_panel"
	KindStorage    EquipmentKind = "storage"
	KindInverter   EquipmentKind = "inverter"
)

// MinerSpec is a read-only catalog entry for an ASIC miner.
type MinerSpec struct {
	ID                          string  `json:"id" yaml:"id"`
	Manufacturer                string  `json:"manufacturer" yaml:"manufacturer"`
	Model                       string  `json:"model" yaml:"model"`
	HashrateTH                  float64 `json:"hashrate_th" yaml:"hashrate_th"`
	PowerW                      float64 `json:"power_w" yaml:"power_w"`
	HashrateDegradationAnnual   float64 `json:"hashrate_degradation_annual" yaml:"hashrate_degradation_annual"`
	EfficiencyDegradationAnnual float64 `json:"efficiency_degradation_annual" yaml:"efficiency_degradation_annual"`
	FailureRateAnnual           float64 `json:"failure_rate_annual" yaml:"failure_rate_annual"`
	MinTemperatureC             float64 `json:"min_temperature_c" yaml:"min_temperature_c"`
	MaxTemperatureC             float64 `json:"max_temperature_c" yaml:"max_temperature_c"`
	CostUSD                     float64 `json:"cost_usd" yaml:"cost_usd"`
}

// EfficiencyJTH returns joules per terahash at nameplate.
func (m MinerSpec) EfficiencyJTH() float64 {
	if m.HashrateTH <= 0 {
		return 0
	}
	return m.PowerW / m.HashrateTH
}

// SolarPanelSpec is a read-only catalog entry for a PV module.
type SolarPanelSpec struct {
	ID                     string  `json:"id" yaml:"id"`
	Manufacturer           string  `json:"manufacturer" yaml:"manufacturer"`
	Model                  string  `json:"model" yaml:"model"`
	RatedPowerW            float64 `json:"rated_power_w" yaml:"rated_power_w"`
	Efficiency             float64 `json:"efficiency" yaml:"efficiency"`
	TemperatureCoefficient float64 `json:"temperature_coefficient" yaml:"temperature_coefficient"` // %/°C, typically negative
	NOCTC                  float64 `json:"noct_c" yaml:"noct_c"`
	DegradationAnnual      float64 `json:"degradation_annual" yaml:"degradation_annual"`
	FailureRateAnnual      float64 `json:"failure_rate_annual" yaml:"failure_rate_annual"`
	CostUSD                float64 `json:"cost_usd" yaml:"cost_usd"`
}

// StorageSpec is a read-only catalog entry for a battery unit.
type StorageSpec struct {
	ID                        string  `json:"id" yaml:"id"`
	Manufacturer              string  `json:"manufacturer" yaml:"manufacturer"`
	Model                     string  `json:"model" yaml:"model"`
	CapacityKWh               float64 `json:"capacity_kwh" yaml:"capacity_kwh"`
	DepthOfDischarge          float64 `json:"depth_of_discharge" yaml:"depth_of_discharge"`
	MaxChargeKW               float64 `json:"max_charge_kw" yaml:"max_charge_kw"`
	MaxDischargeKW            float64 `json:"max_discharge_kw" yaml:"max_discharge_kw"`
	RoundTripEfficiency       float64 `json:"round_trip_efficiency" yaml:"round_trip_efficiency"`
	CapacityDegradationAnnual float64 `json:"capacity_degradation_annual" yaml:"capacity_degradation_annual"`
	FailureRateAnnual         float64 `json:"failure_rate_annual" yaml:"failure_rate_annual"`
	CostUSD                   float64 `json:"cost_usd" yaml:"cost_usd"`
}

// UsableFraction returns the depth of discharge, defaulting to full capacity.
func (s StorageSpec) UsableFraction() float64 {
	if s.DepthOfDischarge <= 0 || s.DepthOfDischarge > 1 {
		return 1
	}
	return s.DepthOfDischarge
}

// InverterSpec is a read-only catalog entry for an inverter.
type InverterSpec struct {
	ID                string  `json:"id" yaml:"id"`
	Manufacturer      string  `json:"manufacturer" yaml:"manufacturer"`
	Model             string  `json:"model" yaml:"model"`
	RatedPowerKW      float64 `json:"rated_power_kw" yaml:"rated_power_kw"`
	Efficiency        float64 `json:"efficiency" yaml:"efficiency"`
	DegradationAnnual float64 `json:"degradation_annual" yaml:"degradation_annual"`
	FailureRateAnnual float64 `json:"failure_rate_annual" yaml:"failure_rate_annual"`
	CostUSD           float64 `json:"cost_usd" yaml:"cost_usd"`
}
