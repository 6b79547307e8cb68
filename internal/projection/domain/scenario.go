package projection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Override group names as stored on a scenario.
const (
	GroupBitcoin       = "bitcoin_parameters"
	GroupEconomic      = "economic_parameters"
	GroupEnvironmental = "environmental_parameters"
	GroupEquipment     = "equipment_parameters"
)

const (
	defaultPerformanceRatio  = 0.8
	defaultDepreciationYears = 5.0
)

// Scenario layers override groups on a system configuration.
// Groups are kept as raw JSON until resolved.
type Scenario struct {
	ID                      string          `json:"id"`
	SystemConfigID          string          `json:"system_config_id"`
	Name                    string          `json:"name"`
	Description             string          `json:"description,omitempty"`
	IsBaseline              bool            `json:"is_baseline"`
	BitcoinParameters       json.RawMessage `json:"bitcoin_parameters,omitempty"`
	EconomicParameters      json.RawMessage `json:"economic_parameters,omitempty"`
	EnvironmentalParameters json.RawMessage `json:"environmental_parameters,omitempty"`
	EquipmentParameters     json.RawMessage `json:"equipment_parameters,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
}

// BitcoinOverrides replaces market baseline fields.
type BitcoinOverrides struct {
	PriceUSD             *float64 `json:"price_usd"`
	PriceGrowthAnnual    *float64 `json:"price_growth_annual"`
	Difficulty           *float64 `json:"difficulty"`
	DifficultyMultiplier *float64 `json:"difficulty_multiplier"`
	NetworkHashrateEH    *float64 `json:"network_hashrate_eh"`
	NetworkGrowthAnnual  *float64 `json:"network_growth_annual"`
	BlockRewardBTC       *float64 `json:"block_reward_btc"`
	AvgBlockTimeSeconds  *float64 `json:"avg_block_time_seconds"`
	FeesPerBlockBTC      *float64 `json:"fees_per_block_btc"`
	PoolFeePercent       *float64 `json:"pool_fee_percent"`
}

// EconomicOverrides replaces configuration economics.
type EconomicOverrides struct {
	ElectricityRateUSDPerKWh    *float64 `json:"electricity_rate_usd_kwh"`
	NetMeteringRateUSDPerKWh    *float64 `json:"net_metering_rate_usd_kwh"`
	ElectricityEscalationAnnual *float64 `json:"electricity_escalation_annual"`
	DiscountRateAnnual          *float64 `json:"discount_rate_annual"`
	MaintenancePercentAnnual    *float64 `json:"maintenance_percent_annual"`
	InsurancePercentAnnual      *float64 `json:"insurance_percent_annual"`
	PropertyTaxPercentAnnual    *float64 `json:"property_tax_percent_annual"`
	InstallationCostUSD         *float64 `json:"installation_cost_usd"`
	DepreciationYears           *float64 `json:"depreciation_years"`
	MaxGridPowerKW              *float64 `json:"max_grid_power_kw"`
	EquipmentCostMultiplier     *float64 `json:"equipment_cost_multiplier"`
}

// EnvironmentalOverrides adjusts resolved environmental samples.
type EnvironmentalOverrides struct {
	WeatherImpactMultiplier     *float64 `json:"weather_impact_multiplier"`
	TemperatureImpactMultiplier *float64 `json:"temperature_impact_multiplier"`
	CloudCoverAdjustment        *float64 `json:"cloud_cover_adjustment"`
	ForcedSeason                *Season  `json:"forced_season"`
}

// EquipmentOverrides adjusts catalog behavior for the whole fleet.
type EquipmentOverrides struct {
	DegradationMultiplier *float64 `json:"degradation_multiplier"`
	FailureRateMultiplier *float64 `json:"failure_rate_multiplier"`
	HashrateMultiplier    *float64 `json:"hashrate_multiplier"`
	PowerMultiplier       *float64 `json:"power_multiplier"`
	PerformanceRatio      *float64 `json:"performance_ratio"`
	InverterEfficiency    *float64 `json:"inverter_efficiency"`
}

// ScenarioOverrides holds all four decoded groups.
type ScenarioOverrides struct {
	Bitcoin       BitcoinOverrides
	Economic      EconomicOverrides
	Environmental EnvironmentalOverrides
	Equipment     EquipmentOverrides
}

// ParseOverrides decodes and validates the raw override groups of a scenario.
func ParseOverrides(s Scenario) (ScenarioOverrides, error) {
	var out ScenarioOverrides
	if err := decodeGroup(GroupBitcoin, s.BitcoinParameters, &out.Bitcoin); err != nil {
		return out, err
	}
	if err := decodeGroup(GroupEconomic, s.EconomicParameters, &out.Economic); err != nil {
		return out, err
	}
	if err := decodeGroup(GroupEnvironmental, s.EnvironmentalParameters, &out.Environmental); err != nil {
		return out, err
	}
	if err := decodeGroup(GroupEquipment, s.EquipmentParameters, &out.Equipment); err != nil {
		return out, err
	}
	if err := out.validate(); err != nil {
		return out, err
	}
	return out, nil
}

func decodeGroup(group string, raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return &InvalidScenarioError{Group: group, Err: errors.New("override must be a JSON object")}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &InvalidScenarioError{Group: group, Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &InvalidScenarioError{Group: group, Err: errors.New("trailing data after object")}
	}
	return nil
}

func (o ScenarioOverrides) validate() error {
	nonNegative := []struct {
		group string
		name  string
		value *float64
	}{
		{GroupBitcoin, "price_usd", o.Bitcoin.PriceUSD},
		{GroupBitcoin, "difficulty", o.Bitcoin.Difficulty},
		{GroupBitcoin, "difficulty_multiplier", o.Bitcoin.DifficultyMultiplier},
		{GroupBitcoin, "network_hashrate_eh", o.Bitcoin.NetworkHashrateEH},
		{GroupBitcoin, "block_reward_btc", o.Bitcoin.BlockRewardBTC},
		{GroupBitcoin, "fees_per_block_btc", o.Bitcoin.FeesPerBlockBTC},
		{GroupEconomic, "electricity_rate_usd_kwh", o.Economic.ElectricityRateUSDPerKWh},
		{GroupEconomic, "net_metering_rate_usd_kwh", o.Economic.NetMeteringRateUSDPerKWh},
		{GroupEconomic, "installation_cost_usd", o.Economic.InstallationCostUSD},
		{GroupEconomic, "depreciation_years", o.Economic.DepreciationYears},
		{GroupEconomic, "max_grid_power_kw", o.Economic.MaxGridPowerKW},
		{GroupEconomic, "equipment_cost_multiplier", o.Economic.EquipmentCostMultiplier},
		{GroupEnvironmental, "weather_impact_multiplier", o.Environmental.WeatherImpactMultiplier},
		{GroupEnvironmental, "temperature_impact_multiplier", o.Environmental.TemperatureImpactMultiplier},
		{GroupEquipment, "degradation_multiplier", o.Equipment.DegradationMultiplier},
		{GroupEquipment, "failure_rate_multiplier", o.Equipment.FailureRateMultiplier},
		{GroupEquipment, "hashrate_multiplier", o.Equipment.HashrateMultiplier},
		{GroupEquipment, "power_multiplier", o.Equipment.PowerMultiplier},
		{GroupEquipment, "performance_ratio", o.Equipment.PerformanceRatio},
		{GroupEquipment, "inverter_efficiency", o.Equipment.InverterEfficiency},
	}
	for _, field := range nonNegative {
		if field.value != nil && *field.value < 0 {
			return &InvalidScenarioError{Group: field.group, Err: fmt.Errorf("%s must not be negative", field.name)}
		}
	}
	if v := o.Bitcoin.AvgBlockTimeSeconds; v != nil && *v <= 0 {
		return &InvalidScenarioError{Group: GroupBitcoin, Err: errors.New("avg_block_time_seconds must be positive")}
	}
	if v := o.Bitcoin.PoolFeePercent; v != nil && (*v < 0 || *v > 100) {
		return &InvalidScenarioError{Group: GroupBitcoin, Err: errors.New("pool_fee_percent must be within [0, 100]")}
	}
	if v := o.Environmental.CloudCoverAdjustment; v != nil && (*v < -100 || *v > 100) {
		return &InvalidScenarioError{Group: GroupEnvironmental, Err: errors.New("cloud_cover_adjustment must be within [-100, 100]")}
	}
	if v := o.Environmental.ForcedSeason; v != nil && !v.IsValid() {
		return &InvalidScenarioError{Group: GroupEnvironmental, Err: fmt.Errorf("unknown forced_season %q", string(*v))}
	}
	return nil
}

// BitcoinParameters are the resolved network and price assumptions.
type BitcoinParameters struct {
	PriceUSD            float64
	PriceGrowthAnnual   float64
	NetworkHashrateHS   float64
	NetworkGrowthAnnual float64
	BlockRewardBTC      float64
	FixedBlockReward    bool
	BlockHeight         int64
	AvgBlockTimeSeconds float64
	FeesPerBlockBTC     float64
	PoolFeePercent      float64
}

// PriceAt returns the BTC price after yearsElapsed of growth.
func (b BitcoinParameters) PriceAt(yearsElapsed float64) float64 {
	return growth(b.PriceUSD, b.PriceGrowthAnnual, yearsElapsed)
}

// NetworkHashrateAt returns the network hashrate (H/s) after yearsElapsed of growth.
func (b BitcoinParameters) NetworkHashrateAt(yearsElapsed float64) float64 {
	return growth(b.NetworkHashrateHS, b.NetworkGrowthAnnual, yearsElapsed)
}

// ResolvedEconomics are the resolved cost assumptions.
type ResolvedEconomics struct {
	EconomicParameters
	MaxGridPowerKW          float64
	EquipmentCostMultiplier float64
}

// RateAt returns the escalated grid import price after yearsElapsed.
func (e ResolvedEconomics) RateAt(yearsElapsed float64) float64 {
	return growth(e.ElectricityRateUSDPerKWh, e.ElectricityEscalationAnnual, yearsElapsed)
}

// NetMeteringRateAt returns the escalated export credit after yearsElapsed.
func (e ResolvedEconomics) NetMeteringRateAt(yearsElapsed float64) float64 {
	return growth(e.NetMeteringRateUSDPerKWh, e.ElectricityEscalationAnnual, yearsElapsed)
}

// EnvironmentalAdjustments are applied to every resolved environmental sample.
type EnvironmentalAdjustments struct {
	WeatherImpactMultiplier     float64
	TemperatureImpactMultiplier float64
	CloudCoverAdjustment        float64
	ForcedSeason                Season
}

// EquipmentAdjustments are applied to every line item.
type EquipmentAdjustments struct {
	DegradationMultiplier float64
	FailureRateMultiplier float64
	HashrateMultiplier    float64
	PowerMultiplier       float64
	PerformanceRatio      float64
	InverterEfficiency    float64 // 0 keeps the catalog value
}

// ResolvedParameters is the concrete parameter set for one projection run.
type ResolvedParameters struct {
	Bitcoin       BitcoinParameters
	Economics     ResolvedEconomics
	Environmental EnvironmentalAdjustments
	Equipment     EquipmentAdjustments
}

// ResolveScenario merges a scenario's overrides over the configuration and market
// baseline. A nil market is allowed when the scenario pins every market field.
// It is deterministic and side-effect free.
func ResolveScenario(cfg SystemConfiguration, scenario Scenario, market *MarketSnapshot) (ResolvedParameters, error) {
	overrides, err := ParseOverrides(scenario)
	if err != nil {
		return ResolvedParameters{}, err
	}

	bitcoin, err := resolveBitcoin(overrides.Bitcoin, market)
	if err != nil {
		return ResolvedParameters{}, err
	}

	return ResolvedParameters{
		Bitcoin:       bitcoin,
		Economics:     resolveEconomics(cfg, overrides.Economic),
		Environmental: resolveEnvironmental(overrides.Environmental),
		Equipment:     resolveEquipment(cfg, overrides.Equipment),
	}, nil
}

func resolveBitcoin(o BitcoinOverrides, market *MarketSnapshot) (BitcoinParameters, error) {
	var base MarketSnapshot
	if market != nil {
		base = *market
	}
	missingAt := base.At

	out := BitcoinParameters{
		PriceUSD:            base.PriceUSD,
		AvgBlockTimeSeconds: base.BlockTimeSeconds(),
		FeesPerBlockBTC:     base.FeesPerBlockBTC,
		BlockHeight:         base.BlockHeight,
	}
	if o.AvgBlockTimeSeconds != nil {
		out.AvgBlockTimeSeconds = *o.AvgBlockTimeSeconds
	}

	if o.PriceUSD != nil {
		out.PriceUSD = *o.PriceUSD
	} else if market == nil {
		return out, &NoMarketDataError{At: missingAt}
	}
	out.PriceGrowthAnnual = valueOr(o.PriceGrowthAnnual, 0)

	switch {
	case o.NetworkHashrateEH != nil:
		out.NetworkHashrateHS = *o.NetworkHashrateEH * hashesPerEH
	case o.Difficulty != nil:
		out.NetworkHashrateHS = HashrateFromDifficulty(*o.Difficulty, out.AvgBlockTimeSeconds)
	case market != nil:
		out.NetworkHashrateHS = base.NetworkHashrateHS()
	default:
		return out, &NoMarketDataError{At: missingAt}
	}
	out.NetworkHashrateHS *= valueOr(o.DifficultyMultiplier, 1)
	out.NetworkGrowthAnnual = valueOr(o.NetworkGrowthAnnual, 0)

	switch {
	case o.BlockRewardBTC != nil:
		out.BlockRewardBTC = *o.BlockRewardBTC
		out.FixedBlockReward = true
	case market != nil && base.BlockHeight > 0:
		out.BlockRewardBTC = SubsidyAtHeight(base.BlockHeight)
	case market != nil && base.BlockRewardBTC > 0:
		out.BlockRewardBTC = base.BlockRewardBTC
		out.FixedBlockReward = true
	default:
		return out, &NoMarketDataError{At: missingAt}
	}

	if o.FeesPerBlockBTC != nil {
		out.FeesPerBlockBTC = *o.FeesPerBlockBTC
	}
	out.PoolFeePercent = valueOr(o.PoolFeePercent, 0)
	return out, nil
}

func resolveEconomics(cfg SystemConfiguration, o EconomicOverrides) ResolvedEconomics {
	e := cfg.Economics
	replace(&e.ElectricityRateUSDPerKWh, o.ElectricityRateUSDPerKWh)
	replace(&e.NetMeteringRateUSDPerKWh, o.NetMeteringRateUSDPerKWh)
	replace(&e.ElectricityEscalationAnnual, o.ElectricityEscalationAnnual)
	replace(&e.DiscountRateAnnual, o.DiscountRateAnnual)
	replace(&e.MaintenancePercentAnnual, o.MaintenancePercentAnnual)
	replace(&e.InsurancePercentAnnual, o.InsurancePercentAnnual)
	replace(&e.PropertyTaxPercentAnnual, o.PropertyTaxPercentAnnual)
	replace(&e.InstallationCostUSD, o.InstallationCostUSD)
	replace(&e.DepreciationYears, o.DepreciationYears)
	if e.DepreciationYears <= 0 {
		e.DepreciationYears = defaultDepreciationYears
	}

	maxGrid := cfg.MaxGridPowerKW
	replace(&maxGrid, o.MaxGridPowerKW)

	return ResolvedEconomics{
		EconomicParameters:      e,
		MaxGridPowerKW:          maxGrid,
		EquipmentCostMultiplier: valueOr(o.EquipmentCostMultiplier, 1),
	}
}

func resolveEnvironmental(o EnvironmentalOverrides) EnvironmentalAdjustments {
	out := EnvironmentalAdjustments{
		WeatherImpactMultiplier:     valueOr(o.WeatherImpactMultiplier, 1),
		TemperatureImpactMultiplier: valueOr(o.TemperatureImpactMultiplier, 1),
		CloudCoverAdjustment:        valueOr(o.CloudCoverAdjustment, 0),
	}
	if o.ForcedSeason != nil {
		out.ForcedSeason = *o.ForcedSeason
	}
	return out
}

func resolveEquipment(cfg SystemConfiguration, o EquipmentOverrides) EquipmentAdjustments {
	pr := cfg.PerformanceRatio
	if pr <= 0 {
		pr = defaultPerformanceRatio
	}
	return EquipmentAdjustments{
		DegradationMultiplier: valueOr(o.DegradationMultiplier, 1),
		FailureRateMultiplier: valueOr(o.FailureRateMultiplier, 1),
		HashrateMultiplier:    valueOr(o.HashrateMultiplier, 1),
		PowerMultiplier:       valueOr(o.PowerMultiplier, 1),
		PerformanceRatio:      valueOr(o.PerformanceRatio, pr),
		InverterEfficiency:    valueOr(o.InverterEfficiency, 0),
	}
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func replace(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
