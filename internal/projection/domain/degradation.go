package projection

import (
	"math"
	"time"
)

const daysPerYear = 365.25

// DegradationFactor returns (1 - annualRate*multiplier)^ageYears clamped to [0, 1].
func DegradationFactor(annualRate, multiplier, ageYears float64) float64 {
	if ageYears <= 0 {
		return 1
	}
	base := 1 - annualRate*multiplier
	if base <= 0 {
		return 0
	}
	if base > 1 {
		base = 1
	}
	return math.Pow(base, ageYears)
}

// SurvivalFactor is the expected surviving fraction of a fleet with an
// independent annual failure probability.
func SurvivalFactor(failureRateAnnual, multiplier, ageYears float64) float64 {
	return DegradationFactor(failureRateAnnual, multiplier, ageYears)
}

// AgeYears returns the elapsed service time between installation and date.
func AgeYears(installedAt, date time.Time) float64 {
	if installedAt.IsZero() || !date.After(installedAt) {
		return 0
	}
	return date.Sub(installedAt).Hours() / 24 / daysPerYear
}

// DegradedMiner is one miner unit after aging.
type DegradedMiner struct {
	SpecID        string
	HashrateTH    float64
	PowerW        float64
	EfficiencyJTH float64
	// EffectiveQuantity is the expected operating unit count after failures.
	EffectiveQuantity float64
}

// DegradeMiner ages a miner. Hashrate declines with its own rate; efficiency
// (TH per watt) declines with the efficiency rate, so power draw follows
// hashrate divided by efficiency.
func DegradeMiner(spec MinerSpec, ageYears, multiplier float64) DegradedMiner {
	fh := DegradationFactor(spec.HashrateDegradationAnnual, multiplier, ageYears)
	fe := DegradationFactor(spec.EfficiencyDegradationAnnual, multiplier, ageYears)
	out := DegradedMiner{SpecID: spec.ID}
	if fe <= 0 || fh <= 0 {
		return out
	}
	out.HashrateTH = math.Max(0, spec.HashrateTH*fh)
	out.PowerW = math.Max(0, spec.PowerW*fh/fe)
	if out.HashrateTH > 0 {
		out.EfficiencyJTH = out.PowerW / out.HashrateTH
	}
	return out
}

// DegradedSolar is one panel line after aging.
type DegradedSolar struct {
	SpecID                 string
	RatedPowerW            float64
	TemperatureCoefficient float64
	NOCTC                  float64
	EffectiveQuantity      float64
}

// DegradeSolarPanel ages a PV module's rated output.
func DegradeSolarPanel(spec SolarPanelSpec, ageYears, multiplier float64) DegradedSolar {
	return DegradedSolar{
		SpecID:                 spec.ID,
		RatedPowerW:            math.Max(0, spec.RatedPowerW*DegradationFactor(spec.DegradationAnnual, multiplier, ageYears)),
		TemperatureCoefficient: spec.TemperatureCoefficient,
		NOCTC:                  spec.NOCTC,
	}
}

// DegradedStorage is the aggregate battery bank after aging.
type DegradedStorage struct {
	UsableCapacityKWh   float64
	MaxChargeKW         float64
	MaxDischargeKW      float64
	RoundTripEfficiency float64
}

// DegradeStorage ages one storage unit; quantity scales the result.
func DegradeStorage(spec StorageSpec, ageYears, multiplier, quantity float64) DegradedStorage {
	f := DegradationFactor(spec.CapacityDegradationAnnual, multiplier, ageYears)
	eta := spec.RoundTripEfficiency
	if eta <= 0 || eta > 1 {
		eta = 1
	}
	return DegradedStorage{
		UsableCapacityKWh:   math.Max(0, spec.CapacityKWh*spec.UsableFraction()*f*quantity),
		MaxChargeKW:         math.Max(0, spec.MaxChargeKW*quantity),
		MaxDischargeKW:      math.Max(0, spec.MaxDischargeKW*quantity),
		RoundTripEfficiency: eta,
	}
}

// Add merges another bank, weighting efficiency by capacity.
func (s DegradedStorage) Add(other DegradedStorage) DegradedStorage {
	total := s.UsableCapacityKWh + other.UsableCapacityKWh
	eta := 1.0
	if total > 0 {
		eta = (s.UsableCapacityKWh*s.RoundTripEfficiency + other.UsableCapacityKWh*other.RoundTripEfficiency) / total
	}
	return DegradedStorage{
		UsableCapacityKWh:   total,
		MaxChargeKW:         s.MaxChargeKW + other.MaxChargeKW,
		MaxDischargeKW:      s.MaxDischargeKW + other.MaxDischargeKW,
		RoundTripEfficiency: eta,
	}
}

// DegradedInverter is the aggregate inverter after aging.
type DegradedInverter struct {
	RatedPowerKW float64
	Efficiency   float64
}

// DegradeInverter ages an inverter's efficiency.
func DegradeInverter(spec InverterSpec, ageYears, multiplier float64) DegradedInverter {
	eff := spec.Efficiency
	if eff <= 0 || eff > 1 {
		eff = 1
	}
	return DegradedInverter{
		RatedPowerKW: math.Max(0, spec.RatedPowerKW),
		Efficiency:   eff * DegradationFactor(spec.DegradationAnnual, multiplier, ageYears),
	}
}

// Fleet is the degraded equipment set operating on one date.
type Fleet struct {
	Miners   []DegradedMiner
	Solar    []DegradedSolar
	Storage  DegradedStorage
	Inverter *DegradedInverter
}

// MiningPowerKW returns the full-fleet power draw.
func (f Fleet) MiningPowerKW() float64 {
	var w float64
	for _, m := range f.Miners {
		w += m.PowerW * m.EffectiveQuantity
	}
	return w / 1000
}

// NominalHashrateTH returns the degraded fleet hashrate at full uptime.
func (f Fleet) NominalHashrateTH() float64 {
	var th float64
	for _, m := range f.Miners {
		th += m.HashrateTH * m.EffectiveQuantity
	}
	return th
}

// ActiveMiners returns the expected operating miner count.
func (f Fleet) ActiveMiners() float64 {
	var n float64
	for _, m := range f.Miners {
		n += m.EffectiveQuantity
	}
	return n
}

// BuildFleet degrades every line item of cfg for the given date. Items whose
// installation date is after date are not yet in service.
func BuildFleet(cfg SystemConfiguration, eq Equipment, adj EquipmentAdjustments, date time.Time) (Fleet, error) {
	var fleet Fleet
	installedAt := func(item LineItem) time.Time {
		if item.Overrides != nil && item.Overrides.InstallationDate != nil {
			return *item.Overrides.InstallationDate
		}
		return cfg.InstallationDate
	}
	inService := func(item LineItem) (float64, bool) {
		if item.Quantity < 0 {
			return 0, false
		}
		at := installedAt(item)
		if !at.IsZero() && date.Before(TruncateToDay(at)) {
			return 0, true
		}
		return AgeYears(at, date), true
	}

	for _, item := range cfg.Miners {
		spec, ok := eq.Miners[item.EquipmentID]
		if !ok {
			return Fleet{}, ErrEquipmentNotFound
		}
		if item.Overrides != nil {
			if item.Overrides.HashrateTH != nil {
				spec.HashrateTH = *item.Overrides.HashrateTH
			}
			if item.Overrides.PowerW != nil {
				spec.PowerW = *item.Overrides.PowerW
			}
		}
		if spec.HashrateTH < 0 || spec.PowerW < 0 {
			return Fleet{}, domainError(ComponentDegradation, "miner %s has negative rating", spec.ID)
		}
		spec.HashrateTH *= adj.HashrateMultiplier
		spec.PowerW *= adj.PowerMultiplier
		age, ok := inService(item)
		if !ok {
			return Fleet{}, ErrInvalidQuantity
		}
		m := DegradeMiner(spec, age, adj.DegradationMultiplier)
		m.EffectiveQuantity = quantityInService(item, installedAt(item), date) * SurvivalFactor(spec.FailureRateAnnual, adj.FailureRateMultiplier, age)
		fleet.Miners = append(fleet.Miners, m)
	}

	for _, item := range cfg.SolarPanels {
		spec, ok := eq.SolarPanels[item.EquipmentID]
		if !ok {
			return Fleet{}, ErrEquipmentNotFound
		}
		if item.Overrides != nil && item.Overrides.RatedPowerW != nil {
			spec.RatedPowerW = *item.Overrides.RatedPowerW
		}
		if spec.RatedPowerW < 0 {
			return Fleet{}, domainError(ComponentDegradation, "solar panel %s has negative rated power", spec.ID)
		}
		age, ok := inService(item)
		if !ok {
			return Fleet{}, ErrInvalidQuantity
		}
		s := DegradeSolarPanel(spec, age, adj.DegradationMultiplier)
		s.EffectiveQuantity = quantityInService(item, installedAt(item), date) * SurvivalFactor(spec.FailureRateAnnual, adj.FailureRateMultiplier, age)
		fleet.Solar = append(fleet.Solar, s)
	}

	fleet.Storage = DegradedStorage{RoundTripEfficiency: 1}
	for _, item := range cfg.Storage {
		spec, ok := eq.Storage[item.EquipmentID]
		if !ok {
			return Fleet{}, ErrEquipmentNotFound
		}
		if item.Overrides != nil && item.Overrides.CapacityKWh != nil {
			spec.CapacityKWh = *item.Overrides.CapacityKWh
		}
		if spec.CapacityKWh < 0 || spec.MaxChargeKW < 0 || spec.MaxDischargeKW < 0 {
			return Fleet{}, domainError(ComponentDegradation, "storage %s has negative capacity", spec.ID)
		}
		age, ok := inService(item)
		if !ok {
			return Fleet{}, ErrInvalidQuantity
		}
		qty := quantityInService(item, installedAt(item), date) * SurvivalFactor(spec.FailureRateAnnual, adj.FailureRateMultiplier, age)
		fleet.Storage = fleet.Storage.Add(DegradeStorage(spec, age, adj.DegradationMultiplier, qty))
	}

	if cfg.Inverter != nil && cfg.Inverter.Quantity > 0 {
		spec, ok := eq.Inverters[cfg.Inverter.EquipmentID]
		if !ok {
			return Fleet{}, ErrEquipmentNotFound
		}
		age, _ := inService(*cfg.Inverter)
		inv := DegradeInverter(spec, age, adj.DegradationMultiplier)
		if adj.InverterEfficiency > 0 {
			inv.Efficiency = math.Min(1, adj.InverterEfficiency) * DegradationFactor(spec.DegradationAnnual, adj.DegradationMultiplier, age)
		}
		inv.RatedPowerKW *= quantityInService(*cfg.Inverter, installedAt(*cfg.Inverter), date) * SurvivalFactor(spec.FailureRateAnnual, adj.FailureRateMultiplier, age)
		fleet.Inverter = &inv
	}
	return fleet, nil
}

func quantityInService(item LineItem, installedAt, date time.Time) float64 {
	if item.Quantity <= 0 {
		return 0
	}
	if !installedAt.IsZero() && date.Before(TruncateToDay(installedAt)) {
		return 0
	}
	return float64(item.Quantity)
}
