package projection

import (
	"math"
	"time"
)

const (
	stcTemperatureC   = 25.0
	defaultNOCTC      = 45.0
	noctIrradianceWM2 = 800.0
)

// EnergyFlowInput is everything the simulator needs for one day.
type EnergyFlowInput struct {
	Date                        time.Time
	Latitude                    float64
	Fleet                       Fleet
	Sample                      EnvironmentalSample
	PerformanceRatio            float64
	TemperatureImpactMultiplier float64
	Mode                        MiningMode
	HasGrid                     bool
	MaxGridPowerKW              float64 // 0 means no import ceiling
	InitialSOCKWh               float64
}

// EnergyFlowResult is the energy balance for one day.
type EnergyFlowResult struct {
	SolarGenerationKWh        float64 `json:"solar_generation_kwh"`
	SolarDirectToMiningKWh    float64 `json:"solar_direct_to_mining_kwh"`
	SolarToStorageKWh         float64 `json:"solar_to_storage_kwh"`
	SolarWastedKWh            float64 `json:"solar_wasted_kwh"`
	InverterClippedKWh        float64 `json:"inverter_clipped_kwh"`
	GridExportKWh             float64 `json:"grid_export_kwh"`
	GridImportKWh             float64 `json:"grid_import_kwh"`
	StorageDischargeKWh       float64 `json:"storage_discharge_kwh"`
	StorageLossKWh            float64 `json:"storage_loss_kwh"`
	StorageSOCStartKWh        float64 `json:"storage_soc_start_kwh"`
	StorageSOCEndKWh          float64 `json:"storage_soc_end_kwh"`
	StorageSOCPercent         float64 `json:"storage_soc_percent"`
	MiningConsumptionKWh      float64 `json:"mining_consumption_kwh"`
	MiningPowerKW             float64 `json:"mining_power_kw"`
	EffectiveMiningHours      float64 `json:"effective_mining_hours"`
	MiningAvailabilityPercent float64 `json:"mining_availability_percent"`
	SunHours                  float64 `json:"sun_hours"`
	AmbientTempC              float64 `json:"ambient_temp_c"`
	PanelTemperatureC         float64 `json:"panel_temperature_c"`
	CapacityFactorPercent     float64 `json:"capacity_factor_percent"`
}

// PanelTemperature estimates mean cell temperature during daylight with the
// NOCT model: Tcell = Tamb + (NOCT - 20) / 800 * G.
func PanelTemperature(ambientC, noctC, sunHours, daylightHours float64) float64 {
	if noctC <= 0 {
		noctC = defaultNOCTC
	}
	if daylightHours <= 0 || sunHours <= 0 {
		return ambientC
	}
	irradiance := sunHours * 1000 / daylightHours
	return ambientC + (noctC-20)/noctIrradianceWM2*irradiance
}

// DailySolarKWh is the DC energy of one degraded panel line for the day:
// rated * quantity * PR * (1 + coef * (Tpanel - 25) / 100) * sun_hours / 1000.
func DailySolarKWh(panel DegradedSolar, performanceRatio, panelTempC, tempImpact, sunHours float64) float64 {
	if panel.EffectiveQuantity <= 0 || panel.RatedPowerW <= 0 || sunHours <= 0 {
		return 0
	}
	tempFactor := 1 + panel.TemperatureCoefficient*(panelTempC-stcTemperatureC)/100*tempImpact
	kwh := panel.RatedPowerW * panel.EffectiveQuantity * performanceRatio * tempFactor * sunHours / 1000
	return math.Max(0, kwh)
}

// SimulateDay runs the greedy hourly dispatch for one day. Solar serves mining
// first, surplus charges storage and then exports (or is wasted off-grid).
// Deficits are met by storage and grid in an order that depends on the mining
// mode; anything left unmet throttles mining hours.
func SimulateDay(in EnergyFlowInput) (EnergyFlowResult, error) {
	s := in.Sample
	if math.IsNaN(s.SunHours) || s.SunHours < 0 {
		return EnergyFlowResult{}, domainError(ComponentEnergyFlow, "negative sun hours %.3f", s.SunHours)
	}
	if in.PerformanceRatio < 0 || in.MaxGridPowerKW < 0 || in.InitialSOCKWh < 0 {
		return EnergyFlowResult{}, domainError(ComponentEnergyFlow, "negative simulation input")
	}
	storage := in.Fleet.Storage
	if storage.UsableCapacityKWh < 0 {
		return EnergyFlowResult{}, domainError(ComponentEnergyFlow, "negative storage capacity %.3f", storage.UsableCapacityKWh)
	}

	out := EnergyFlowResult{
		SunHours:      s.SunHours,
		AmbientTempC:  s.AmbientTempC,
		MiningPowerKW: in.Fleet.MiningPowerKW(),
	}

	daylight := DaylightHours(in.Latitude, in.Date)
	var ratedKW float64
	for _, panel := range in.Fleet.Solar {
		tempC := PanelTemperature(s.AmbientTempC, panel.NOCTC, s.SunHours, daylight)
		out.SolarGenerationKWh += DailySolarKWh(panel, in.PerformanceRatio, tempC, in.TemperatureImpactMultiplier, s.SunHours)
		ratedKW += panel.RatedPowerW * panel.EffectiveQuantity / 1000
		out.PanelTemperatureC = tempC
	}
	if len(in.Fleet.Solar) == 0 {
		out.PanelTemperatureC = s.AmbientTempC
	}
	if ratedKW > 0 {
		out.CapacityFactorPercent = out.SolarGenerationKWh / (ratedKW * 24) * 100
	}

	soc := math.Min(in.InitialSOCKWh, storage.UsableCapacityKWh)
	out.StorageSOCStartKWh = soc
	eta := storage.RoundTripEfficiency
	if eta <= 0 || eta > 1 {
		eta = 1
	}
	load := out.MiningPowerKW
	weights := HourlyWeights(s, in.Latitude)

	for h := 0; h < 24; h++ {
		dc := out.SolarGenerationKWh * weights[h]
		ac := dc
		if inv := in.Fleet.Inverter; inv != nil {
			ac = dc * inv.Efficiency
			if ac > inv.RatedPowerKW {
				out.InverterClippedKWh += ac - inv.RatedPowerKW
				ac = inv.RatedPowerKW
			}
			out.SolarWastedKWh += dc - ac
		}

		direct := math.Min(ac, load)
		out.SolarDirectToMiningKWh += direct
		surplus := ac - direct

		if surplus > 0 && storage.UsableCapacityKWh > 0 {
			charge := math.Min(surplus, (storage.UsableCapacityKWh-soc)/eta)
			if storage.MaxChargeKW > 0 {
				charge = math.Min(charge, storage.MaxChargeKW)
			}
			if charge > 0 {
				soc += charge * eta
				out.SolarToStorageKWh += charge
				out.StorageLossKWh += charge * (1 - eta)
				surplus -= charge
			}
		}
		if surplus > 0 {
			if in.HasGrid {
				out.GridExportKWh += surplus
			} else {
				out.SolarWastedKWh += surplus
			}
		}

		deficit := load - direct
		served := direct
		discharge := func() {
			if deficit <= 0 || soc <= 0 {
				return
			}
			d := math.Min(deficit, soc)
			if storage.MaxDischargeKW > 0 {
				d = math.Min(d, storage.MaxDischargeKW)
			}
			soc -= d
			deficit -= d
			served += d
			out.StorageDischargeKWh += d
		}
		importGrid := func() {
			if deficit <= 0 || !in.HasGrid {
				return
			}
			i := deficit
			if in.MaxGridPowerKW > 0 {
				i = math.Min(i, in.MaxGridPowerKW)
			}
			deficit -= i
			served += i
			out.GridImportKWh += i
		}
		switch {
		case !in.HasGrid || in.Mode == MiningSolarOnly || in.Mode == "":
			discharge()
		case in.Mode == MiningGridAssisted:
			importGrid()
			discharge()
		default:
			discharge()
			importGrid()
		}

		if load > 0 {
			out.MiningConsumptionKWh += served
			out.EffectiveMiningHours += served / load
		}
	}

	out.StorageSOCEndKWh = soc
	if storage.UsableCapacityKWh > 0 {
		out.StorageSOCPercent = soc / storage.UsableCapacityKWh * 100
	}
	out.EffectiveMiningHours = math.Min(24, out.EffectiveMiningHours)
	out.MiningAvailabilityPercent = out.EffectiveMiningHours / 24 * 100
	return out, nil
}

// RoutedKWh is the generation sent to storage or export.
func (r EnergyFlowResult) RoutedKWh() float64 {
	return r.SolarToStorageKWh + r.GridExportKWh
}
