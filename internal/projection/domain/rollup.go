package projection

import (
	"fmt"
	"time"
)

// Granularity is the period size of an output row.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
	GranularityYearly  Granularity = "yearly"
)

// ParseGranularity accepts an empty value as daily.
func ParseGranularity(raw string) (Granularity, error) {
	g := Granularity(raw)
	if g == "" {
		return GranularityDaily, nil
	}
	if !g.IsValid() {
		return "", ErrInvalidGranularity
	}
	return g, nil
}

// IsValid reports whether g is supported.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly, GranularityYearly:
		return true
	default:
		return false
	}
}

// TimeKey is the persisted representation of a period start.
type TimeKey string

// NewTimeKey builds a TimeKey for the period containing t.
func NewTimeKey(g Granularity, t time.Time) (TimeKey, error) {
	if t.IsZero() {
		return "", ErrInvalidDateRange
	}
	switch g {
	case GranularityDaily:
		return TimeKey(t.Format("20060102")), nil
	case GranularityWeekly:
		year, week := t.ISOWeek()
		return TimeKey(fmt.Sprintf("%04dW%02d", year, week)), nil
	case GranularityMonthly:
		return TimeKey(t.Format("200601")), nil
	case GranularityYearly:
		return TimeKey(t.Format("2006")), nil
	default:
		return "", ErrInvalidGranularity
	}
}

// String returns the raw string for storage.
func (k TimeKey) String() string { return string(k) }

// TruncateToDay drops the time of day, keeping the location.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PeriodStart returns the first day of the period containing t.
// Weeks start on Monday.
func PeriodStart(g Granularity, t time.Time) time.Time {
	day := TruncateToDay(t)
	switch g {
	case GranularityWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	case GranularityYearly:
		return time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
	default:
		return day
	}
}

// Rollup groups daily rows in date order into periods of g. Flows are summed,
// rates and states are averaged per day, and cumulative fields take the last
// day of the period.
func Rollup(rows []ProjectionResult, g Granularity) ([]ProjectionResult, error) {
	if !g.IsValid() {
		return nil, ErrInvalidGranularity
	}
	if g == GranularityDaily {
		out := make([]ProjectionResult, len(rows))
		copy(out, rows)
		return out, nil
	}

	var out []ProjectionResult
	var acc *ProjectionResult
	flush := func() {
		if acc == nil {
			return
		}
		acc.finishRollup()
		out = append(out, *acc)
		acc = nil
	}
	for _, r := range rows {
		key, err := NewTimeKey(g, r.Date)
		if err != nil {
			return nil, err
		}
		if acc != nil && acc.PeriodKey != key {
			flush()
		}
		if acc == nil {
			acc = &ProjectionResult{
				SystemConfigID: r.SystemConfigID,
				ScenarioID:     r.ScenarioID,
				Date:           PeriodStart(g, r.Date),
				Granularity:    g,
				PeriodKey:      key,
			}
			acc.StorageSOCStartKWh = r.StorageSOCStartKWh
		}
		acc.addDay(r)
	}
	flush()
	return out, nil
}

func (p *ProjectionResult) addDay(r ProjectionResult) {
	p.Days += r.Days

	p.SolarGenerationKWh += r.SolarGenerationKWh
	p.SolarDirectToMiningKWh += r.SolarDirectToMiningKWh
	p.SolarToStorageKWh += r.SolarToStorageKWh
	p.SolarWastedKWh += r.SolarWastedKWh
	p.InverterClippedKWh += r.InverterClippedKWh
	p.GridExportKWh += r.GridExportKWh
	p.GridImportKWh += r.GridImportKWh
	p.StorageDischargeKWh += r.StorageDischargeKWh
	p.StorageLossKWh += r.StorageLossKWh
	p.MiningConsumptionKWh += r.MiningConsumptionKWh
	p.EffectiveMiningHours += r.EffectiveMiningHours
	p.SunHours += r.SunHours
	p.StorageSOCEndKWh = r.StorageSOCEndKWh
	p.StorageSOCPercent = r.StorageSOCPercent

	p.BTCMined += r.BTCMined
	p.PoolFeeBTC += r.PoolFeeBTC
	p.MiningRevenueUSD += r.MiningRevenueUSD
	p.GridImportCostUSD += r.GridImportCostUSD
	p.GridExportCreditUSD += r.GridExportCreditUSD
	p.ElectricityCostUSD += r.ElectricityCostUSD
	p.MaintenanceCostUSD += r.MaintenanceCostUSD
	p.InsuranceCostUSD += r.InsuranceCostUSD
	p.EquipmentDepreciationUSD += r.EquipmentDepreciationUSD
	p.PropertyTaxUSD += r.PropertyTaxUSD

	// Per-day means are accumulated as sums and divided in finishRollup.
	p.MiningPowerKW += r.MiningPowerKW
	p.MiningAvailabilityPercent += r.MiningAvailabilityPercent
	p.AmbientTempC += r.AmbientTempC
	p.PanelTemperatureC += r.PanelTemperatureC
	p.CapacityFactorPercent += r.CapacityFactorPercent
	p.NominalHashrateTH += r.NominalHashrateTH
	p.EffectiveHashrateTH += r.EffectiveHashrateTH
	p.ActiveMiners += r.ActiveMiners
	p.AvgEfficiencyJTH += r.AvgEfficiencyJTH
	p.NetworkHashrateEH += r.NetworkHashrateEH
	p.Difficulty += r.Difficulty
	p.BlockRewardBTC += r.BlockRewardBTC
	p.BlocksPerDay += r.BlocksPerDay
	p.NetworkShare += r.NetworkShare
	p.BTCPriceUSD += r.BTCPriceUSD
	p.ElectricityRateUSDPerKWh += r.ElectricityRateUSDPerKWh
	p.NetMeteringRateUSDPerKWh += r.NetMeteringRateUSDPerKWh

	p.CumulativeBTCMined = r.CumulativeBTCMined
	p.CumulativeRevenueUSD = r.CumulativeRevenueUSD
	p.CumulativeNetProfitUSD = r.CumulativeNetProfitUSD
	p.CumulativeCashFlowUSD = r.CumulativeCashFlowUSD
}

func (p *ProjectionResult) finishRollup() {
	if p.Days > 0 {
		n := float64(p.Days)
		for _, v := range []*float64{
			&p.MiningPowerKW, &p.MiningAvailabilityPercent, &p.AmbientTempC,
			&p.PanelTemperatureC, &p.CapacityFactorPercent, &p.NominalHashrateTH,
			&p.EffectiveHashrateTH, &p.ActiveMiners, &p.AvgEfficiencyJTH,
			&p.NetworkHashrateEH, &p.Difficulty, &p.BlockRewardBTC, &p.BlocksPerDay,
			&p.NetworkShare, &p.BTCPriceUSD, &p.ElectricityRateUSDPerKWh,
			&p.NetMeteringRateUSDPerKWh,
		} {
			*v /= n
		}
	}
	p.priceDerived()
}
