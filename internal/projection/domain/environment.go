package projection

import (
	"math"
	"time"
)

// SampleGranularity is the source resolution of an environmental sample.
type SampleGranularity string

const (
	SampleHourly  SampleGranularity = "hourly"
	SampleDaily   SampleGranularity = "daily"
	SampleMonthly SampleGranularity = "monthly"
)

// Season is a forced-season scenario value.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// IsValid reports whether s is a known season.
func (s Season) IsValid() bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter:
		return true
	default:
		return false
	}
}

// RepresentativeMonth returns the climatology month used for a forced season,
// flipped for the southern hemisphere.
func (s Season) RepresentativeMonth(latitude float64) time.Month {
	var month time.Month
	switch s {
	case SeasonSpring:
		month = time.April
	case SeasonSummer:
		month = time.July
	case SeasonAutumn:
		month = time.October
	default:
		month = time.January
	}
	if latitude < 0 {
		month = (month+5)%12 + 1
	}
	return month
}

// EnvironmentalSample is the resolved solar/weather data for one location and day.
type EnvironmentalSample struct {
	LocationID        string            `json:"location_id" yaml:"location_id"`
	Date              time.Time         `json:"date" yaml:"date"`
	Granularity       SampleGranularity `json:"granularity" yaml:"granularity"`
	SunHours          float64           `json:"sun_hours" yaml:"sun_hours"` // kWh/m²/day
	AmbientTempC      float64           `json:"ambient_temp_c" yaml:"ambient_temp_c"`
	CloudCoverPercent float64           `json:"cloud_cover_percent" yaml:"cloud_cover_percent"`
	HourlyIrradiance  []float64         `json:"hourly_irradiance,omitempty" yaml:"hourly_irradiance,omitempty"` // W/m², 24 slots
	Confidence        float64           `json:"confidence" yaml:"confidence"`
	FetchedAt         time.Time         `json:"fetched_at" yaml:"fetched_at"`
}

// HourlySample is one hour of an hourly forecast.
type HourlySample struct {
	LocationID        string    `json:"location_id" yaml:"location_id"`
	Time              time.Time `json:"time" yaml:"time"`
	IrradianceWM2     float64   `json:"irradiance_wm2" yaml:"irradiance_wm2"`
	AmbientTempC      float64   `json:"ambient_temp_c" yaml:"ambient_temp_c"`
	CloudCoverPercent float64   `json:"cloud_cover_percent" yaml:"cloud_cover_percent"`
	Confidence        float64   `json:"confidence" yaml:"confidence"`
	FetchedAt         time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// SampleFromHours folds a full day of hourly samples into a daily sample.
// It reports false unless every hour of the day is covered.
func SampleFromHours(locationID string, day time.Time, hours []HourlySample) (EnvironmentalSample, bool) {
	day = TruncateToDay(day)
	var slots [24]*HourlySample
	for i := range hours {
		h := hours[i]
		if !TruncateToDay(h.Time).Equal(day) {
			continue
		}
		slots[h.Time.Hour()] = &hours[i]
	}

	out := EnvironmentalSample{
		LocationID:       locationID,
		Date:             day,
		Granularity:      SampleHourly,
		HourlyIrradiance: make([]float64, 24),
		Confidence:       1,
	}
	var tempSum, cloudSum float64
	for i, slot := range slots {
		if slot == nil {
			return EnvironmentalSample{}, false
		}
		irr := math.Max(0, slot.IrradianceWM2)
		out.HourlyIrradiance[i] = irr
		out.SunHours += irr / 1000
		tempSum += slot.AmbientTempC
		cloudSum += slot.CloudCoverPercent
		out.Confidence = math.Min(out.Confidence, slot.Confidence)
		if slot.FetchedAt.After(out.FetchedAt) {
			out.FetchedAt = slot.FetchedAt
		}
	}
	out.AmbientTempC = tempSum / 24
	out.CloudCoverPercent = cloudSum / 24
	return out, true
}

// ApplyEnvironmentalAdjustments applies scenario weather overrides to a resolved sample.
// The temperature-impact multiplier is consumed by the energy simulator.
func ApplyEnvironmentalAdjustments(sample EnvironmentalSample, adj EnvironmentalAdjustments) EnvironmentalSample {
	factor := 1.0
	if adj.CloudCoverAdjustment != 0 {
		cloud := clamp(sample.CloudCoverPercent+adj.CloudCoverAdjustment, 0, 100)
		factor = clearness(cloud) / clearness(sample.CloudCoverPercent)
		sample.CloudCoverPercent = cloud
	}
	factor *= adj.WeatherImpactMultiplier
	if factor == 1 {
		return sample
	}
	sample.SunHours = math.Max(0, sample.SunHours*factor)
	if len(sample.HourlyIrradiance) > 0 {
		profile := make([]float64, len(sample.HourlyIrradiance))
		for i, v := range sample.HourlyIrradiance {
			profile[i] = math.Max(0, v*factor)
		}
		sample.HourlyIrradiance = profile
	}
	return sample
}

// clearness is the Kasten–Czeplak cloud attenuation factor for a cloud cover percentage.
func clearness(cloudPercent float64) float64 {
	c := clamp(cloudPercent, 0, 100) / 100
	return 1 - 0.75*math.Pow(c, 3.4)
}

// DaylightHours returns the day length at latitude on the given date.
func DaylightHours(latitude float64, date time.Time) float64 {
	decl := 23.44 * math.Sin(2*math.Pi*float64(284+date.YearDay())/365) * math.Pi / 180
	lat := clamp(latitude, -89.9, 89.9) * math.Pi / 180
	cosOmega := -math.Tan(lat) * math.Tan(decl)
	switch {
	case cosOmega <= -1:
		return 24
	case cosOmega >= 1:
		return 0
	}
	return 2 * math.Acos(cosOmega) * 180 / math.Pi / 15
}

// HourlyWeights distributes a day's solar energy over 24 one-hour slots. The
// sample's hourly profile is used when present, otherwise a half-sine over the
// daylight window centered on solar noon. Weights sum to 1.
func HourlyWeights(sample EnvironmentalSample, latitude float64) [24]float64 {
	var w [24]float64
	if len(sample.HourlyIrradiance) == 24 {
		var sum float64
		for _, v := range sample.HourlyIrradiance {
			sum += math.Max(0, v)
		}
		if sum > 0 {
			for i, v := range sample.HourlyIrradiance {
				w[i] = math.Max(0, v) / sum
			}
			return w
		}
	}

	daylight := DaylightHours(latitude, sample.Date)
	if daylight <= 0 {
		w[12] = 1
		return w
	}
	sunrise := 12 - daylight/2
	sunset := 12 + daylight/2
	integral := func(t float64) float64 {
		return -daylight / math.Pi * math.Cos(math.Pi*(t-sunrise)/daylight)
	}
	var sum float64
	for h := 0; h < 24; h++ {
		lo := math.Max(float64(h), sunrise)
		hi := math.Min(float64(h+1), sunset)
		if hi <= lo {
			continue
		}
		w[h] = integral(hi) - integral(lo)
		sum += w[h]
	}
	for h := range w {
		w[h] /= sum
	}
	return w
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
