package memory

import (
	"context"
	"sync"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

type monthKey struct {
	locationID string
	year       int
	month      time.Month
}

// MonthlyClimatology holds monthly averages unique per (location, year, month).
// Lookups for a year without data fall back to the latest year for that month.
type MonthlyClimatology struct {
	mu      sync.RWMutex
	samples map[monthKey]projection.EnvironmentalSample
}

// NewMonthlyClimatology constructs an empty climatology.
func NewMonthlyClimatology() *MonthlyClimatology {
	return &MonthlyClimatology{samples: make(map[monthKey]projection.EnvironmentalSample)}
}

// Put stores a monthly sample, replacing any sample for the same key.
func (m *MonthlyClimatology) Put(locationID string, year int, month time.Month, sample projection.EnvironmentalSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample.LocationID = locationID
	sample.Granularity = projection.SampleMonthly
	m.samples[monthKey{locationID: locationID, year: year, month: month}] = sample
}

// Lookup implements the monthly link of the environmental chain.
func (m *MonthlyClimatology) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.samples[monthKey{locationID: location.ID, year: date.Year(), month: date.Month()}]; ok {
		return &s, nil
	}
	var (
		best     projection.EnvironmentalSample
		bestYear int
		found    bool
	)
	for key, s := range m.samples {
		if key.locationID != location.ID || key.month != date.Month() {
			continue
		}
		if !found || key.year > bestYear {
			best, bestYear, found = s, key.year, true
		}
	}
	if !found {
		return nil, nil
	}
	return &best, nil
}

// DailyForecasts holds daily samples keyed by location and day.
type DailyForecasts struct {
	mu      sync.RWMutex
	samples map[string]projection.EnvironmentalSample
}

// NewDailyForecasts constructs an empty forecast store.
func NewDailyForecasts() *DailyForecasts {
	return &DailyForecasts{samples: make(map[string]projection.EnvironmentalSample)}
}

// Put stores a daily sample.
func (d *DailyForecasts) Put(sample projection.EnvironmentalSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sample.Date = projection.TruncateToDay(sample.Date)
	sample.Granularity = projection.SampleDaily
	d.samples[dayKey(sample.LocationID, sample.Date)] = sample
}

// Lookup implements the daily link of the environmental chain.
func (d *DailyForecasts) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	_ = ctx
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.samples[dayKey(location.ID, date)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// HourlyForecasts holds hourly samples; a day resolves only when all 24 hours exist.
type HourlyForecasts struct {
	mu    sync.RWMutex
	hours map[string][]projection.HourlySample
}

// NewHourlyForecasts constructs an empty hourly store.
func NewHourlyForecasts() *HourlyForecasts {
	return &HourlyForecasts{hours: make(map[string][]projection.HourlySample)}
}

// Put appends hourly samples.
func (h *HourlyForecasts) Put(samples ...projection.HourlySample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range samples {
		key := dayKey(s.LocationID, s.Time)
		h.hours[key] = append(h.hours[key], s)
	}
}

// Lookup implements the hourly link of the environmental chain.
func (h *HourlyForecasts) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	_ = ctx
	h.mu.RLock()
	hours := append([]projection.HourlySample(nil), h.hours[dayKey(location.ID, date)]...)
	h.mu.RUnlock()
	sample, ok := projection.SampleFromHours(location.ID, date, hours)
	if !ok {
		return nil, nil
	}
	return &sample, nil
}

func dayKey(locationID string, t time.Time) string {
	return locationID + "|" + t.Format("20060102")
}
