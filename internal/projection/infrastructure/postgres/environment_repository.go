package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// MonthlyClimatology is the monthly link of the environmental chain.
type MonthlyClimatology struct {
	db *sql.DB
}

// NewMonthlyClimatology constructs a lookup.
func NewMonthlyClimatology(db *sql.DB) *MonthlyClimatology {
	return &MonthlyClimatology{db: db}
}

// Lookup prefers the exact year and falls back to the latest year available
// for the calendar month.
func (m *MonthlyClimatology) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("climatology repo: nil db")
	}
	row := m.db.QueryRowContext(ctx, `
SELECT sun_hours, ambient_temp_c, cloud_cover_percent, confidence, fetched_at
FROM environmental_monthly
WHERE location_id = $1 AND month = $2 AND year <= $3
ORDER BY year DESC
LIMIT 1`, location.ID, int(date.Month()), date.Year())
	sample, err := scanMonthly(row)
	if err != nil || sample != nil {
		return sample, err
	}
	row = m.db.QueryRowContext(ctx, `
SELECT sun_hours, ambient_temp_c, cloud_cover_percent, confidence, fetched_at
FROM environmental_monthly
WHERE location_id = $1 AND month = $2
ORDER BY year DESC
LIMIT 1`, location.ID, int(date.Month()))
	return scanMonthly(row)
}

// Save upserts a monthly sample.
func (m *MonthlyClimatology) Save(ctx context.Context, locationID string, year int, month time.Month, sample projection.EnvironmentalSample) error {
	if m == nil || m.db == nil {
		return errors.New("climatology repo: nil db")
	}
	_, err := m.db.ExecContext(ctx, `
INSERT INTO environmental_monthly (location_id, year, month, sun_hours, ambient_temp_c, cloud_cover_percent, confidence, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (location_id, year, month) DO UPDATE SET
	sun_hours = EXCLUDED.sun_hours, ambient_temp_c = EXCLUDED.ambient_temp_c,
	cloud_cover_percent = EXCLUDED.cloud_cover_percent, confidence = EXCLUDED.confidence,
	fetched_at = EXCLUDED.fetched_at`,
		locationID, year, int(month), sample.SunHours, sample.AmbientTempC, sample.CloudCoverPercent, sample.Confidence, sample.FetchedAt)
	return err
}

func scanMonthly(row *sql.Row) (*projection.EnvironmentalSample, error) {
	sample := projection.EnvironmentalSample{Granularity: projection.SampleMonthly}
	err := row.Scan(&sample.SunHours, &sample.AmbientTempC, &sample.CloudCoverPercent, &sample.Confidence, &sample.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sample.FetchedAt = sample.FetchedAt.UTC()
	return &sample, nil
}

// DailyForecasts is the daily link of the environmental chain.
type DailyForecasts struct {
	db *sql.DB
}

// NewDailyForecasts constructs a lookup.
func NewDailyForecasts(db *sql.DB) *DailyForecasts {
	return &DailyForecasts{db: db}
}

// Lookup returns the forecast for the day or nil.
func (d *DailyForecasts) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("forecast repo: nil db")
	}
	sample := projection.EnvironmentalSample{Granularity: projection.SampleDaily}
	var hourly []byte
	err := d.db.QueryRowContext(ctx, `
SELECT sun_hours, ambient_temp_c, cloud_cover_percent, hourly_irradiance, confidence, fetched_at
FROM environmental_daily
WHERE location_id = $1 AND day = $2`, location.ID, projection.TruncateToDay(date)).Scan(
		&sample.SunHours, &sample.AmbientTempC, &sample.CloudCoverPercent, &hourly, &sample.Confidence, &sample.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(hourly, &sample.HourlyIrradiance); err != nil {
		return nil, err
	}
	sample.FetchedAt = sample.FetchedAt.UTC()
	return &sample, nil
}

// Save upserts a daily sample.
func (d *DailyForecasts) Save(ctx context.Context, sample projection.EnvironmentalSample) error {
	if d == nil || d.db == nil {
		return errors.New("forecast repo: nil db")
	}
	var hourly []byte
	if len(sample.HourlyIrradiance) > 0 {
		var err error
		if hourly, err = json.Marshal(sample.HourlyIrradiance); err != nil {
			return err
		}
	}
	_, err := d.db.ExecContext(ctx, `
INSERT INTO environmental_daily (location_id, day, sun_hours, ambient_temp_c, cloud_cover_percent, hourly_irradiance, confidence, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (location_id, day) DO UPDATE SET
	sun_hours = EXCLUDED.sun_hours, ambient_temp_c = EXCLUDED.ambient_temp_c,
	cloud_cover_percent = EXCLUDED.cloud_cover_percent, hourly_irradiance = EXCLUDED.hourly_irradiance,
	confidence = EXCLUDED.confidence, fetched_at = EXCLUDED.fetched_at`,
		sample.LocationID, projection.TruncateToDay(sample.Date), sample.SunHours, sample.AmbientTempC,
		sample.CloudCoverPercent, nullableJSON(hourly), sample.Confidence, sample.FetchedAt)
	return err
}

// HourlyForecasts is the hourly link of the environmental chain.
type HourlyForecasts struct {
	db *sql.DB
}

// NewHourlyForecasts constructs a lookup.
func NewHourlyForecasts(db *sql.DB) *HourlyForecasts {
	return &HourlyForecasts{db: db}
}

// Lookup aggregates the day's hours; fewer than a full day yields nil.
func (h *HourlyForecasts) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("hourly repo: nil db")
	}
	day := projection.TruncateToDay(date)
	rows, err := h.db.QueryContext(ctx, `
SELECT ts, irradiance_wm2, ambient_temp_c, cloud_cover_percent, confidence, fetched_at
FROM environmental_hourly
WHERE location_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC`, location.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []projection.HourlySample
	for rows.Next() {
		s := projection.HourlySample{LocationID: location.ID}
		if err := rows.Scan(&s.Time, &s.IrradianceWM2, &s.AmbientTempC, &s.CloudCoverPercent, &s.Confidence, &s.FetchedAt); err != nil {
			return nil, err
		}
		s.Time = s.Time.UTC()
		s.FetchedAt = s.FetchedAt.UTC()
		hours = append(hours, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sample, ok := projection.SampleFromHours(location.ID, day, hours)
	if !ok {
		return nil, nil
	}
	return &sample, nil
}

// Save upserts hourly samples in one transaction.
func (h *HourlyForecasts) Save(ctx context.Context, samples []projection.HourlySample) error {
	if h == nil || h.db == nil {
		return errors.New("hourly repo: nil db")
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, s := range samples {
		_, err := tx.ExecContext(ctx, `
INSERT INTO environmental_hourly (location_id, ts, irradiance_wm2, ambient_temp_c, cloud_cover_percent, confidence, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (location_id, ts) DO UPDATE SET
	irradiance_wm2 = EXCLUDED.irradiance_wm2, ambient_temp_c = EXCLUDED.ambient_temp_c,
	cloud_cover_percent = EXCLUDED.cloud_cover_percent, confidence = EXCLUDED.confidence,
	fetched_at = EXCLUDED.fetched_at`,
			s.LocationID, s.Time.UTC(), s.IrradianceWM2, s.AmbientTempC, s.CloudCoverPercent, s.Confidence, s.FetchedAt)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
