package application

import (
	"context"
	"errors"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// EnvironmentalResolver walks hourly, daily and monthly lookups in order and
// returns the first sample found. Samples are never blended across granularities.
type EnvironmentalResolver struct {
	hourly  SampleLookup
	daily   SampleLookup
	monthly SampleLookup
}

// NewEnvironmentalResolver constructs the chain. Hourly and daily links are
// optional; monthly climatology is required.
func NewEnvironmentalResolver(hourly, daily, monthly SampleLookup) (*EnvironmentalResolver, error) {
	if monthly == nil {
		return nil, errors.New("environmental resolver: nil monthly lookup")
	}
	return &EnvironmentalResolver{hourly: hourly, daily: daily, monthly: monthly}, nil
}

// Resolve returns the adjusted sample for location and date.
func (r *EnvironmentalResolver) Resolve(ctx context.Context, location projection.Location, date time.Time, adj projection.EnvironmentalAdjustments) (projection.EnvironmentalSample, error) {
	date = projection.TruncateToDay(date)

	chain := []SampleLookup{r.hourly, r.daily, r.monthly}
	lookupDate := date
	if adj.ForcedSeason != "" {
		month := adj.ForcedSeason.RepresentativeMonth(location.Latitude)
		day := date.Day()
		if day > 28 {
			day = 28
		}
		lookupDate = time.Date(date.Year(), month, day, 0, 0, 0, 0, date.Location())
		chain = []SampleLookup{r.monthly}
	}

	for _, link := range chain {
		if link == nil {
			continue
		}
		sample, err := link.Lookup(ctx, location, lookupDate)
		if err != nil {
			return projection.EnvironmentalSample{}, err
		}
		if sample == nil {
			continue
		}
		out := *sample
		out.LocationID = location.ID
		out.Date = date
		return projection.ApplyEnvironmentalAdjustments(out, adj), nil
	}
	return projection.EnvironmentalSample{}, &projection.NoEnvironmentalDataError{LocationID: location.ID, Date: date}
}
