package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	projection "solarmine-planner/internal/projection/domain"
)

// CatalogRepository reads equipment specs, system configurations and scenarios.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository constructs a repository.
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetConfiguration returns nil, nil when id is unknown.
func (r *CatalogRepository) GetConfiguration(ctx context.Context, id string) (*projection.SystemConfiguration, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT c.id, c.user_id, c.name,
	l.id, l.name, l.latitude, l.longitude, l.elevation_m, l.timezone,
	c.miners, c.solar_panels, c.storage, c.inverter, c.economics,
	c.grid_connection_type, c.mining_mode, c.max_grid_power_kw, c.performance_ratio,
	c.installation_date
FROM system_configs c
JOIN locations l ON l.id = c.location_id
WHERE c.id = $1`, id)

	var (
		cfg                                projection.SystemConfiguration
		miners, panels, storage, economics []byte
		inverter                           []byte
		grid, mode                         string
	)
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.Name,
		&cfg.Location.ID, &cfg.Location.Name, &cfg.Location.Latitude, &cfg.Location.Longitude, &cfg.Location.Elevation, &cfg.Location.Timezone,
		&miners, &panels, &storage, &inverter, &economics,
		&grid, &mode, &cfg.MaxGridPowerKW, &cfg.PerformanceRatio,
		&cfg.InstallationDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.GridConnection = projection.GridConnectionType(grid)
	cfg.MiningMode = projection.MiningMode(mode)
	cfg.InstallationDate = projection.TruncateToDay(cfg.InstallationDate)
	if err := decodeJSON(miners, &cfg.Miners); err != nil {
		return nil, fmt.Errorf("catalog repo: miners: %w", err)
	}
	if err := decodeJSON(panels, &cfg.SolarPanels); err != nil {
		return nil, fmt.Errorf("catalog repo: solar_panels: %w", err)
	}
	if err := decodeJSON(storage, &cfg.Storage); err != nil {
		return nil, fmt.Errorf("catalog repo: storage: %w", err)
	}
	if len(inverter) > 0 && string(inverter) != "null" {
		cfg.Inverter = &projection.LineItem{}
		if err := decodeJSON(inverter, cfg.Inverter); err != nil {
			return nil, fmt.Errorf("catalog repo: inverter: %w", err)
		}
	}
	if err := decodeJSON(economics, &cfg.Economics); err != nil {
		return nil, fmt.Errorf("catalog repo: economics: %w", err)
	}
	return &cfg, nil
}

// SaveConfiguration upserts a configuration and its location.
func (r *CatalogRepository) SaveConfiguration(ctx context.Context, cfg projection.SystemConfiguration) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	miners, err := json.Marshal(nonNil(cfg.Miners))
	if err != nil {
		return err
	}
	panels, err := json.Marshal(nonNil(cfg.SolarPanels))
	if err != nil {
		return err
	}
	storage, err := json.Marshal(nonNil(cfg.Storage))
	if err != nil {
		return err
	}
	var inverter []byte
	if cfg.Inverter != nil {
		if inverter, err = json.Marshal(cfg.Inverter); err != nil {
			return err
		}
	}
	economics, err := json.Marshal(cfg.Economics)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO locations (id, name, latitude, longitude, elevation_m, timezone)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude, elevation_m = EXCLUDED.elevation_m, timezone = EXCLUDED.timezone`,
		cfg.Location.ID, cfg.Location.Name, cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.Elevation, cfg.Location.Timezone)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO system_configs (
	id, user_id, name, location_id, miners, solar_panels, storage, inverter, economics,
	grid_connection_type, mining_mode, max_grid_power_kw, performance_ratio, installation_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id, name = EXCLUDED.name, location_id = EXCLUDED.location_id,
	miners = EXCLUDED.miners, solar_panels = EXCLUDED.solar_panels, storage = EXCLUDED.storage,
	inverter = EXCLUDED.inverter, economics = EXCLUDED.economics,
	grid_connection_type = EXCLUDED.grid_connection_type, mining_mode = EXCLUDED.mining_mode,
	max_grid_power_kw = EXCLUDED.max_grid_power_kw, performance_ratio = EXCLUDED.performance_ratio,
	installation_date = EXCLUDED.installation_date, updated_at = now()`,
		cfg.ID, cfg.UserID, cfg.Name, cfg.Location.ID, string(miners), string(panels), string(storage), nullableJSON(inverter), string(economics),
		string(cfg.GridConnection), string(cfg.MiningMode), cfg.MaxGridPowerKW, cfg.PerformanceRatio, cfg.InstallationDate)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetScenario returns nil, nil when id is unknown.
func (r *CatalogRepository) GetScenario(ctx context.Context, id string) (*projection.Scenario, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, system_config_id, name, description, is_baseline,
	bitcoin_parameters, economic_parameters, environmental_parameters, equipment_parameters,
	created_at
FROM scenarios
WHERE id = $1`, id)
	var (
		sc                    projection.Scenario
		btc, econ, env, equip []byte
	)
	err := row.Scan(&sc.ID, &sc.SystemConfigID, &sc.Name, &sc.Description, &sc.IsBaseline,
		&btc, &econ, &env, &equip, &sc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.BitcoinParameters = rawOrNil(btc)
	sc.EconomicParameters = rawOrNil(econ)
	sc.EnvironmentalParameters = rawOrNil(env)
	sc.EquipmentParameters = rawOrNil(equip)
	sc.CreatedAt = sc.CreatedAt.UTC()
	return &sc, nil
}

// SaveScenario upserts a scenario. Override groups are stored as given;
// validation happens when a run resolves them.
func (r *CatalogRepository) SaveScenario(ctx context.Context, sc projection.Scenario) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO scenarios (
	id, system_config_id, name, description, is_baseline,
	bitcoin_parameters, economic_parameters, environmental_parameters, equipment_parameters, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, description = EXCLUDED.description, is_baseline = EXCLUDED.is_baseline,
	bitcoin_parameters = EXCLUDED.bitcoin_parameters, economic_parameters = EXCLUDED.economic_parameters,
	environmental_parameters = EXCLUDED.environmental_parameters, equipment_parameters = EXCLUDED.equipment_parameters`,
		sc.ID, sc.SystemConfigID, sc.Name, sc.Description, sc.IsBaseline,
		nullableJSON(sc.BitcoinParameters), nullableJSON(sc.EconomicParameters),
		nullableJSON(sc.EnvironmentalParameters), nullableJSON(sc.EquipmentParameters), sc.CreatedAt)
	return err
}

// LoadEquipment returns the specs referenced by cfg.
func (r *CatalogRepository) LoadEquipment(ctx context.Context, cfg projection.SystemConfiguration) (projection.Equipment, error) {
	if r == nil || r.db == nil {
		return projection.Equipment{}, errors.New("catalog repo: nil db")
	}
	out := projection.Equipment{
		Miners:      make(map[string]projection.MinerSpec),
		SolarPanels: make(map[string]projection.SolarPanelSpec),
		Storage:     make(map[string]projection.StorageSpec),
		Inverters:   make(map[string]projection.InverterSpec),
	}
	for _, item := range cfg.Miners {
		if _, ok := out.Miners[item.EquipmentID]; ok {
			continue
		}
		var s projection.MinerSpec
		err := r.db.QueryRowContext(ctx, `
SELECT id, manufacturer, model, hashrate_th, power_w, hashrate_degradation_annual,
	efficiency_degradation_annual, failure_rate_annual, min_temperature_c, max_temperature_c, cost_usd
FROM miner_specs WHERE id = $1`, item.EquipmentID).Scan(
			&s.ID, &s.Manufacturer, &s.Model, &s.HashrateTH, &s.PowerW, &s.HashrateDegradationAnnual,
			&s.EfficiencyDegradationAnnual, &s.FailureRateAnnual, &s.MinTemperatureC, &s.MaxTemperatureC, &s.CostUSD)
		if err := notFound(err); err != nil {
			return projection.Equipment{}, err
		}
		out.Miners[s.ID] = s
	}
	for _, item := range cfg.SolarPanels {
		if _, ok := out.SolarPanels[item.EquipmentID]; ok {
			continue
		}
		var s projection.SolarPanelSpec
		err := r.db.QueryRowContext(ctx, `
SELECT id, manufacturer, model, rated_power_w, efficiency, temperature_coefficient, noct_c,
	degradation_annual, failure_rate_annual, cost_usd
FROM solar_panel_specs WHERE id = $1`, item.EquipmentID).Scan(
			&s.ID, &s.Manufacturer, &s.Model, &s.RatedPowerW, &s.Efficiency, &s.TemperatureCoefficient, &s.NOCTC,
			&s.DegradationAnnual, &s.FailureRateAnnual, &s.CostUSD)
		if err := notFound(err); err != nil {
			return projection.Equipment{}, err
		}
		out.SolarPanels[s.ID] = s
	}
	for _, item := range cfg.Storage {
		if _, ok := out.Storage[item.EquipmentID]; ok {
			continue
		}
		var s projection.StorageSpec
		err := r.db.QueryRowContext(ctx, `
SELECT id, manufacturer, model, capacity_kwh, depth_of_discharge, max_charge_kw, max_discharge_kw,
	round_trip_efficiency, capacity_degradation_annual, failure_rate_annual, cost_usd
FROM storage_specs WHERE id = $1`, item.EquipmentID).Scan(
			&s.ID, &s.Manufacturer, &s.Model, &s.CapacityKWh, &s.DepthOfDischarge, &s.MaxChargeKW, &s.MaxDischargeKW,
			&s.RoundTripEfficiency, &s.CapacityDegradationAnnual, &s.FailureRateAnnual, &s.CostUSD)
		if err := notFound(err); err != nil {
			return projection.Equipment{}, err
		}
		out.Storage[s.ID] = s
	}
	if cfg.Inverter != nil {
		var s projection.InverterSpec
		err := r.db.QueryRowContext(ctx, `
SELECT id, manufacturer, model, rated_power_kw, efficiency, degradation_annual, failure_rate_annual, cost_usd
FROM inverter_specs WHERE id = $1`, cfg.Inverter.EquipmentID).Scan(
			&s.ID, &s.Manufacturer, &s.Model, &s.RatedPowerKW, &s.Efficiency, &s.DegradationAnnual, &s.FailureRateAnnual, &s.CostUSD)
		if err := notFound(err); err != nil {
			return projection.Equipment{}, err
		}
		out.Inverters[s.ID] = s
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return projection.ErrEquipmentNotFound
	}
	return err
}

func decodeJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func rawOrNil(data []byte) json.RawMessage {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.RawMessage(data)
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func nonNil(items []projection.LineItem) []projection.LineItem {
	if items == nil {
		return []projection.LineItem{}
	}
	return items
}
