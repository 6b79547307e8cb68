package memory

import (
	"context"
	"sync"

	projection "solarmine-planner/internal/projection/domain"
)

// Store is an in-memory configuration, scenario and equipment store for
// tests and local runs.
type Store struct {
	mu        sync.RWMutex
	configs   map[string]projection.SystemConfiguration
	scenarios map[string]projection.Scenario
	equipment projection.Equipment
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		configs:   make(map[string]projection.SystemConfiguration),
		scenarios: make(map[string]projection.Scenario),
		equipment: projection.Equipment{
			Miners:      make(map[string]projection.MinerSpec),
			SolarPanels: make(map[string]projection.SolarPanelSpec),
			Storage:     make(map[string]projection.StorageSpec),
			Inverters:   make(map[string]projection.InverterSpec),
		},
	}
}

// PutConfiguration stores cfg by id.
func (s *Store) PutConfiguration(cfg projection.SystemConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
}

// PutScenario stores sc by id.
func (s *Store) PutScenario(sc projection.Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[sc.ID] = sc
}

// PutMiner adds a miner catalog entry.
func (s *Store) PutMiner(spec projection.MinerSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipment.Miners[spec.ID] = spec
}

// PutSolarPanel adds a solar panel catalog entry.
func (s *Store) PutSolarPanel(spec projection.SolarPanelSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipment.SolarPanels[spec.ID] = spec
}

// PutStorage adds a storage catalog entry.
func (s *Store) PutStorage(spec projection.StorageSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipment.Storage[spec.ID] = spec
}

// PutInverter adds an inverter catalog entry.
func (s *Store) PutInverter(spec projection.InverterSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipment.Inverters[spec.ID] = spec
}

// GetConfiguration returns a copy of the configuration or nil.
func (s *Store) GetConfiguration(ctx context.Context, id string) (*projection.SystemConfiguration, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// GetScenario returns a copy of the scenario or nil.
func (s *Store) GetScenario(ctx context.Context, id string) (*projection.Scenario, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

// LoadEquipment returns the catalog entries referenced by cfg.
func (s *Store) LoadEquipment(ctx context.Context, cfg projection.SystemConfiguration) (projection.Equipment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := projection.Equipment{
		Miners:      make(map[string]projection.MinerSpec),
		SolarPanels: make(map[string]projection.SolarPanelSpec),
		Storage:     make(map[string]projection.StorageSpec),
		Inverters:   make(map[string]projection.InverterSpec),
	}
	for _, item := range cfg.Miners {
		spec, ok := s.equipment.Miners[item.EquipmentID]
		if !ok {
			return projection.Equipment{}, projection.ErrEquipmentNotFound
		}
		out.Miners[spec.ID] = spec
	}
	for _, item := range cfg.SolarPanels {
		spec, ok := s.equipment.SolarPanels[item.EquipmentID]
		if !ok {
			return projection.Equipment{}, projection.ErrEquipmentNotFound
		}
		out.SolarPanels[spec.ID] = spec
	}
	for _, item := range cfg.Storage {
		spec, ok := s.equipment.Storage[item.EquipmentID]
		if !ok {
			return projection.Equipment{}, projection.ErrEquipmentNotFound
		}
		out.Storage[spec.ID] = spec
	}
	if cfg.Inverter != nil {
		spec, ok := s.equipment.Inverters[cfg.Inverter.EquipmentID]
		if !ok {
			return projection.Equipment{}, projection.ErrEquipmentNotFound
		}
		out.Inverters[spec.ID] = spec
	}
	return out, nil
}
