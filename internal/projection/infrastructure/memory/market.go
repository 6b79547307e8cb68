package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// MarketStore keeps market snapshots ordered by time.
type MarketStore struct {
	mu        sync.RWMutex
	snapshots []projection.MarketSnapshot
}

// NewMarketStore constructs an empty store.
func NewMarketStore() *MarketStore {
	return &MarketStore{}
}

// SaveSnapshot inserts a snapshot.
func (m *MarketStore) SaveSnapshot(ctx context.Context, snapshot projection.MarketSnapshot) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	sort.SliceStable(m.snapshots, func(i, j int) bool {
		return m.snapshots[i].At.Before(m.snapshots[j].At)
	})
	return nil
}

// SnapshotAt returns the latest snapshot at or before at. When every snapshot
// is later than at, the earliest one is returned.
func (m *MarketStore) SnapshotAt(ctx context.Context, at time.Time) (*projection.MarketSnapshot, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	idx := sort.Search(len(m.snapshots), func(i int) bool {
		return m.snapshots[i].At.After(at)
	})
	if idx == 0 {
		s := m.snapshots[0]
		return &s, nil
	}
	s := m.snapshots[idx-1]
	return &s, nil
}
