package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// MarketRepository persists market snapshots.
type MarketRepository struct {
	db *sql.DB
}

// NewMarketRepository constructs a repository.
func NewMarketRepository(db *sql.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// SaveSnapshot upserts a snapshot keyed by its timestamp.
func (r *MarketRepository) SaveSnapshot(ctx context.Context, s projection.MarketSnapshot) error {
	if r == nil || r.db == nil {
		return errors.New("market repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO market_snapshots (
	at, price_usd, difficulty, network_hashrate_eh, block_reward_btc, block_height,
	avg_block_time_seconds, fees_per_block_btc, source
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (at) DO UPDATE SET
	price_usd = EXCLUDED.price_usd, difficulty = EXCLUDED.difficulty,
	network_hashrate_eh = EXCLUDED.network_hashrate_eh, block_reward_btc = EXCLUDED.block_reward_btc,
	block_height = EXCLUDED.block_height, avg_block_time_seconds = EXCLUDED.avg_block_time_seconds,
	fees_per_block_btc = EXCLUDED.fees_per_block_btc, source = EXCLUDED.source`,
		s.At.UTC(), s.PriceUSD, s.Difficulty, s.NetworkHashrateEH, s.BlockRewardBTC, s.BlockHeight,
		s.AvgBlockTimeSeconds, s.FeesPerBlockBTC, s.Source)
	return err
}

// SnapshotAt returns the latest snapshot at or before at, else the earliest
// one stored, else nil.
func (r *MarketRepository) SnapshotAt(ctx context.Context, at time.Time) (*projection.MarketSnapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("market repo: nil db")
	}
	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, snapshotSelect+`
WHERE at <= $1
ORDER BY at DESC
LIMIT 1`, at.UTC()))
	if err != nil || snapshot != nil {
		return snapshot, err
	}
	return scanSnapshot(r.db.QueryRowContext(ctx, snapshotSelect+`
ORDER BY at ASC
LIMIT 1`))
}

const snapshotSelect = `
SELECT at, price_usd, difficulty, network_hashrate_eh, block_reward_btc, block_height,
	avg_block_time_seconds, fees_per_block_btc, source
FROM market_snapshots`

func scanSnapshot(row *sql.Row) (*projection.MarketSnapshot, error) {
	var s projection.MarketSnapshot
	err := row.Scan(&s.At, &s.PriceUSD, &s.Difficulty, &s.NetworkHashrateEH, &s.BlockRewardBTC, &s.BlockHeight,
		&s.AvgBlockTimeSeconds, &s.FeesPerBlockBTC, &s.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.At = s.At.UTC()
	return &s, nil
}
