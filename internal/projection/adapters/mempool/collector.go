package mempool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/btcsuite/btcd/btcutil"

	"solarmine-planner/internal/observability/metrics"
	projection "solarmine-planner/internal/projection/domain"
)

// SnapshotWriter stores collected market snapshots.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snapshot projection.MarketSnapshot) error
}

// Collector polls the API and stores one MarketSnapshot per poll.
type Collector struct {
	client *Client
	store  SnapshotWriter
	logger *log.Logger
	now    func() time.Time
}

// NewCollector constructs a collector.
func NewCollector(client *Client, store SnapshotWriter, logger *log.Logger) (*Collector, error) {
	if client == nil {
		return nil, errors.New("market collector: nil client")
	}
	if store == nil {
		return nil, errors.New("market collector: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{client: client, store: store, logger: logger, now: time.Now}, nil
}

// CollectOnce fetches price, hashrate, difficulty, tip height, block time and
// fees, then saves the snapshot. Price, hashrate and height are required;
// block time and fees fall back to the consensus target and zero.
func (c *Collector) CollectOnce(ctx context.Context) (projection.MarketSnapshot, error) {
	start := time.Now()
	snapshot, err := c.collect(ctx)
	if err == nil {
		err = c.store.SaveSnapshot(ctx, snapshot)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveMarketCollect(result, time.Since(start))
	return snapshot, err
}

func (c *Collector) collect(ctx context.Context) (projection.MarketSnapshot, error) {
	prices, err := c.client.GetPrices(ctx)
	if err != nil {
		return projection.MarketSnapshot{}, fmt.Errorf("market collector: prices: %w", err)
	}
	if prices.USD <= 0 {
		return projection.MarketSnapshot{}, errors.New("market collector: non-positive USD price")
	}
	hashrate, err := c.client.GetHashrate(ctx)
	if err != nil {
		return projection.MarketSnapshot{}, fmt.Errorf("market collector: hashrate: %w", err)
	}
	height, err := c.client.GetTipHeight(ctx)
	if err != nil {
		return projection.MarketSnapshot{}, fmt.Errorf("market collector: tip height: %w", err)
	}

	snapshot := projection.MarketSnapshot{
		At:                c.now().UTC().Truncate(time.Second),
		PriceUSD:          prices.USD,
		Difficulty:        hashrate.CurrentDifficulty,
		NetworkHashrateEH: hashrate.CurrentHashrate / 1e18,
		BlockHeight:       height,
		BlockRewardBTC:    projection.SubsidyAtHeight(height + 1),
		Source:            "mempool.space",
	}
	if snapshot.NetworkHashrateEH <= 0 && len(hashrate.Hashrates) > 0 {
		snapshot.NetworkHashrateEH = hashrate.Hashrates[len(hashrate.Hashrates)-1].AvgHashrate / 1e18
	}

	if adj, err := c.client.GetDifficultyAdjustment(ctx); err != nil {
		c.logger.Printf("market collector: difficulty adjustment unavailable: %v", err)
	} else if adj.TimeAvgMillis > 0 {
		snapshot.AvgBlockTimeSeconds = adj.TimeAvgMillis / 1000
	}
	if fees, err := c.client.GetBlockFees24h(ctx); err != nil {
		c.logger.Printf("market collector: block fees unavailable: %v", err)
	} else {
		snapshot.FeesPerBlockBTC = averageFeesBTC(fees)
	}
	return snapshot, nil
}

func averageFeesBTC(fees []BlockFees) float64 {
	if len(fees) == 0 {
		return 0
	}
	var total int64
	for _, f := range fees {
		total += f.AvgFees
	}
	return btcutil.Amount(total / int64(len(fees))).ToBTC()
}

// Start collects once immediately and then every interval until ctx is done.
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	go func() {
		c.runOnce(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runOnce(ctx)
			}
		}
	}()
}

func (c *Collector) runOnce(ctx context.Context) {
	snapshot, err := c.CollectOnce(ctx)
	if err != nil {
		c.logger.Printf("market collect failed: %v", err)
		return
	}
	c.logger.Printf("market collected: height=%d price=%.2f hashrate=%.1fEH reward=%.8f",
		snapshot.BlockHeight, snapshot.PriceUSD, snapshot.NetworkHashrateEH, snapshot.BlockRewardBTC)
}
