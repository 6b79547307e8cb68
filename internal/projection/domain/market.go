package projection

import (
	"math"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	secondsPerDay = 86400.0
	hashesPerTH   = 1e12
	hashesPerEH   = 1e18
	two32         = 4294967296.0
)

// DefaultBlockTimeSeconds is the consensus target block interval.
var DefaultBlockTimeSeconds = chaincfg.MainNetParams.TargetTimePerBlock.Seconds()

// MarketSnapshot is the Bitcoin network and price state at a point in time.
type MarketSnapshot struct {
	At                  time.Time `json:"at" yaml:"at"`
	PriceUSD            float64   `json:"price_usd" yaml:"price_usd"`
	Difficulty          float64   `json:"difficulty" yaml:"difficulty"`
	NetworkHashrateEH   float64   `json:"network_hashrate_eh" yaml:"network_hashrate_eh"`
	BlockRewardBTC      float64   `json:"block_reward_btc" yaml:"block_reward_btc"`
	BlockHeight         int64     `json:"block_height" yaml:"block_height"`
	AvgBlockTimeSeconds float64   `json:"avg_block_time_seconds" yaml:"avg_block_time_seconds"`
	FeesPerBlockBTC     float64   `json:"fees_per_block_btc" yaml:"fees_per_block_btc"`
	Source              string    `json:"source" yaml:"source"`
}

// BlockTimeSeconds returns the average block time, defaulting to the consensus target.
func (m MarketSnapshot) BlockTimeSeconds() float64 {
	if m.AvgBlockTimeSeconds > 0 {
		return m.AvgBlockTimeSeconds
	}
	return DefaultBlockTimeSeconds
}

// NetworkHashrateHS returns network hashrate in H/s, derived from difficulty
// when no direct estimate is present.
func (m MarketSnapshot) NetworkHashrateHS() float64 {
	if m.NetworkHashrateEH > 0 {
		return m.NetworkHashrateEH * hashesPerEH
	}
	return HashrateFromDifficulty(m.Difficulty, m.BlockTimeSeconds())
}

// HashrateFromDifficulty converts difficulty to the implied network hashrate in H/s.
func HashrateFromDifficulty(difficulty, blockTimeSeconds float64) float64 {
	if difficulty <= 0 || blockTimeSeconds <= 0 {
		return 0
	}
	return difficulty * two32 / blockTimeSeconds
}

// DifficultyFromHashrate is the inverse of HashrateFromDifficulty.
func DifficultyFromHashrate(hashrateHS, blockTimeSeconds float64) float64 {
	if hashrateHS <= 0 || blockTimeSeconds <= 0 {
		return 0
	}
	return hashrateHS * blockTimeSeconds / two32
}

// BlocksPerDay returns 86400 / block time.
func BlocksPerDay(blockTimeSeconds float64) float64 {
	if blockTimeSeconds <= 0 {
		return 0
	}
	return secondsPerDay / blockTimeSeconds
}

func growth(base, annualRate, years float64) float64 {
	if annualRate == 0 || years == 0 {
		return base
	}
	factor := 1 + annualRate
	if factor <= 0 {
		return 0
	}
	return base * math.Pow(factor, years)
}
