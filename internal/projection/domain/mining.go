package projection

import (
	"math"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// SubsidyAtHeight returns the mainnet block subsidy in BTC at the given height.
func SubsidyAtHeight(height int64) float64 {
	if height < 0 {
		height = 0
	}
	if height > math.MaxInt32 {
		height = math.MaxInt32
	}
	return btcutil.Amount(blockchain.CalcBlockSubsidy(int32(height), &chaincfg.MainNetParams)).ToBTC()
}

// MiningInput holds the market and fleet state for one day.
type MiningInput struct {
	Miners               []DegradedMiner
	EffectiveMiningHours float64
	NetworkHashrateHS    float64
	BlockTimeSeconds     float64
	BlockRewardBTC       float64
	FeesPerBlockBTC      float64
	PoolFeePercent       float64
	PriceUSD             float64
}

// MiningResult is the mining output for one day.
type MiningResult struct {
	NominalHashrateTH   float64 `json:"nominal_hashrate_th"`
	EffectiveHashrateTH float64 `json:"effective_hashrate_th"`
	ActiveMiners        float64 `json:"active_miners"`
	AvgEfficiencyJTH    float64 `json:"avg_efficiency_jth"`
	NetworkHashrateEH   float64 `json:"network_hashrate_eh"`
	Difficulty          float64 `json:"difficulty"`
	BlockRewardBTC      float64 `json:"block_reward_btc"`
	BlocksPerDay        float64 `json:"blocks_per_day"`
	NetworkShare        float64 `json:"network_share"`
	PoolFeeBTC          float64 `json:"pool_fee_btc"`
	BTCMined            float64 `json:"btc_mined"`
	BTCPriceUSD         float64 `json:"btc_price_usd"`
	MiningRevenueUSD    float64 `json:"mining_revenue_usd"`
}

// ComputeMining converts effective hashrate into BTC and USD for one day.
// Hashrate is carried in H/s internally: effective TH * 1e12 / network H/s is
// the expected share of blocks found.
func ComputeMining(in MiningInput) (MiningResult, error) {
	if in.NetworkHashrateHS <= 0 || math.IsNaN(in.NetworkHashrateHS) {
		return MiningResult{}, domainError(ComponentMining, "network hashrate must be positive, got %g", in.NetworkHashrateHS)
	}
	if in.BlockTimeSeconds <= 0 {
		return MiningResult{}, domainError(ComponentMining, "block time must be positive, got %g", in.BlockTimeSeconds)
	}
	if in.EffectiveMiningHours < 0 || in.EffectiveMiningHours > 24 {
		return MiningResult{}, domainError(ComponentMining, "effective mining hours %g outside [0, 24]", in.EffectiveMiningHours)
	}
	if in.BlockRewardBTC < 0 || in.FeesPerBlockBTC < 0 || in.PriceUSD < 0 {
		return MiningResult{}, domainError(ComponentMining, "negative reward or price")
	}

	out := MiningResult{
		NetworkHashrateEH: in.NetworkHashrateHS / hashesPerEH,
		Difficulty:        DifficultyFromHashrate(in.NetworkHashrateHS, in.BlockTimeSeconds),
		BlockRewardBTC:    in.BlockRewardBTC,
		BlocksPerDay:      BlocksPerDay(in.BlockTimeSeconds),
		BTCPriceUSD:       in.PriceUSD,
	}
	uptime := in.EffectiveMiningHours / 24
	var powerW float64
	for _, m := range in.Miners {
		if m.EffectiveQuantity <= 0 || m.HashrateTH <= 0 {
			continue
		}
		out.NominalHashrateTH += m.HashrateTH * m.EffectiveQuantity
		out.ActiveMiners += m.EffectiveQuantity
		powerW += m.PowerW * m.EffectiveQuantity
	}
	if out.NominalHashrateTH > 0 {
		out.AvgEfficiencyJTH = powerW / out.NominalHashrateTH
	}
	out.EffectiveHashrateTH = out.NominalHashrateTH * uptime
	if out.EffectiveHashrateTH == 0 {
		return out, nil
	}

	out.NetworkShare = out.EffectiveHashrateTH * hashesPerTH / in.NetworkHashrateHS
	gross := out.NetworkShare * out.BlocksPerDay * (in.BlockRewardBTC + in.FeesPerBlockBTC)
	out.PoolFeeBTC = gross * clamp(in.PoolFeePercent, 0, 100) / 100
	out.BTCMined = math.Max(0, gross-out.PoolFeeBTC)
	out.MiningRevenueUSD = out.BTCMined * in.PriceUSD
	return out, nil
}
