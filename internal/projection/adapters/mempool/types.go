package mempool

// HashrateResponse is the body of /v1/mining/hashrate/3d.
type HashrateResponse struct {
	Hashrates         []HashratePoint   `json:"hashrates"`
	Difficulty        []DifficultyPoint `json:"difficulty"`
	CurrentHashrate   float64           `json:"currentHashrate"`
	CurrentDifficulty float64           `json:"currentDifficulty"`
}

// HashratePoint is one averaged network hashrate sample in H/s.
type HashratePoint struct {
	Timestamp   int64   `json:"timestamp"`
	AvgHashrate float64 `json:"avgHashrate"`
}

// DifficultyPoint is one difficulty adjustment.
type DifficultyPoint struct {
	Time       int64   `json:"time"`
	Height     int64   `json:"height"`
	Difficulty float64 `json:"difficulty"`
	Adjustment float64 `json:"adjustment"`
}

// Prices is the body of /v1/prices. Only the currencies used here are decoded.
type Prices struct {
	Time int64   `json:"time"`
	USD  float64 `json:"USD"`
	EUR  float64 `json:"EUR"`
}

// DifficultyAdjustment is the body of /v1/difficulty-adjustment.
type DifficultyAdjustment struct {
	ProgressPercent  float64 `json:"progressPercent"`
	DifficultyChange float64 `json:"difficultyChange"`
	RemainingBlocks  int64   `json:"remainingBlocks"`
	TimeAvgMillis    float64 `json:"timeAvg"`
}

// BlockFees is one entry of /v1/mining/blocks/fees/24h. AvgFees is in satoshis.
type BlockFees struct {
	AvgHeight int64   `json:"avgHeight"`
	Timestamp int64   `json:"timestamp"`
	AvgFees   int64   `json:"avgFees"`
	USD       float64 `json:"USD"`
}
