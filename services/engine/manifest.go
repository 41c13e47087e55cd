package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EngineVersion tags every run manifest; bump on behavior changes.
const EngineVersion = "1.2.0"

// RunManifest records what a run was computed from, so any result can be
// reproduced: same parameter hash + same data checksum => identical trades
// and equity curve.
type RunManifest struct {
	RunID         string `json:"run_id"`
	Strategy      string `json:"strategy"`
	ParamsHash    string `json:"params_hash"`
	DataChecksum  string `json:"data_checksum"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

func NewRunManifest(strategy string, params StrategyParameters, candles []Candle) RunManifest {
	paramsBytes, _ := json.Marshal(params)

	h := sha256.New()
	for _, c := range candles {
		fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s\n", c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	return RunManifest{
		RunID:         uuid.NewString(),
		Strategy:      strategy,
		ParamsHash:    fmt.Sprintf("%x", sha256.Sum256(paramsBytes)),
		DataChecksum:  fmt.Sprintf("%x", h.Sum(nil)),
		EngineVersion: EngineVersion,
		CreatedAt:     time.Now().UTC().UnixMilli(),
	}
}
