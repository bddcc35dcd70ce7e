package models

// -----------------------------------------------------------------------------
// Spot
// -----------------------------------------------------------------------------

// MSpotState carries the latest spot price per tracked symbol. Global channel,
// one cache slot for all symbols.
type MSpotState struct {
	Ts     int64               `json:"ts"`
	Prices map[string]MSpotRow `json:"prices"`
}

type MSpotRow struct {
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// -----------------------------------------------------------------------------
// GEX
// -----------------------------------------------------------------------------

// MGexStrike is the exposure contributed at one strike.
type MGexStrike struct {
	Strike   float64 `json:"strike"`
	Exposure float64 `json:"exposure"`
}

// MGexHalf is one physically separate store record (calls or puts) for a
// symbol. Two halves are merged into one MGexState before the changed-check.
type MGexHalf struct {
	Ts      int64        `json:"ts"`
	Spot    float64      `json:"spot"`
	Strikes []MGexStrike `json:"strikes"`
}

// MGexState is the merged option-exposure profile for one symbol.
type MGexState struct {
	Symbol string       `json:"symbol"`
	Ts     int64        `json:"ts"`
	Spot   float64      `json:"spot"`
	Calls  []MGexStrike `json:"calls"`
	Puts   []MGexStrike `json:"puts"`
	Net    float64      `json:"net"`
}

// -----------------------------------------------------------------------------
// Regime indicators
// -----------------------------------------------------------------------------

// MRegimeState is one derived regime indicator (global channel each).
type MRegimeState struct {
	Ts         int64              `json:"ts"`
	Label      string             `json:"label"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components,omitempty"`
}
