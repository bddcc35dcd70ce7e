package models

// -----------------------------------------------------------------------------
// Heatmap state and tile diffs
// -----------------------------------------------------------------------------

// MTileValue is one addressable heatmap cell, keyed by a strike/expiration
// derived key (e.g. "5800:2026-09-19").
type MTileValue struct {
	Gex float64 `json:"gex"`
	OI  float64 `json:"oi"`
}

// -----------------------------------------------------------------------------

// MHeatmapState is the fully materialized exposure surface for one symbol.
// Version is monotonically non-decreasing per symbol.
type MHeatmapState struct {
	Ts            int64                 `json:"ts"`
	Version       int64                 `json:"version"`
	Tiles         map[string]MTileValue `json:"tiles"`
	DtesAvailable []int                 `json:"dtes_available"`
}

// -----------------------------------------------------------------------------

// MTileDiff is an incremental patch against a previously cached MHeatmapState.
// Consumed exactly once; only its effect on the cached state persists.
type MTileDiff struct {
	Symbol        string                `json:"symbol"`
	Ts            int64                 `json:"ts"`
	Version       int64                 `json:"version"`
	Changed       map[string]MTileValue `json:"changed"`
	Removed       []string              `json:"removed"`
	DtesAvailable []int                 `json:"dtes_available"`
}
