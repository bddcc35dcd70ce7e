package poller

import (
	"reflect"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// Merge and comparison helpers
// -----------------------------------------------------------------------------

// mergeGexHalves combines the calls and puts records into one logical per
// symbol value. Net exposure is calls minus puts summed across strikes; the
// newer half supplies ts and spot.
func mergeGexHalves(symbol string, calls, puts models.MGexHalf) *models.MGexState {
	merged := &models.MGexState{
		Symbol: symbol,
		Ts:     calls.Ts,
		Spot:   calls.Spot,
		Calls:  calls.Strikes,
		Puts:   puts.Strikes,
	}
	if puts.Ts > merged.Ts {
		merged.Ts = puts.Ts
		merged.Spot = puts.Spot
	}

	var net float64
	for _, s := range calls.Strikes {
		net += s.Exposure
	}
	for _, s := range puts.Strikes {
		net -= s.Exposure
	}
	merged.Net = net

	return merged
}

// -----------------------------------------------------------------------------

func heatmapEqual(a, b *models.MHeatmapState) bool {
	return reflect.DeepEqual(a, b)
}

func candleSetEqual(a, b *models.MCandleSet) bool {
	return reflect.DeepEqual(a, b)
}
