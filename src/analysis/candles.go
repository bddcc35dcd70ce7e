package analysis

import (
	"math"
	"sort"
	"time"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// Candle aggregation
// -----------------------------------------------------------------------------
// Pure trail -> OHLC bucketing. The whole lookback window is rescanned on
// every invocation rather than aggregated incrementally; the window is
// bounded, so the repeated work stays cheap enough.
// -----------------------------------------------------------------------------

// BucketTrail folds time-ordered samples into fixed-width OHLC buckets.
// Bucket start = floor(ts / bucketSeconds) * bucketSeconds. The first sample
// of a bucket fixes the open; high/low are running extrema; close is the last
// sample seen. Non-finite values are skipped. The input is sorted by
// timestamp before bucketing, so out-of-order trails still produce
// chronologically correct candles.
func BucketTrail(samples []models.MTrailSample, bucketSeconds int64) []models.MCandle {
	if bucketSeconds <= 0 || len(samples) == 0 {
		return []models.MCandle{}
	}

	sorted := make([]models.MTrailSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Ts < sorted[j].Ts
	})

	buckets := make(map[int64]*models.MCandle)
	var starts []int64

	for _, s := range sorted {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}

		start := (s.Ts / bucketSeconds) * bucketSeconds
		candle, ok := buckets[start]
		if !ok {
			buckets[start] = &models.MCandle{T: start, O: s.Value, H: s.Value, L: s.Value, C: s.Value}
			starts = append(starts, start)
			continue
		}

		if s.Value > candle.H {
			candle.H = s.Value
		}
		if s.Value < candle.L {
			candle.L = s.Value
		}
		candle.C = s.Value
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	result := make([]models.MCandle, 0, len(starts))
	for _, start := range starts {
		result = append(result, *buckets[start])
	}
	return result
}

// -----------------------------------------------------------------------------

// AggregateCandles buckets one symbol's trail at every requested resolution.
// Resolution names are duration strings ("5m", "1h"); unparseable names are
// skipped (config validation rejects them upfront, this is the last line).
func AggregateCandles(samples []models.MTrailSample, resolutions []string) map[string][]models.MCandle {
	series := make(map[string][]models.MCandle, len(resolutions))
	for _, res := range resolutions {
		d, err := time.ParseDuration(res)
		if err != nil || d <= 0 {
			continue
		}
		series[res] = BucketTrail(samples, int64(d.Seconds()))
	}
	return series
}
