package models

// -----------------------------------------------------------------------------
// Trail samples and OHLC candles
// -----------------------------------------------------------------------------

// MTrailSample is one raw value observation in a symbol's price trail.
type MTrailSample struct {
	Ts    int64   `json:"ts"`
	Value float64 `json:"value"`
}

// -----------------------------------------------------------------------------

// MCandle is one OHLC bucket keyed by bucket-start timestamp (seconds).
type MCandle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

// -----------------------------------------------------------------------------

// MCandleSet is the cached candle state for one symbol: one ordered bucket
// list per resolution name ("5m", "10m", "15m", "1h").
type MCandleSet struct {
	Symbol string               `json:"symbol"`
	Ts     int64                `json:"ts"`
	Series map[string][]MCandle `json:"series"`
}
