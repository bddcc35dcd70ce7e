package interfaces

import "market-relay/src/models"

// -----------------------------------------------------------------------------
// IArchive defines the contract for optional persistence of relayed data.
// All writes are best-effort; archive failures never affect broadcasting.
// -----------------------------------------------------------------------------

type IArchive interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSpot records one spot snapshot across symbols.
	SaveSpot(state models.MSpotState) error

	// -----------------------------------------------------------------------------

	// SaveCandles upserts the candle buckets for one symbol and resolution.
	SaveCandles(symbol, resolution string, candles []models.MCandle) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes rows older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
