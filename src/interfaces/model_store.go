package interfaces

import (
	"context"
	"time"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// IModelStore defines the read contract against the shared analytics store.
// -----------------------------------------------------------------------------

// StoreMessage is one out-of-band notification from a pub/sub topic.
type StoreMessage struct {
	Topic   string
	Payload []byte
}

type IModelStore interface {

	// -----------------------------------------------------------------------------

	// GetJSON performs a point read of a UTF-8 JSON value into out.
	// Returns false when the key is absent. A malformed value is treated
	// as absent, not fatal.
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)

	// -----------------------------------------------------------------------------

	// GetTrail reads a symbol's raw value trail, dropping samples older
	// than the lookback window. Malformed entries are skipped.
	GetTrail(ctx context.Context, symbol string, lookback time.Duration) ([]models.MTrailSample, error)

	// -----------------------------------------------------------------------------

	// Subscribe opens a pub/sub subscription on the given topic patterns.
	// The channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, patterns []string) (<-chan StoreMessage, error)

	// -----------------------------------------------------------------------------

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// Close releases the underlying connection.
	Close() error
}
