package interfaces

import "market-relay/src/models"

// -----------------------------------------------------------------------------
// IBroadcaster is the write side of the fan-out layer, consumed by the
// poller and the push listener.
// -----------------------------------------------------------------------------

type IBroadcaster interface {

	// -----------------------------------------------------------------------------

	// Commit runs apply (a cache mutation) and, when it reports a change,
	// enqueues the returned payload for fan-out under the given event name.
	// Mutation and enqueue happen as one ordered operation, so subscribers
	// observe broadcasts in commit order per channel.
	Commit(channel models.Channel, symbol string, event string, apply func() (payload interface{}, changed bool)) bool
}
