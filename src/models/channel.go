package models

import "fmt"

// -----------------------------------------------------------------------------
// Channels
// -----------------------------------------------------------------------------

// Channel is a named class of market-model data with its own cache slot and
// subscriber set.
type Channel string

const (
	ChannelSpot       Channel = "spot"
	ChannelGex        Channel = "gex"
	ChannelHeatmap    Channel = "heatmap"
	ChannelCandles    Channel = "candles"
	ChannelCommentary Channel = "commentary"
	ChannelRegimeA    Channel = "regime_a"
	ChannelRegimeB    Channel = "regime_b"
	ChannelAlerts     Channel = "alerts"

	// ChannelAll aggregates every other channel for bootstrap-and-replay.
	ChannelAll Channel = "all"
)

// -----------------------------------------------------------------------------

// AllChannels lists every concrete channel (excludes the synthetic "all").
var AllChannels = []Channel{
	ChannelSpot,
	ChannelGex,
	ChannelHeatmap,
	ChannelCandles,
	ChannelCommentary,
	ChannelRegimeA,
	ChannelRegimeB,
	ChannelAlerts,
}

// -----------------------------------------------------------------------------

// ParseChannel validates a channel name coming off the wire.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if c == ChannelAll {
		return c, nil
	}
	for _, known := range AllChannels {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// -----------------------------------------------------------------------------

// SymbolScoped reports whether the channel is keyed by an uppercase ticker.
func (c Channel) SymbolScoped() bool {
	switch c {
	case ChannelGex, ChannelHeatmap, ChannelCandles:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Wire event names
// -----------------------------------------------------------------------------

const (
	EventConnected   = "connected"
	EventSpot        = "spot"
	EventGex         = "gex"
	EventHeatmap     = "heatmap"
	EventHeatmapDiff = "heatmap_diff"
	EventCandles     = "candles"
	EventCommentary  = "commentary"
	EventRegimeA     = "regime_a"
	EventRegimeB     = "regime_b"
	EventAlert       = "alert"
)

// -----------------------------------------------------------------------------

// ReplayEventName is the event under which a channel's cached state is sent
// to a newly connected client. Heatmap replay is always the full state, never
// a diff; alerts replay as the generic "alert" wrapper.
func ReplayEventName(c Channel) string {
	switch c {
	case ChannelSpot:
		return EventSpot
	case ChannelGex:
		return EventGex
	case ChannelHeatmap:
		return EventHeatmap
	case ChannelCandles:
		return EventCandles
	case ChannelCommentary:
		return EventCommentary
	case ChannelRegimeA:
		return EventRegimeA
	case ChannelRegimeB:
		return EventRegimeB
	case ChannelAlerts:
		return EventAlert
	}
	return string(c)
}

// -----------------------------------------------------------------------------
// Upstream store key / topic conventions
// -----------------------------------------------------------------------------

const (
	KeySpot             = "model:spot"
	KeyRegimeA          = "model:regime_a"
	KeyRegimeB          = "model:regime_b"
	KeyCommentaryEpoch  = "model:commentary:epoch"
	KeyCommentaryEvent  = "model:commentary:event"
	TopicHeatmapDiff    = "heatmap-diff:" // + symbol
	TopicCommentary     = "commentary:"   // + slot
	TopicAlerts         = "alerts:"       // + subtype
	CommentarySlotEpoch = "epoch"
	CommentarySlotEvent = "event"
)

// -----------------------------------------------------------------------------

func KeyGexCalls(symbol string) string { return "model:gex:" + symbol + ":calls" }
func KeyGexPuts(symbol string) string  { return "model:gex:" + symbol + ":puts" }
func KeyHeatmap(symbol string) string  { return "model:heatmap:" + symbol }
func KeyTrail(symbol string) string    { return "model:trail:" + symbol }
