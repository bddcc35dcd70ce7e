package state

import (
	"reflect"
	"sort"
	"sync"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// ModelStateCache
// -----------------------------------------------------------------------------
// Canonical in-memory snapshot per (channel, symbol). Single source of truth
// for "current value" and for replay-on-connect. Symbol is "" for global
// channels.
// -----------------------------------------------------------------------------

type Key struct {
	Channel models.Channel
	Symbol  string
}

// Entry is one cached slot, exposed for full-cache replay.
type Entry struct {
	Channel models.Channel
	Symbol  string
	State   interface{}
}

// -----------------------------------------------------------------------------

type ModelStateCache struct {
	mu     sync.RWMutex
	states map[Key]interface{}
}

// -----------------------------------------------------------------------------

func NewModelStateCache() *ModelStateCache {
	return &ModelStateCache{
		states: make(map[Key]interface{}),
	}
}

// -----------------------------------------------------------------------------

// Get returns the cached state for a channel/symbol, or nil if none.
func (c *ModelStateCache) Get(channel models.Channel, symbol string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[Key{Channel: channel, Symbol: symbol}]
}

// -----------------------------------------------------------------------------

// Set stores newState and reports whether it differs from the previous value.
// The comparison is a typed structural equality, so map key order and
// serialization artifacts cannot produce spurious change signals.
func (c *ModelStateCache) Set(channel models.Channel, symbol string, newState interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{Channel: channel, Symbol: symbol}
	if old, ok := c.states[key]; ok && reflect.DeepEqual(old, newState) {
		return false
	}
	c.states[key] = newState
	return true
}

// -----------------------------------------------------------------------------

// Apply performs an atomic read-modify-write: fn receives the current value
// (nil if none) and returns the replacement plus a changed flag. The slot is
// only written when changed is true, so fn can discard a whole update without
// leaving a partially applied state behind.
func (c *ModelStateCache) Apply(channel models.Channel, symbol string, fn func(old interface{}) (interface{}, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{Channel: channel, Symbol: symbol}
	newState, changed := fn(c.states[key])
	if !changed {
		return false
	}
	c.states[key] = newState
	return true
}

// -----------------------------------------------------------------------------

// Entries returns a stable-ordered copy of every cached slot, used to replay
// the full cache to a subscriber of the "all" channel.
func (c *ModelStateCache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.states))
	for key, state := range c.states {
		entries = append(entries, Entry{Channel: key.Channel, Symbol: key.Symbol, State: state})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Channel != entries[j].Channel {
			return entries[i].Channel < entries[j].Channel
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	return entries
}
