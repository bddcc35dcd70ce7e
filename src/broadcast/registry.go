package broadcast

import (
	"sync"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/state"
)

// -----------------------------------------------------------------------------
// ConnectionRegistry / Broadcaster
// -----------------------------------------------------------------------------
// Single-goroutine actor owning the subscription maps: all map mutations and
// all fan-out writes happen on the run loop, so no lock discipline is needed
// around the sets and every subscriber observes the same event order per
// channel. The registry owns the sets; a connection never owns the registry,
// it only carries back-references used at cleanup time.
// -----------------------------------------------------------------------------

type Registry struct {
	Logger *logger.Logger
	cache  *state.ModelStateCache

	commands chan func()
	quit     chan struct{}
	done     chan struct{}

	// commitMu serializes "mutate cache, then enqueue broadcast" so commit
	// order and delivery order agree per channel even with two writers
	// (poller and push listener).
	commitMu sync.Mutex

	// Actor-owned state, touched only from run().
	sets    map[state.Key]map[Connection]struct{}
	allSet  map[Connection]struct{}
	members map[Connection][]state.Key
}

// -----------------------------------------------------------------------------

func NewRegistry(cache *state.ModelStateCache, log *logger.Logger) *Registry {
	return &Registry{
		Logger:   log,
		cache:    cache,
		commands: make(chan func(), 512),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		sets:     make(map[state.Key]map[Connection]struct{}),
		allSet:   make(map[Connection]struct{}),
		members:  make(map[Connection][]state.Key),
	}
}

// -----------------------------------------------------------------------------

// Start launches the actor loop.
func (r *Registry) Start() {
	go r.run()
}

// Stop halts the loop. Used only at shutdown.
func (r *Registry) Stop() {
	close(r.quit)
	<-r.done
}

// -----------------------------------------------------------------------------

func (r *Registry) run() {
	defer close(r.done)
	for {
		select {
		case cmd := <-r.commands:
			cmd()
		case <-r.quit:
			for conn := range r.members {
				conn.Close()
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (r *Registry) exec(cmd func()) {
	select {
	case r.commands <- cmd:
	case <-r.quit:
	}
}

// execWait runs cmd on the actor loop and blocks until it completed.
func (r *Registry) execWait(cmd func()) {
	finished := make(chan struct{})
	r.exec(func() {
		cmd()
		close(finished)
	})
	select {
	case <-finished:
	case <-r.quit:
	}
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Subscribe adds the connection to the subscriber set for (channel, symbol),
// sends the connected acknowledgment and synchronously replays the current
// cached state, so a client never sees a gap between connecting and the
// latest known value. Channel "all" subscribes to every broadcast and
// replays the whole cache.
func (r *Registry) Subscribe(conn Connection, channel models.Channel, symbol string) {
	r.execWait(func() {
		r.doSubscribe(conn, channel, symbol)
	})
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the connection from every set it was added to.
// Idempotent: repeated calls and unknown connections are no-ops.
func (r *Registry) Unsubscribe(conn Connection) {
	r.execWait(func() {
		r.doUnsubscribe(conn)
	})
}

// -----------------------------------------------------------------------------

// Publish fans one event out to the channel's subscriber set and the "all"
// set. A failed write drops that connection without aborting delivery to the
// rest. Asynchronous; ordering is the enqueue order.
func (r *Registry) Publish(channel models.Channel, symbol string, event string, payload interface{}) {
	r.exec(func() {
		r.doPublish(channel, symbol, event, payload)
	})
}

// -----------------------------------------------------------------------------

// Commit runs a cache mutation and enqueues the resulting broadcast as one
// ordered operation. Returns whether the mutation changed state.
func (r *Registry) Commit(channel models.Channel, symbol string, event string, apply func() (interface{}, bool)) bool {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	payload, changed := apply()
	if !changed {
		return false
	}
	r.Publish(channel, symbol, event, payload)
	return true
}

// -----------------------------------------------------------------------------

// ConnectionCount reports the number of live connections, for health checks.
func (r *Registry) ConnectionCount() int {
	var count int
	r.execWait(func() {
		count = len(r.members)
	})
	return count
}

// -----------------------------------------------------------------------------
// Actor internals
// -----------------------------------------------------------------------------

type connectedAck struct {
	Channel models.Channel `json:"channel"`
	Symbol  string         `json:"symbol,omitempty"`
	Ts      int64          `json:"ts"`
}

func (r *Registry) doSubscribe(conn Connection, channel models.Channel, symbol string) {
	ack := connectedAck{Channel: channel, Symbol: symbol, Ts: time.Now().Unix()}
	if err := conn.Send(models.EventConnected, ack); err != nil {
		conn.Close()
		return
	}

	if channel == models.ChannelAll {
		r.allSet[conn] = struct{}{}
		r.members[conn] = append(r.members[conn], state.Key{Channel: models.ChannelAll})
		r.replayAll(conn)
		return
	}

	key := state.Key{Channel: channel, Symbol: symbol}
	set, ok := r.sets[key]
	if !ok {
		set = make(map[Connection]struct{})
		r.sets[key] = set
	}
	set[conn] = struct{}{}
	r.members[conn] = append(r.members[conn], key)

	// Replay current state. No cached value yet is not an error: the client
	// just waits for the next successful tick to populate data.
	if cached := r.cache.Get(channel, symbol); cached != nil {
		if err := conn.Send(models.ReplayEventName(channel), cached); err != nil {
			r.doUnsubscribe(conn)
			conn.Close()
		}
	}
}

// -----------------------------------------------------------------------------

func (r *Registry) replayAll(conn Connection) {
	for _, entry := range r.cache.Entries() {
		if err := conn.Send(models.ReplayEventName(entry.Channel), entry.State); err != nil {
			r.doUnsubscribe(conn)
			conn.Close()
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (r *Registry) doUnsubscribe(conn Connection) {
	keys, ok := r.members[conn]
	if !ok {
		return
	}
	for _, key := range keys {
		if key.Channel == models.ChannelAll {
			delete(r.allSet, conn)
			continue
		}
		if set, ok := r.sets[key]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(r.sets, key)
			}
		}
	}
	delete(r.members, conn)
}

// -----------------------------------------------------------------------------

func (r *Registry) doPublish(channel models.Channel, symbol string, event string, payload interface{}) {
	key := state.Key{Channel: channel, Symbol: symbol}

	var failed []Connection
	for conn := range r.sets[key] {
		if err := conn.Send(event, payload); err != nil {
			failed = append(failed, conn)
		}
	}
	for conn := range r.allSet {
		if err := conn.Send(event, payload); err != nil {
			failed = append(failed, conn)
		}
	}

	// Self-healing: a dead connection is removed on first write failure and
	// never appears in a subsequent publish iteration.
	for _, conn := range failed {
		r.Logger.Debug("Dropping dead connection on %s/%s", channel, symbol)
		r.doUnsubscribe(conn)
		conn.Close()
	}
}
