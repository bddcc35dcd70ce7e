package broadcast

import (
	"errors"
	"sync"
	"testing"

	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/state"
)

// fakeConn records every event and can be told to fail from the Nth send on.
type fakeConn struct {
	mu       sync.Mutex
	events   []Event
	sends    int
	failFrom int // fail on send number >= failFrom (1-based); 0 = never
	closed   bool
}

func (c *fakeConn) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	if c.failFrom > 0 && c.sends >= c.failFrom {
		return errors.New("write failed")
	}
	c.events = append(c.events, Event{Name: event, Data: payload})
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) recorded() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// -----------------------------------------------------------------------------

func newTestRegistry(t *testing.T) (*Registry, *state.ModelStateCache) {
	t.Helper()
	cache := state.NewModelStateCache()
	r := NewRegistry(cache, logger.NewLogger("ERROR", "test"))
	r.Start()
	t.Cleanup(r.Stop)
	return r, cache
}

// sync flushes the actor queue: execWait commands run after everything
// enqueued before them.
func flush(r *Registry) {
	r.ConnectionCount()
}

// -----------------------------------------------------------------------------

func TestSubscribe_SendsAckThenReplaysCachedState(t *testing.T) {
	r, cache := newTestRegistry(t)

	spot := &models.MSpotState{Ts: 9, Prices: map[string]models.MSpotRow{"SPX": {Price: 5000}}}
	cache.Set(models.ChannelSpot, "", spot)

	conn := &fakeConn{}
	r.Subscribe(conn, models.ChannelSpot, "")

	events := conn.recorded()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (ack + replay)", len(events))
	}
	if events[0].Name != models.EventConnected {
		t.Errorf("first event = %s, want connected ack", events[0].Name)
	}
	if events[1].Name != models.EventSpot || events[1].Data != interface{}(spot) {
		t.Errorf("replay event = %+v, want cached spot state", events[1])
	}
}

func TestSubscribe_NoCachedStateOnlyAck(t *testing.T) {
	r, _ := newTestRegistry(t)

	conn := &fakeConn{}
	r.Subscribe(conn, models.ChannelGex, "SPX")

	events := conn.recorded()
	if len(events) != 1 || events[0].Name != models.EventConnected {
		t.Errorf("events = %+v, want only the connected ack", events)
	}
}

func TestSubscribe_AllReplaysEveryCachedSlot(t *testing.T) {
	r, cache := newTestRegistry(t)

	cache.Set(models.ChannelSpot, "", &models.MSpotState{Ts: 1})
	cache.Set(models.ChannelGex, "SPX", &models.MGexState{Symbol: "SPX"})
	cache.Set(models.ChannelHeatmap, "SPX", &models.MHeatmapState{Version: 3})

	conn := &fakeConn{}
	r.Subscribe(conn, models.ChannelAll, "")

	events := conn.recorded()
	if len(events) != 4 {
		t.Fatalf("events = %d, want ack + 3 replays", len(events))
	}
}

func TestPublish_FanOutIsolation(t *testing.T) {
	r, _ := newTestRegistry(t)

	ndx := &fakeConn{}
	spx := &fakeConn{}
	all := &fakeConn{}
	r.Subscribe(ndx, models.ChannelHeatmap, "NDX")
	r.Subscribe(spx, models.ChannelHeatmap, "SPX")
	r.Subscribe(all, models.ChannelAll, "")

	r.Publish(models.ChannelHeatmap, "NDX", models.EventHeatmapDiff, models.MTileDiff{Symbol: "NDX"})
	flush(r)

	if n := len(ndx.recorded()); n != 2 { // ack + diff
		t.Errorf("NDX subscriber events = %d, want 2", n)
	}
	if n := len(spx.recorded()); n != 1 { // ack only
		t.Errorf("SPX subscriber events = %d, want 1 (ack only)", n)
	}
	if n := len(all.recorded()); n != 2 { // ack + diff
		t.Errorf("all subscriber events = %d, want 2", n)
	}
}

func TestPublish_FailedConnectionIsPrunedOthersStillServed(t *testing.T) {
	r, _ := newTestRegistry(t)

	bad := &fakeConn{failFrom: 2} // ack succeeds, first broadcast fails
	good := &fakeConn{}
	r.Subscribe(bad, models.ChannelSpot, "")
	r.Subscribe(good, models.ChannelSpot, "")

	for i := 0; i < 3; i++ {
		r.Publish(models.ChannelSpot, "", models.EventSpot, i)
	}
	flush(r)

	// The failing connection took exactly one broadcast attempt, then was
	// unsubscribed and closed; later publishes never reached it.
	bad.mu.Lock()
	badSends, badClosed := bad.sends, bad.closed
	bad.mu.Unlock()
	if badSends != 2 {
		t.Errorf("bad connection sends = %d, want 2 (ack + one failed write)", badSends)
	}
	if !badClosed {
		t.Error("failed connection was not closed")
	}

	if n := len(good.recorded()); n != 4 { // ack + 3 broadcasts
		t.Errorf("good connection events = %d, want 4", n)
	}
	if r.ConnectionCount() != 1 {
		t.Errorf("connection count = %d, want 1", r.ConnectionCount())
	}
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)

	conn := &fakeConn{}
	r.Subscribe(conn, models.ChannelSpot, "")
	r.Unsubscribe(conn)
	r.Unsubscribe(conn) // second call is a no-op

	never := &fakeConn{}
	r.Unsubscribe(never) // never subscribed, still a no-op

	r.Publish(models.ChannelSpot, "", models.EventSpot, 1)
	flush(r)

	if n := len(conn.recorded()); n != 1 {
		t.Errorf("unsubscribed connection received broadcast, events = %d", n)
	}
	if r.ConnectionCount() != 0 {
		t.Errorf("connection count = %d, want 0", r.ConnectionCount())
	}
}

func TestCommit_NoChangeSuppressesBroadcast(t *testing.T) {
	r, cache := newTestRegistry(t)

	conn := &fakeConn{}
	r.Subscribe(conn, models.ChannelSpot, "")

	spot := &models.MSpotState{Ts: 1, Prices: map[string]models.MSpotRow{"SPX": {Price: 5000}}}

	first := r.Commit(models.ChannelSpot, "", models.EventSpot, func() (interface{}, bool) {
		return spot, cache.Set(models.ChannelSpot, "", spot)
	})
	// Equal value again: the changed-check must suppress the broadcast.
	same := &models.MSpotState{Ts: 1, Prices: map[string]models.MSpotRow{"SPX": {Price: 5000}}}
	second := r.Commit(models.ChannelSpot, "", models.EventSpot, func() (interface{}, bool) {
		return same, cache.Set(models.ChannelSpot, "", same)
	})
	flush(r)

	if !first || second {
		t.Errorf("commit results = %v, %v; want true, false", first, second)
	}
	if n := len(conn.recorded()); n != 2 { // ack + one broadcast
		t.Errorf("events = %d, want 2", n)
	}
}

func TestPublish_OrderPreservedPerChannel(t *testing.T) {
	r, _ := newTestRegistry(t)

	conn := &fakeConn{}
	r.Subscribe(conn, models.ChannelRegimeA, "")

	for i := 0; i < 5; i++ {
		r.Publish(models.ChannelRegimeA, "", models.EventRegimeA, i)
	}
	flush(r)

	events := conn.recorded()[1:] // skip ack
	for i, ev := range events {
		if ev.Data != interface{}(i) {
			t.Fatalf("event %d carries %v, want %d (order broken)", i, ev.Data, i)
		}
	}
}

func TestStreamConn_OverflowReportsGone(t *testing.T) {
	conn := NewStreamConn(2)

	if err := conn.Send("a", 1); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := conn.Send("b", 2); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	if err := conn.Send("c", 3); !errors.Is(err, ErrConnectionGone) {
		t.Errorf("overflow err = %v, want ErrConnectionGone", err)
	}

	conn.Close()
	conn.Close() // idempotent
	if err := conn.Send("d", 4); !errors.Is(err, ErrConnectionGone) {
		t.Errorf("send after close err = %v, want ErrConnectionGone", err)
	}
}
