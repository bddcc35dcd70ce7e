package poller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"market-relay/src/config"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/state"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeStore struct {
	values   map[string]string
	trails   map[string][]models.MTrailSample
	failKeys map[string]bool
}

func (s *fakeStore) GetJSON(_ context.Context, key string, out interface{}) (bool, error) {
	if s.failKeys[key] {
		return false, errors.New("store unavailable")
	}
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, nil // malformed is treated as absent
	}
	return true, nil
}

func (s *fakeStore) GetTrail(_ context.Context, symbol string, _ time.Duration) ([]models.MTrailSample, error) {
	if s.failKeys[models.KeyTrail(symbol)] {
		return nil, errors.New("store unavailable")
	}
	return s.trails[symbol], nil
}

func (s *fakeStore) Subscribe(context.Context, []string) (<-chan interfaces.StoreMessage, error) {
	ch := make(chan interfaces.StoreMessage)
	close(ch)
	return ch, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

// -----------------------------------------------------------------------------

type publishRec struct {
	Channel models.Channel
	Symbol  string
	Event   string
	Payload interface{}
}

type fakeBroadcaster struct {
	publishes []publishRec
}

func (b *fakeBroadcaster) Commit(channel models.Channel, symbol, event string, apply func() (interface{}, bool)) bool {
	payload, changed := apply()
	if changed {
		b.publishes = append(b.publishes, publishRec{Channel: channel, Symbol: symbol, Event: event, Payload: payload})
	}
	return changed
}

func (b *fakeBroadcaster) byChannel(channel models.Channel) []publishRec {
	var out []publishRec
	for _, p := range b.publishes {
		if p.Channel == channel {
			out = append(out, p)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{MConfig: &models.MConfig{
		Symbols: []string{"SPX"},
		Poll:    models.MPollConfig{IntervalMs: 5000, CandleIntervalMs: 2000, IdleDivisor: 1},
		Candles: models.MCandleConfig{Resolutions: []string{"5m"}, LookbackHours: 24},
	}}
}

func newTestPoller(store *fakeStore) (*Poller, *fakeBroadcaster, *state.ModelStateCache) {
	cache := state.NewModelStateCache()
	bc := &fakeBroadcaster{}
	p := NewPoller(testConfig(), store, cache, bc, nil, nil, logger.NewLogger("ERROR", "test"))
	return p, bc, cache
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestPollOnce_GexHalvesMergedIntoSingleBroadcast(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeyGexCalls("SPX"): `{"ts":100,"spot":5000,"strikes":[{"strike":5000,"exposure":10},{"strike":5100,"exposure":5}]}`,
		models.KeyGexPuts("SPX"):  `{"ts":110,"spot":5001,"strikes":[{"strike":4900,"exposure":4}]}`,
	}}
	p, bc, cache := newTestPoller(store)

	p.PollOnce(context.Background())

	gex := bc.byChannel(models.ChannelGex)
	if len(gex) != 1 {
		t.Fatalf("gex broadcasts = %d, want exactly 1", len(gex))
	}

	merged, _ := cache.Get(models.ChannelGex, "SPX").(*models.MGexState)
	if merged == nil {
		t.Fatal("no merged gex state cached")
	}
	if merged.Net != 11 { // 10+5 calls - 4 puts
		t.Errorf("net exposure = %v, want 11", merged.Net)
	}
	if merged.Ts != 110 || merged.Spot != 5001 {
		t.Errorf("merged ts/spot = %d/%v, want the newer half's 110/5001", merged.Ts, merged.Spot)
	}
}

func TestPollOnce_OneHalfChangedStillOneBroadcast(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeyGexCalls("SPX"): `{"ts":100,"spot":5000,"strikes":[{"strike":5000,"exposure":10}]}`,
		models.KeyGexPuts("SPX"):  `{"ts":100,"spot":5000,"strikes":[{"strike":4900,"exposure":4}]}`,
	}}
	p, bc, _ := newTestPoller(store)

	p.PollOnce(context.Background())
	// Only the puts record moves.
	store.values[models.KeyGexPuts("SPX")] = `{"ts":200,"spot":5000,"strikes":[{"strike":4900,"exposure":6}]}`
	p.PollOnce(context.Background())

	if got := len(bc.byChannel(models.ChannelGex)); got != 2 {
		t.Errorf("gex broadcasts = %d, want 2 (one per tick with a change)", got)
	}
}

func TestPollOnce_UnchangedUpstreamIsIdempotent(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeySpot:            `{"ts":1,"prices":{"SPX":{"price":5000,"change":0.5}}}`,
		models.KeyRegimeA:         `{"ts":1,"label":"calm","score":0.2}`,
		models.KeyGexCalls("SPX"): `{"ts":1,"spot":5000,"strikes":[]}`,
		models.KeyHeatmap("SPX"):  `{"ts":1,"version":1,"tiles":{}}`,
	}}
	p, bc, _ := newTestPoller(store)

	p.PollOnce(context.Background())
	first := len(bc.publishes)

	p.PollOnce(context.Background())
	if len(bc.publishes) != first {
		t.Errorf("second poll against unchanged upstream fired %d extra broadcasts", len(bc.publishes)-first)
	}
}

func TestPollOnce_FetchErrorKeepsStaleState(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeySpot: `{"ts":1,"prices":{"SPX":{"price":5000}}}`,
	}}
	p, bc, cache := newTestPoller(store)

	p.PollOnce(context.Background())
	if len(bc.byChannel(models.ChannelSpot)) != 1 {
		t.Fatal("expected initial spot broadcast")
	}

	store.failKeys = map[string]bool{models.KeySpot: true}
	p.PollOnce(context.Background())

	spot, _ := cache.Get(models.ChannelSpot, "").(*models.MSpotState)
	if spot == nil || spot.Ts != 1 {
		t.Errorf("stale spot state lost after fetch error: %+v", spot)
	}
	if got := len(bc.byChannel(models.ChannelSpot)); got != 1 {
		t.Errorf("spot broadcasts = %d, want 1 (no broadcast on failed tick)", got)
	}
}

func TestPollOnce_MalformedRecordSkippedSiblingsSurvive(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeySpot:    `{not json`,
		models.KeyRegimeA: `{"ts":1,"label":"calm","score":0.2}`,
	}}
	p, bc, _ := newTestPoller(store)

	p.PollOnce(context.Background())

	if len(bc.byChannel(models.ChannelSpot)) != 0 {
		t.Error("malformed spot record must not broadcast")
	}
	if len(bc.byChannel(models.ChannelRegimeA)) != 1 {
		t.Error("sibling regime record should still be broadcast")
	}
}

func TestPollOnce_HeatmapRefetchRespectsVersionMonotonicity(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeyHeatmap("SPX"): `{"ts":1,"version":5,"tiles":{"a":{"gex":1,"oi":0}}}`,
	}}
	p, bc, cache := newTestPoller(store)

	p.PollOnce(context.Background())

	// The store rolls back to an older version; the cached state must win.
	store.values[models.KeyHeatmap("SPX")] = `{"ts":2,"version":3,"tiles":{}}`
	p.PollOnce(context.Background())

	hm, _ := cache.Get(models.ChannelHeatmap, "SPX").(*models.MHeatmapState)
	if hm == nil || hm.Version != 5 {
		t.Errorf("cached heatmap version = %+v, want 5", hm)
	}
	if got := len(bc.byChannel(models.ChannelHeatmap)); got != 1 {
		t.Errorf("heatmap broadcasts = %d, want 1", got)
	}
}

func TestPollOnce_CommentaryFallbackMergesBySlot(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		models.KeyCommentaryEpoch: `{"ts":10,"text":"daily summary"}`,
		models.KeyCommentaryEvent: `{"ts":20,"text":"vol spike"}`,
	}}
	p, bc, cache := newTestPoller(store)

	p.PollOnce(context.Background())

	merged, _ := cache.Get(models.ChannelCommentary, "").(*models.MCommentaryState)
	if merged == nil || merged.Epoch == nil || merged.Event == nil {
		t.Fatalf("merged commentary = %+v", merged)
	}
	if merged.Epoch.Text != "daily summary" || merged.Event.Text != "vol spike" {
		t.Errorf("slots = {%q, %q}", merged.Epoch.Text, merged.Event.Text)
	}
	if got := len(bc.byChannel(models.ChannelCommentary)); got != 1 {
		t.Errorf("commentary broadcasts = %d, want 1", got)
	}
}

func TestCandleTick_AggregatesAndSuppressesNoops(t *testing.T) {
	store := &fakeStore{
		trails: map[string][]models.MTrailSample{
			"SPX": {
				{Ts: 100, Value: 10},
				{Ts: 150, Value: 12},
				{Ts: 290, Value: 9},
				{Ts: 310, Value: 11},
			},
		},
	}
	p, bc, cache := newTestPoller(store)

	p.CandleTick(context.Background())

	candles := bc.byChannel(models.ChannelCandles)
	if len(candles) != 1 {
		t.Fatalf("candle broadcasts = %d, want 1", len(candles))
	}
	set, _ := cache.Get(models.ChannelCandles, "SPX").(*models.MCandleSet)
	if set == nil || len(set.Series["5m"]) != 2 {
		t.Fatalf("cached candle set = %+v, want two 5m buckets", set)
	}

	// Unchanged trail: no second broadcast.
	p.CandleTick(context.Background())
	if got := len(bc.byChannel(models.ChannelCandles)); got != 1 {
		t.Errorf("candle broadcasts after no-op tick = %d, want 1", got)
	}

	// New sample extends the trail: one more broadcast.
	store.trails["SPX"] = append(store.trails["SPX"], models.MTrailSample{Ts: 620, Value: 13})
	p.CandleTick(context.Background())
	if got := len(bc.byChannel(models.ChannelCandles)); got != 2 {
		t.Errorf("candle broadcasts after new sample = %d, want 2", got)
	}
}
