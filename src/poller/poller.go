package poller

import (
	"context"
	"reflect"
	"sync"
	"time"

	"market-relay/src/analysis"
	"market-relay/src/config"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/state"
	"market-relay/src/utils"
)

// -----------------------------------------------------------------------------
// Poller
// -----------------------------------------------------------------------------
// Pull-side writer of the model cache. Two loops: a slow tick refreshing the
// channels without a push mechanism (spot, gex, regimes, commentary fallback,
// heatmap full refetch) and a faster tick rebuilding candles, which rescans a
// larger trail window and is comparatively expensive. Each tick is
// independent; fetch errors leave the previous cached state authoritative
// until the next successful tick.
// -----------------------------------------------------------------------------

type Poller struct {
	Config      *config.Config
	Store       interfaces.IModelStore
	Cache       *state.ModelStateCache
	Broadcaster interfaces.IBroadcaster
	Archive     interfaces.IArchive
	Scheduler   *utils.MarketScheduler
	Logger      *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	pollTicks   int
	candleTicks int
}

// -----------------------------------------------------------------------------

func NewPoller(
	cfg *config.Config,
	store interfaces.IModelStore,
	cache *state.ModelStateCache,
	bc interfaces.IBroadcaster,
	archive interfaces.IArchive,
	scheduler *utils.MarketScheduler,
	log *logger.Logger,
) *Poller {
	return &Poller{
		Config:      cfg,
		Store:       store,
		Cache:       cache,
		Broadcaster: bc,
		Archive:     archive,
		Scheduler:   scheduler,
		Logger:      log,
	}
}

// -----------------------------------------------------------------------------

// Start performs one synchronous full fetch (so the very first client is not
// served an empty cache) and launches both timer loops.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.Logger.Info("Performing initial full fetch...")
	p.PollOnce(ctx)
	p.CandleTick(ctx)
	p.Logger.Info("Initial fetch complete, starting poll loops (slow=%v candles=%v)",
		p.Config.PollInterval(), p.Config.CandleInterval())

	p.wg.Add(2)
	go p.runLoop(ctx, p.Config.PollInterval(), &p.pollTicks, p.PollOnce)
	go p.runLoop(ctx, p.Config.CandleInterval(), &p.candleTicks, p.CandleTick)
}

// -----------------------------------------------------------------------------

// Stop halts both timers. Used only at process shutdown.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// -----------------------------------------------------------------------------

func (p *Poller) runLoop(ctx context.Context, interval time.Duration, ticks *int, tick func(context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			*ticks++
			if p.skipIdleTick(*ticks) {
				continue
			}
			tick(ctx)
		}
	}
}

// -----------------------------------------------------------------------------

// skipIdleTick slows polling while every tracked market is closed: only one
// tick in Poll.IdleDivisor runs. The upstream model barely moves off-hours.
func (p *Poller) skipIdleTick(tick int) bool {
	divisor := p.Config.Poll.IdleDivisor
	if divisor <= 1 || p.Scheduler == nil {
		return false
	}
	if p.Scheduler.AnyMarketOpen() {
		return false
	}
	return tick%divisor != 0
}

// -----------------------------------------------------------------------------
// Slow tick
// -----------------------------------------------------------------------------

// PollOnce refreshes every pull-driven channel. Errors are logged per fetch
// and never abort the tick; individual malformed records are skipped without
// discarding the rest of the batch.
func (p *Poller) PollOnce(ctx context.Context) {
	p.pollSpot(ctx)
	p.pollRegime(ctx, models.ChannelRegimeA, models.KeyRegimeA, models.EventRegimeA)
	p.pollRegime(ctx, models.ChannelRegimeB, models.KeyRegimeB, models.EventRegimeB)
	p.pollCommentary(ctx)

	for _, symbol := range p.Config.Symbols {
		p.pollGex(ctx, symbol)
		p.pollHeatmap(ctx, symbol)
	}
}

// -----------------------------------------------------------------------------

func (p *Poller) pollSpot(ctx context.Context) {
	var spot models.MSpotState
	found, err := p.Store.GetJSON(ctx, models.KeySpot, &spot)
	if err != nil {
		p.Logger.Warning("Spot fetch failed: %v", err)
		return
	}
	if !found {
		return
	}

	changed := p.Broadcaster.Commit(models.ChannelSpot, "", models.EventSpot, func() (interface{}, bool) {
		return &spot, p.Cache.Set(models.ChannelSpot, "", &spot)
	})

	if changed && p.Archive != nil {
		if err := p.Archive.SaveSpot(spot); err != nil {
			p.Logger.Warning("Archive spot write failed: %v", err)
		}
	}
}

// -----------------------------------------------------------------------------

func (p *Poller) pollRegime(ctx context.Context, channel models.Channel, key, event string) {
	var regime models.MRegimeState
	found, err := p.Store.GetJSON(ctx, key, &regime)
	if err != nil {
		p.Logger.Warning("%s fetch failed: %v", channel, err)
		return
	}
	if !found {
		return
	}

	p.Broadcaster.Commit(channel, "", event, func() (interface{}, bool) {
		return &regime, p.Cache.Set(channel, "", &regime)
	})
}

// -----------------------------------------------------------------------------

// pollCommentary is the fallback pull for the commentary channel. Both slots
// are read and merged last-write-wins by timestamp, so a fresher pushed
// message is never clobbered by an older stored one.
func (p *Poller) pollCommentary(ctx context.Context) {
	var epoch, event *models.MCommentaryMessage

	var epochMsg models.MCommentaryMessage
	if found, err := p.Store.GetJSON(ctx, models.KeyCommentaryEpoch, &epochMsg); err != nil {
		p.Logger.Warning("Commentary epoch fetch failed: %v", err)
	} else if found {
		epochMsg.Slot = models.CommentarySlotEpoch
		epoch = &epochMsg
	}

	var eventMsg models.MCommentaryMessage
	if found, err := p.Store.GetJSON(ctx, models.KeyCommentaryEvent, &eventMsg); err != nil {
		p.Logger.Warning("Commentary event fetch failed: %v", err)
	} else if found {
		eventMsg.Slot = models.CommentarySlotEvent
		event = &eventMsg
	}

	if epoch == nil && event == nil {
		return
	}

	p.Broadcaster.Commit(models.ChannelCommentary, "", models.EventCommentary, func() (interface{}, bool) {
		var merged *models.MCommentaryState
		changed := p.Cache.Apply(models.ChannelCommentary, "", func(old interface{}) (interface{}, bool) {
			cur, _ := old.(*models.MCommentaryState)
			merged = state.MergeCommentarySlots(cur, epoch, event)
			return merged, !reflect.DeepEqual(cur, merged)
		})
		return merged, changed
	})
}

// -----------------------------------------------------------------------------

// pollGex fetches the two physically separate store records (calls, puts),
// merges them into one logical value per symbol, then runs the changed-check.
// A tick where only one half changed still produces exactly one broadcast.
func (p *Poller) pollGex(ctx context.Context, symbol string) {
	var calls, puts models.MGexHalf

	callsFound, err := p.Store.GetJSON(ctx, models.KeyGexCalls(symbol), &calls)
	if err != nil {
		p.Logger.Warning("Gex calls fetch failed for %s: %v", symbol, err)
		return
	}
	putsFound, err := p.Store.GetJSON(ctx, models.KeyGexPuts(symbol), &puts)
	if err != nil {
		p.Logger.Warning("Gex puts fetch failed for %s: %v", symbol, err)
		return
	}
	if !callsFound && !putsFound {
		return
	}

	merged := mergeGexHalves(symbol, calls, puts)

	p.Broadcaster.Commit(models.ChannelGex, symbol, models.EventGex, func() (interface{}, bool) {
		return merged, p.Cache.Set(models.ChannelGex, symbol, merged)
	})
}

// -----------------------------------------------------------------------------

// pollHeatmap is the full-snapshot refetch backing the diff stream: it
// bootstraps the base state diffs are applied against and heals any drift.
// Versions below the cached one are rejected to keep the version invariant.
func (p *Poller) pollHeatmap(ctx context.Context, symbol string) {
	var snapshot models.MHeatmapState
	found, err := p.Store.GetJSON(ctx, models.KeyHeatmap(symbol), &snapshot)
	if err != nil {
		p.Logger.Warning("Heatmap fetch failed for %s: %v", symbol, err)
		return
	}
	if !found {
		return
	}

	p.Broadcaster.Commit(models.ChannelHeatmap, symbol, models.EventHeatmap, func() (interface{}, bool) {
		changed := p.Cache.Apply(models.ChannelHeatmap, symbol, func(old interface{}) (interface{}, bool) {
			if cur, ok := old.(*models.MHeatmapState); ok {
				if snapshot.Version < cur.Version {
					p.Logger.Debug("Stale heatmap snapshot for %s (version %d < %d)", symbol, snapshot.Version, cur.Version)
					return nil, false
				}
				if heatmapEqual(cur, &snapshot) {
					return nil, false
				}
			}
			return &snapshot, true
		})
		return &snapshot, changed
	})
}

// -----------------------------------------------------------------------------
// Candle tick
// -----------------------------------------------------------------------------

// CandleTick rebuilds the candle series for every symbol from its trail.
// Change detection compares the full series, so an unchanged trail produces
// no broadcast.
func (p *Poller) CandleTick(ctx context.Context) {
	for _, symbol := range p.Config.Symbols {
		p.aggregateSymbol(ctx, symbol)
	}
}

// -----------------------------------------------------------------------------

func (p *Poller) aggregateSymbol(ctx context.Context, symbol string) {
	samples, err := p.Store.GetTrail(ctx, symbol, p.Config.CandleLookback())
	if err != nil {
		p.Logger.Warning("Trail fetch failed for %s: %v", symbol, err)
		return
	}
	if len(samples) == 0 {
		return
	}

	series := analysis.AggregateCandles(samples, p.Config.Candles.Resolutions)

	candleSet := &models.MCandleSet{
		Symbol: symbol,
		Ts:     samples[len(samples)-1].Ts,
		Series: series,
	}

	changed := p.Broadcaster.Commit(models.ChannelCandles, symbol, models.EventCandles, func() (interface{}, bool) {
		changed := p.Cache.Apply(models.ChannelCandles, symbol, func(old interface{}) (interface{}, bool) {
			if cur, ok := old.(*models.MCandleSet); ok && candleSetEqual(cur, candleSet) {
				return nil, false
			}
			return candleSet, true
		})
		return candleSet, changed
	})

	if changed && p.Archive != nil {
		for res, candles := range series {
			if err := p.Archive.SaveCandles(symbol, res, candles); err != nil {
				p.Logger.Warning("Archive candle write failed for %s/%s: %v", symbol, res, err)
			}
		}
	}
}
