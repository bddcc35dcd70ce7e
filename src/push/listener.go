package push

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/state"
	"market-relay/src/utils"
)

// -----------------------------------------------------------------------------
// PushListener
// -----------------------------------------------------------------------------
// Event-driven writer of the model cache: subscribes to the store's
// notification topics and routes partial updates through the diff applier.
// Malformed payloads are logged and dropped; a single diff is applied fully
// or not at all.
// -----------------------------------------------------------------------------

type Listener struct {
	Store       interfaces.IModelStore
	Cache       *state.ModelStateCache
	Broadcaster interfaces.IBroadcaster
	History     *utils.RingBuffer[models.MAlertEvent]
	Logger      *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewListener(
	store interfaces.IModelStore,
	cache *state.ModelStateCache,
	bc interfaces.IBroadcaster,
	history *utils.RingBuffer[models.MAlertEvent],
	log *logger.Logger,
) *Listener {
	return &Listener{
		Store:       store,
		Cache:       cache,
		Broadcaster: bc,
		History:     history,
		Logger:      log,
	}
}

// -----------------------------------------------------------------------------

// Start opens the pub/sub subscription and launches the routing loop.
func (l *Listener) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)

	patterns := []string{
		models.TopicHeatmapDiff + "*",
		models.TopicCommentary + "*",
		models.TopicAlerts + "*",
	}
	messages, err := l.Store.Subscribe(ctx, patterns)
	if err != nil {
		return err
	}

	l.wg.Add(1)
	go l.run(messages)

	l.Logger.Info("Push listener subscribed to %d topic patterns", len(patterns))
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels the subscription and waits for the loop to drain.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// -----------------------------------------------------------------------------

func (l *Listener) run(messages <-chan interfaces.StoreMessage) {
	defer l.wg.Done()
	for msg := range messages {
		l.Route(msg)
	}
}

// -----------------------------------------------------------------------------

// Route dispatches one notification by topic. Exported for tests.
func (l *Listener) Route(msg interfaces.StoreMessage) {
	switch {
	case strings.HasPrefix(msg.Topic, models.TopicHeatmapDiff):
		l.handleTileDiff(msg.Payload)
	case strings.HasPrefix(msg.Topic, models.TopicCommentary):
		l.handleCommentary(strings.TrimPrefix(msg.Topic, models.TopicCommentary), msg.Payload)
	case strings.HasPrefix(msg.Topic, models.TopicAlerts):
		l.handleAlert(strings.TrimPrefix(msg.Topic, models.TopicAlerts), msg.Payload)
	default:
		l.Logger.Debug("Ignoring message on unknown topic %s", msg.Topic)
	}
}

// -----------------------------------------------------------------------------

// handleTileDiff applies a tile patch onto the cached heatmap state. The
// reconstructed full state is cached for replay, but the diff itself is what
// gets broadcast, sparing subscribers the full surface on every update.
func (l *Listener) handleTileDiff(payload []byte) {
	var diff models.MTileDiff
	if err := json.Unmarshal(payload, &diff); err != nil {
		l.Logger.Warning("Dropping malformed tile diff: %v", err)
		return
	}
	if diff.Symbol == "" {
		l.Logger.Warning("Dropping tile diff without symbol")
		return
	}
	symbol := strings.ToUpper(diff.Symbol)

	l.Broadcaster.Commit(models.ChannelHeatmap, symbol, models.EventHeatmapDiff, func() (interface{}, bool) {
		changed := l.Cache.Apply(models.ChannelHeatmap, symbol, func(old interface{}) (interface{}, bool) {
			cur, _ := old.(*models.MHeatmapState)
			next, err := state.ApplyTileDiff(cur, diff)
			if err != nil {
				if errors.Is(err, state.ErrDiffWithoutBase) {
					// No base snapshot yet; wait for the next full fetch.
					l.Logger.Debug("Tile diff for %s dropped: %v", symbol, err)
				} else {
					l.Logger.Warning("Tile diff for %s rejected: %v", symbol, err)
				}
				return nil, false
			}
			if cur != nil && diff.Version > cur.Version+1 {
				l.Logger.Warning("Tile diff version gap for %s: %d -> %d", symbol, cur.Version, diff.Version)
			}
			return next, true
		})
		return diff, changed
	})
}

// -----------------------------------------------------------------------------

// handleCommentary merges one slot and broadcasts the full combined view,
// since the downstream contract for this channel is "always send the merged
// latest state."
func (l *Listener) handleCommentary(slot string, payload []byte) {
	var msg models.MCommentaryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		l.Logger.Warning("Dropping malformed commentary message: %v", err)
		return
	}
	if slot != models.CommentarySlotEpoch && slot != models.CommentarySlotEvent {
		l.Logger.Warning("Dropping commentary message on unknown slot %q", slot)
		return
	}
	msg.Slot = slot
	if msg.Ts == 0 {
		msg.Ts = time.Now().Unix()
	}

	l.Broadcaster.Commit(models.ChannelCommentary, "", models.EventCommentary, func() (interface{}, bool) {
		var merged *models.MCommentaryState
		l.Cache.Apply(models.ChannelCommentary, "", func(old interface{}) (interface{}, bool) {
			cur, _ := old.(*models.MCommentaryState)
			merged = state.MergeCommentary(cur, msg)
			return merged, true
		})
		return merged, true
	})
}

// -----------------------------------------------------------------------------

// handleAlert relays one alert verbatim. The cache only keeps a lightweight
// {lastEvent, ts} wrapper for replay; the recent-history ring backs the REST
// history endpoint.
func (l *Listener) handleAlert(subtype string, payload []byte) {
	if !json.Valid(payload) {
		l.Logger.Warning("Dropping malformed alert on subtype %q", subtype)
		return
	}

	event := models.MAlertEvent{
		Subtype: subtype,
		Ts:      time.Now().Unix(),
		Payload: json.RawMessage(append([]byte(nil), payload...)),
	}

	if l.History != nil {
		l.History.Append(event)
	}

	l.Broadcaster.Commit(models.ChannelAlerts, "", subtype, func() (interface{}, bool) {
		l.Cache.Set(models.ChannelAlerts, "", state.WrapAlert(event))
		return json.RawMessage(event.Payload), true
	})
}
