package state

import (
	"errors"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// DiffApplier
// -----------------------------------------------------------------------------
// Applies push-delivered partial updates onto cached state without a full
// refetch. Every function here is apply-or-discard: the input state is never
// mutated, so a rejected diff leaves the cache untouched.
// -----------------------------------------------------------------------------

var (
	// ErrDiffWithoutBase: a patch arrived before any full snapshot exists.
	// The diff is meaningless without a base and is dropped; the next full
	// fetch re-establishes the baseline.
	ErrDiffWithoutBase = errors.New("tile diff without base snapshot")

	// ErrStaleVersion: the diff's version precedes the cached version.
	ErrStaleVersion = errors.New("tile diff version older than cached state")
)

// -----------------------------------------------------------------------------

// ApplyTileDiff overlays changed tiles, deletes removed keys and replaces the
// ts/version/dte metadata, returning a new MHeatmapState. Versions are
// monotonically non-decreasing per symbol; a gap above the cached version is
// tolerated (the diff stream is authoritative), a version below is rejected.
func ApplyTileDiff(cur *models.MHeatmapState, diff models.MTileDiff) (*models.MHeatmapState, error) {
	if cur == nil {
		return nil, ErrDiffWithoutBase
	}
	if diff.Version < cur.Version {
		return nil, ErrStaleVersion
	}

	tiles := make(map[string]models.MTileValue, len(cur.Tiles)+len(diff.Changed))
	for key, val := range cur.Tiles {
		tiles[key] = val
	}
	for key, val := range diff.Changed {
		tiles[key] = val
	}
	for _, key := range diff.Removed {
		delete(tiles, key)
	}

	next := &models.MHeatmapState{
		Ts:            diff.Ts,
		Version:       diff.Version,
		Tiles:         tiles,
		DtesAvailable: diff.DtesAvailable,
	}
	return next, nil
}

// -----------------------------------------------------------------------------

// MergeCommentary replaces exactly one slot of the commentary state, leaving
// the other untouched, and returns the combined latest view.
func MergeCommentary(cur *models.MCommentaryState, msg models.MCommentaryMessage) *models.MCommentaryState {
	next := &models.MCommentaryState{}
	if cur != nil {
		next.Epoch = cur.Epoch
		next.Event = cur.Event
	}

	m := msg
	switch msg.Slot {
	case models.CommentarySlotEpoch:
		next.Epoch = &m
	case models.CommentarySlotEvent:
		next.Event = &m
	}
	return next
}

// -----------------------------------------------------------------------------

// MergeCommentarySlots reconciles store-polled slot values with the cached
// state. Each slot is last-write-wins by timestamp, so the poll fallback never
// clobbers a fresher pushed message.
func MergeCommentarySlots(cur *models.MCommentaryState, epoch, event *models.MCommentaryMessage) *models.MCommentaryState {
	next := &models.MCommentaryState{}
	if cur != nil {
		next.Epoch = cur.Epoch
		next.Event = cur.Event
	}

	if epoch != nil && (next.Epoch == nil || epoch.Ts >= next.Epoch.Ts) {
		next.Epoch = epoch
	}
	if event != nil && (next.Event == nil || event.Ts >= next.Event.Ts) {
		next.Event = event
	}
	return next
}

// -----------------------------------------------------------------------------

// WrapAlert builds the replay wrapper cached for the alerts channel. The
// event itself is broadcast verbatim; only this marker is retained.
func WrapAlert(ev models.MAlertEvent) *models.MAlertState {
	e := ev
	return &models.MAlertState{LastEvent: &e, Ts: ev.Ts}
}
