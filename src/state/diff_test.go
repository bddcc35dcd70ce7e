package state

import (
	"errors"
	"reflect"
	"testing"

	"market-relay/src/models"
)

func TestApplyTileDiff_WithoutBaseIsDropped(t *testing.T) {
	_, err := ApplyTileDiff(nil, models.MTileDiff{Symbol: "SPX", Version: 3})
	if !errors.Is(err, ErrDiffWithoutBase) {
		t.Errorf("err = %v, want ErrDiffWithoutBase", err)
	}
}

func TestApplyTileDiff_StaleVersionRejected(t *testing.T) {
	base := &models.MHeatmapState{Version: 10, Tiles: map[string]models.MTileValue{}}
	_, err := ApplyTileDiff(base, models.MTileDiff{Version: 9})
	if !errors.Is(err, ErrStaleVersion) {
		t.Errorf("err = %v, want ErrStaleVersion", err)
	}
}

func TestApplyTileDiff_OverlayAndRemove(t *testing.T) {
	base := &models.MHeatmapState{
		Ts:      100,
		Version: 1,
		Tiles: map[string]models.MTileValue{
			"5800:0": {Gex: 1},
			"5850:0": {Gex: 2},
		},
		DtesAvailable: []int{0},
	}

	next, err := ApplyTileDiff(base, models.MTileDiff{
		Ts:      200,
		Version: 2,
		Changed: map[string]models.MTileValue{
			"5850:0": {Gex: 5},
			"5900:0": {Gex: 7},
		},
		Removed:       []string{"5800:0"},
		DtesAvailable: []int{0, 1},
	})
	if err != nil {
		t.Fatalf("ApplyTileDiff: %v", err)
	}

	want := map[string]models.MTileValue{
		"5850:0": {Gex: 5},
		"5900:0": {Gex: 7},
	}
	if !reflect.DeepEqual(next.Tiles, want) {
		t.Errorf("tiles = %+v, want %+v", next.Tiles, want)
	}
	if next.Ts != 200 || next.Version != 2 {
		t.Errorf("metadata = ts:%d version:%d, want ts:200 version:2", next.Ts, next.Version)
	}
	if !reflect.DeepEqual(next.DtesAvailable, []int{0, 1}) {
		t.Errorf("dtes = %v, want [0 1]", next.DtesAvailable)
	}

	// Apply-or-discard: the base must be untouched.
	if len(base.Tiles) != 2 || base.Version != 1 {
		t.Errorf("base state was mutated: %+v", base)
	}
}

// Applying a sequence of diffs must converge to the same tile map as the
// fully materialized snapshot the diffs were derived from.
func TestApplyTileDiff_SequenceEquivalentToSnapshot(t *testing.T) {
	current := &models.MHeatmapState{
		Version: 1,
		Tiles: map[string]models.MTileValue{
			"a": {Gex: 1}, "b": {Gex: 2}, "c": {Gex: 3},
		},
	}

	diffs := []models.MTileDiff{
		{Version: 2, Changed: map[string]models.MTileValue{"b": {Gex: 20}}, Removed: []string{"a"}},
		{Version: 3, Changed: map[string]models.MTileValue{"d": {Gex: 4}}},
		{Version: 4, Changed: map[string]models.MTileValue{"c": {Gex: 30}, "e": {Gex: 5}}, Removed: []string{"d"}},
	}

	for _, diff := range diffs {
		next, err := ApplyTileDiff(current, diff)
		if err != nil {
			t.Fatalf("ApplyTileDiff v%d: %v", diff.Version, err)
		}
		current = next
	}

	snapshot := map[string]models.MTileValue{
		"b": {Gex: 20}, "c": {Gex: 30}, "e": {Gex: 5},
	}
	if !reflect.DeepEqual(current.Tiles, snapshot) {
		t.Errorf("tiles after diff sequence = %+v, want %+v", current.Tiles, snapshot)
	}
	if current.Version != 4 {
		t.Errorf("version = %d, want 4", current.Version)
	}
}

func TestMergeCommentary_SlotsAreIndependent(t *testing.T) {
	var cur *models.MCommentaryState

	cur = MergeCommentary(cur, models.MCommentaryMessage{Slot: "event", Ts: 1, Text: "A"})
	if cur.Event == nil || cur.Event.Text != "A" || cur.Epoch != nil {
		t.Fatalf("after event(A): %+v", cur)
	}

	cur = MergeCommentary(cur, models.MCommentaryMessage{Slot: "epoch", Ts: 2, Text: "B"})
	if cur.Epoch == nil || cur.Epoch.Text != "B" {
		t.Fatalf("after epoch(B): %+v", cur)
	}
	if cur.Event == nil || cur.Event.Text != "A" {
		t.Fatalf("epoch update clobbered event slot: %+v", cur)
	}

	cur = MergeCommentary(cur, models.MCommentaryMessage{Slot: "event", Ts: 3, Text: "C"})
	if cur.Epoch.Text != "B" || cur.Event.Text != "C" {
		t.Errorf("final state = {epoch:%q, event:%q}, want {B, C}", cur.Epoch.Text, cur.Event.Text)
	}
}

func TestMergeCommentarySlots_OlderPollNeverClobbersPush(t *testing.T) {
	cur := &models.MCommentaryState{
		Event: &models.MCommentaryMessage{Slot: "event", Ts: 100, Text: "fresh"},
	}

	stale := &models.MCommentaryMessage{Slot: "event", Ts: 50, Text: "stale"}
	epoch := &models.MCommentaryMessage{Slot: "epoch", Ts: 80, Text: "summary"}

	merged := MergeCommentarySlots(cur, epoch, stale)

	if merged.Event.Text != "fresh" {
		t.Errorf("stale polled event replaced fresher pushed one: %+v", merged.Event)
	}
	if merged.Epoch == nil || merged.Epoch.Text != "summary" {
		t.Errorf("epoch slot not filled: %+v", merged.Epoch)
	}
}

func TestWrapAlert(t *testing.T) {
	ev := models.MAlertEvent{Subtype: "flow", Ts: 42, Payload: []byte(`{"x":1}`)}
	wrapped := WrapAlert(ev)

	if wrapped.Ts != 42 || wrapped.LastEvent == nil || wrapped.LastEvent.Subtype != "flow" {
		t.Errorf("WrapAlert = %+v", wrapped)
	}
}
