package models

// -----------------------------------------------------------------------------
// Commentary
// -----------------------------------------------------------------------------

// MCommentaryMessage is one synthesized narrative message. Slot is either
// "epoch" (periodic market summary) or "event" (reactive note).
type MCommentaryMessage struct {
	Slot string `json:"slot"`
	Ts   int64  `json:"ts"`
	Text string `json:"text"`
	Tone string `json:"tone,omitempty"`
}

// -----------------------------------------------------------------------------

// MCommentaryState is the combined latest view of both slots. The slots are
// updated independently, last-write-wins per slot; a new epoch message never
// overwrites a stored event message and vice versa.
type MCommentaryState struct {
	Epoch *MCommentaryMessage `json:"epoch"`
	Event *MCommentaryMessage `json:"event"`
}
