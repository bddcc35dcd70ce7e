package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

// MAlertEvent is one pushed alert, relayed verbatim. Subtype is the topic
// suffix it arrived on and doubles as the wire event name.
type MAlertEvent struct {
	Subtype string          `json:"subtype"`
	Ts      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// -----------------------------------------------------------------------------

// MAlertState is the lightweight wrapper retained in cache for replay.
type MAlertState struct {
	LastEvent *MAlertEvent `json:"last_event"`
	Ts        int64        `json:"ts"`
}
