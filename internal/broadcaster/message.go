package broadcaster

import "time"

type Kind string

const (
	KindConnected Kind = "CONNECTED"
	KindSnapshot  Kind = "SNAPSHOT"
	KindUpdate    Kind = "UPDATE"
	KindAlert     Kind = "ALERT"
)

type Message struct {
	Type      Kind      `json:"type"`
	Topic     string    `json:"topic,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotData maps every tracked topic to the current list of entity
// payloads cached for it.
type SnapshotData map[string][]map[string]any

// SnapshotProvider supplies the full current state on demand. The
// aggregator registers its snapshot function here so the registry can
// serve late-joining clients without depending on aggregator internals.
type SnapshotProvider func() SnapshotData
