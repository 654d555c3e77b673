package handler

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ControlMessage is the envelope for everything a client sends over its
// WebSocket: an action plus the topics it applies to.
type ControlMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
}
