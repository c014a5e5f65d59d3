package presencecount

// Frames exchanged with the /realtime websocket endpoint, one JSON object per message.
type wireMessage struct {
	Type    string          `json:"type"`
	Status  SubscribeStatus `json:"status,omitempty"`
	Event   EventKind       `json:"event,omitempty"`
	Payload *PresenceRecord `json:"payload,omitempty"`
	State   PresenceState   `json:"state,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

const (
	wireSubscribe = "subscribe"
	wireTrack     = "track"
	wireStatus    = "status"
	wirePresence  = "presence"
)
