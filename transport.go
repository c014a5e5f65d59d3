package presencecount

import "time"

// PresenceRecord is what a connection announces about itself after subscribing.
type PresenceRecord struct {
	UserID   string    `json:"user_id,omitempty"`
	OnlineAt time.Time `json:"online_at"`
}

// PresenceState maps a connection key to the records that connection tracks.
type PresenceState map[string][]PresenceRecord

func (s PresenceState) clone() PresenceState {
	res := make(PresenceState, len(s))
	for key, records := range s {
		res[key] = append([]PresenceRecord(nil), records...)
	}
	return res
}

type EventKind string

const (
	EventSync  EventKind = "sync"
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

type SubscribeStatus string

const (
	StatusSubscribed   SubscribeStatus = "SUBSCRIBED"
	StatusTimedOut     SubscribeStatus = "TIMED_OUT"
	StatusClosed       SubscribeStatus = "CLOSED"
	StatusChannelError SubscribeStatus = "CHANNEL_ERROR"
)

// Channel is one local subscription to a named presence topic.
// Callbacks may be invoked from any goroutine.
type Channel interface {
	On(kind EventKind, callback func())
	Subscribe(onStatus func(status SubscribeStatus, err error))
	Track(record PresenceRecord) error
	PresenceState() PresenceState
}

// Transport opens and releases channels. After CloseChannel returns,
// the channel invokes none of its callbacks anymore.
type Transport interface {
	OpenChannel(name string) Channel
	CloseChannel(ch Channel) error
}
