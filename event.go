package presencecount

import "time"

type Event struct {
	Timestamp  string                 `json:"timestamp"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
}

func NewSimpleEvent(name string) Event {
	return Event{now(), name, map[string]any{}}
}

func NewEventWithReason(name, reason string) Event {
	return Event{now(), name, map[string]any{"reason": reason}}
}

func NewEventWithParam(name string, p any) Event {
	return Event{now(), name, map[string]any{"param": p}}
}

func newCountEvent(s CountSnapshot) Event {
	name := OnlineCountEvent
	props := map[string]any{"param": s.Count, "stale": s.Stale}
	if s.Stale {
		name = OnlineCountStaleEvent
		props["reason"] = s.Reason
	}
	return Event{now(), name, props}
}

func now() string {
	return time.Now().Format(time.RFC3339Nano)
}
