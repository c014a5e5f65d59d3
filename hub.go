package presencecount

import (
	"log"

	"github.com/Arceliar/phony"
)

// Hub is an in-process presence server: it keeps the presence state of every
// topic and fans join/leave/sync notifications out to the connected channels.
// A joining member receives the full state as sync; track and leave changes are
// broadcast to every member as join and leave carrying the full state.
type Hub struct {
	phony.Inbox
	topics map[string]map[string]*hubMember
}

type hubMember struct {
	key     string
	records []PresenceRecord
	deliver func(kind EventKind, state PresenceState)
}

func NewHub() *Hub {
	return &Hub{
		topics: map[string]map[string]*hubMember{},
	}
}

// State returns a copy of the presence state of a topic.
func (h *Hub) State(topic string) PresenceState {
	var res PresenceState
	phony.Block(h, func() {
		res = h.stateSync(topic)
	})
	return res
}

// Members returns the number of channels joined to a topic, tracked or not.
func (h *Hub) Members(topic string) int {
	var res int
	phony.Block(h, func() {
		res = len(h.topics[topic])
	})
	return res
}

func (h *Hub) join(topic, key string, deliver func(EventKind, PresenceState), joined func()) {
	h.Act(nil, func() {
		members, ok := h.topics[topic]
		if !ok {
			members = map[string]*hubMember{}
			h.topics[topic] = members
		}
		member := &hubMember{key: key, deliver: deliver}
		members[key] = member
		joined()
		member.deliver(EventSync, h.stateSync(topic))
	})
}

func (h *Hub) track(topic, key string, record PresenceRecord) {
	h.Act(nil, func() {
		member, ok := h.topics[topic][key]
		if !ok {
			log.Printf("track ignored: %s is not a member of %s", key, topic)
			return
		}
		member.records = []PresenceRecord{record}
		h.broadcastSync(topic, EventJoin)
	})
}

func (h *Hub) leave(topic, key string) {
	h.Act(nil, func() {
		members := h.topics[topic]
		member, ok := members[key]
		if !ok {
			return
		}
		delete(members, key)
		if len(members) == 0 {
			delete(h.topics, topic)
			return
		}
		if len(member.records) > 0 {
			h.broadcastSync(topic, EventLeave)
		}
	})
}

func (h *Hub) broadcastSync(topic string, kind EventKind) {
	state := h.stateSync(topic)
	for _, member := range h.topics[topic] {
		member.deliver(kind, state)
	}
}

func (h *Hub) stateSync(topic string) PresenceState {
	res := PresenceState{}
	for key, member := range h.topics[topic] {
		if len(member.records) == 0 {
			continue
		}
		res[key] = append([]PresenceRecord(nil), member.records...)
	}
	return res
}
