package presencecount

import (
	"log"
	"time"

	"github.com/Arceliar/phony"
	"github.com/cskr/pubsub/v2"
)

// CountSnapshot is the derived, non-authoritative online count.
// A stale snapshot keeps the last good count.
type CountSnapshot struct {
	Count     int       `json:"count"`
	Stale     bool      `json:"stale"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CountPublisher holds the latest count and notifies observers on the event bus.
type CountPublisher struct {
	phony.Inbox
	events   *pubsub.PubSub[string, Event]
	snapshot CountSnapshot
	closed   bool
}

func NewCountPublisher(events *pubsub.PubSub[string, Event]) *CountPublisher {
	return &CountPublisher{
		events: events,
	}
}

func (p *CountPublisher) Publish(count int) {
	p.Act(nil, func() {
		if p.closed {
			return
		}
		if p.snapshot.Count != count || p.snapshot.Stale {
			log.Println("online users:", count)
		}
		p.snapshot = CountSnapshot{Count: count, UpdatedAt: time.Now()}
		p.events.Pub(newCountEvent(p.snapshot), Topic)
	})
}

// MarkStale flags the current count as no longer being kept up to date.
func (p *CountPublisher) MarkStale(reason string) {
	p.Act(nil, func() {
		if p.closed {
			return
		}
		p.snapshot.Stale = true
		p.snapshot.Reason = reason
		p.snapshot.UpdatedAt = time.Now()
		p.events.Pub(newCountEvent(p.snapshot), Topic)
	})
}

func (p *CountPublisher) Read() int {
	return p.Snapshot().Count
}

func (p *CountPublisher) Snapshot() CountSnapshot {
	var res CountSnapshot
	phony.Block(p, func() {
		res = p.snapshot
	})
	return res
}

// Subscribe returns a channel receiving every count notification.
func (p *CountPublisher) Subscribe() chan Event {
	return p.events.Sub(Topic)
}

func (p *CountPublisher) Unsubscribe(ch chan Event) {
	p.events.Unsub(ch, Topic)
}

// Close stops all further notifications. The last snapshot stays readable.
func (p *CountPublisher) Close() {
	phony.Block(p, func() {
		p.closed = true
	})
}
