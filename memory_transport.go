package presencecount

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// MemoryTransport opens channels on an in-process Hub.
type MemoryTransport struct {
	hub *Hub
}

func NewMemoryTransport(hub *Hub) *MemoryTransport {
	return &MemoryTransport{
		hub: hub,
	}
}

func (t *MemoryTransport) Hub() *Hub {
	return t.hub
}

func (t *MemoryTransport) OpenChannel(name string) Channel {
	return &memoryChannel{
		hub:       t.hub,
		topic:     name,
		key:       uuid.NewString(),
		listeners: map[EventKind][]func(){},
		state:     PresenceState{},
	}
}

func (t *MemoryTransport) CloseChannel(ch Channel) error {
	mc, ok := ch.(*memoryChannel)
	if !ok {
		return errors.Newf("not a memory channel: %T", ch)
	}
	mc.close()
	return nil
}

type memoryChannel struct {
	hub   *Hub
	topic string
	key   string

	mu         sync.Mutex
	listeners  map[EventKind][]func()
	onStatus   func(SubscribeStatus, error)
	state      PresenceState
	subscribed bool
	closed     bool
}

func (c *memoryChannel) On(kind EventKind, callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.listeners[kind] = append(c.listeners[kind], callback)
}

func (c *memoryChannel) Subscribe(onStatus func(SubscribeStatus, error)) {
	c.mu.Lock()
	if c.closed || c.subscribed {
		c.mu.Unlock()
		return
	}
	c.subscribed = true
	c.onStatus = onStatus
	c.mu.Unlock()

	c.hub.join(c.topic, c.key, c.deliver, func() {
		c.reportStatus(StatusSubscribed, nil)
	})
}

func (c *memoryChannel) Track(record PresenceRecord) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	c.hub.track(c.topic, c.key, record)
	return nil
}

func (c *memoryChannel) PresenceState() PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *memoryChannel) deliver(kind EventKind, state PresenceState) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	listeners := append([]func(){}, c.listeners[kind]...)
	c.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

func (c *memoryChannel) reportStatus(status SubscribeStatus, err error) {
	c.mu.Lock()
	onStatus := c.onStatus
	closed := c.closed
	c.mu.Unlock()
	if closed || onStatus == nil {
		return
	}
	onStatus(status, err)
}

func (c *memoryChannel) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = nil
	c.onStatus = nil
	joined := c.subscribed
	c.mu.Unlock()

	if joined {
		c.hub.leave(c.topic, c.key)
	}
}
