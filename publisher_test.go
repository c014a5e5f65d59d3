package presencecount

import (
	"testing"
	"time"

	"github.com/cskr/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) *CountPublisher {
	events := pubsub.New[string, Event](pubSubChannelCapacity)
	t.Cleanup(events.Shutdown)
	return NewCountPublisher(events)
}

func receiveEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

func TestPublisherStartsAtZero(t *testing.T) {
	p := newTestPublisher(t)
	assert.Equal(t, 0, p.Read())
	assert.False(t, p.Snapshot().Stale)
}

func TestPublisherNotifiesObserversInOrder(t *testing.T) {
	p := newTestPublisher(t)
	observer := p.Subscribe()
	defer p.Unsubscribe(observer)

	p.Publish(1)
	p.Publish(3)
	p.Publish(3)

	for _, expected := range []int{1, 3, 3} {
		e := receiveEvent(t, observer)
		assert.Equal(t, OnlineCountEvent, e.Name)
		assert.Equal(t, expected, e.Properties["param"])
	}
	assert.Equal(t, 3, p.Read())
}

func TestPublisherStaleKeepsLastGoodCount(t *testing.T) {
	p := newTestPublisher(t)
	observer := p.Subscribe()
	defer p.Unsubscribe(observer)

	p.Publish(5)
	p.MarkStale("subscription CLOSED")

	receiveEvent(t, observer)
	e := receiveEvent(t, observer)
	assert.Equal(t, OnlineCountStaleEvent, e.Name)
	assert.Equal(t, 5, e.Properties["param"])
	assert.Equal(t, "subscription CLOSED", e.Properties["reason"])

	s := p.Snapshot()
	assert.Equal(t, 5, s.Count)
	assert.True(t, s.Stale)

	p.Publish(0)
	s = p.Snapshot()
	assert.Equal(t, 0, s.Count)
	assert.False(t, s.Stale)
	assert.Empty(t, s.Reason)
}

func TestClosedPublisherNoLongerNotifies(t *testing.T) {
	p := newTestPublisher(t)
	observer := p.Subscribe()
	defer p.Unsubscribe(observer)

	p.Publish(2)
	receiveEvent(t, observer)
	p.Close()

	p.Publish(9)
	p.MarkStale("late")

	require.Equal(t, 2, p.Read())
	select {
	case e := <-observer:
		t.Fatalf("unexpected event after close: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
