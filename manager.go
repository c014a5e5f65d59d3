package presencecount

import (
	"fmt"
	"log"
	"time"

	"github.com/Arceliar/phony"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

const (
	defaultRetryInitialInterval = 500 * time.Millisecond
	defaultRetryMaxInterval     = 30 * time.Second
)

// PresenceChannelManager owns the single presence channel subscription.
// Every transition runs on the actor; callbacks handed to the transport carry
// the generation of the session they were registered for and are ignored once
// that session is no longer current.
type PresenceChannelManager struct {
	phony.Inbox
	transport   Transport
	channelName string
	publisher   *CountPublisher
	session     *ChannelSession
	generation  uint64
	retry       backoff.BackOff
	retryTimer  *time.Timer
	stopped     bool
}

func NewPresenceChannelManager(transport Transport, publisher *CountPublisher) *PresenceChannelManager {
	return NewCustomPresenceChannelManager(transport, publisher, newRetryBackOff())
}

func NewCustomPresenceChannelManager(transport Transport, publisher *CountPublisher, retry backoff.BackOff) *PresenceChannelManager {
	return &PresenceChannelManager{
		transport:   transport,
		channelName: OnlineUsersChannel,
		publisher:   publisher,
		retry:       retry,
	}
}

func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Setup replaces the current session with one for identity.
// An empty identity subscribes without tracking.
func (m *PresenceChannelManager) Setup(identity string) {
	m.Act(nil, func() {
		m.retry.Reset()
		m.setupSync(identity)
	})
}

// Stop tears the session down. No callback mutates state afterwards.
func (m *PresenceChannelManager) Stop() {
	phony.Block(m, func() {
		if m.stopped {
			return
		}
		m.stopped = true
		m.stopRetrySync()
		m.teardownSync()
		log.Println("presence channel manager stopped")
	})
}

func (m *PresenceChannelManager) Session() SessionInfo {
	var res SessionInfo
	phony.Block(m, func() {
		res = m.session.info()
	})
	return res
}

func (m *PresenceChannelManager) setupSync(identity string) {
	if m.stopped {
		log.Println("setup ignored: manager stopped")
		return
	}
	m.stopRetrySync()
	m.teardownSync()

	m.generation++
	gen := m.generation
	ch := m.transport.OpenChannel(m.channelName)
	m.session = &ChannelSession{
		generation: gen,
		identity:   identity,
		channel:    ch,
		status:     Connecting,
	}
	for _, kind := range []EventKind{EventSync, EventJoin, EventLeave} {
		ch.On(kind, func() {
			m.onPresence(gen)
		})
	}
	ch.Subscribe(func(status SubscribeStatus, err error) {
		m.onStatus(gen, status, err)
	})
	log.Printf("joining %s as %s (session %d)", m.channelName, describeIdentity(identity), gen)
}

func (m *PresenceChannelManager) teardownSync() {
	if m.session == nil || m.session.status == TornDown {
		return
	}
	if err := m.transport.CloseChannel(m.session.channel); err != nil {
		log.Printf("closing session %d: %v", m.session.generation, err)
	}
	m.session.status = TornDown
	m.session.channel = nil
}

func (m *PresenceChannelManager) onPresence(gen uint64) {
	m.Act(nil, func() {
		if !m.isCurrentSync(gen) || m.session.status != Subscribed {
			return
		}
		m.recomputeSync()
	})
}

func (m *PresenceChannelManager) onStatus(gen uint64, status SubscribeStatus, err error) {
	m.Act(nil, func() {
		if !m.isCurrentSync(gen) {
			return
		}
		if status == StatusSubscribed {
			m.subscribedSync()
			return
		}
		m.failedSync(status, err)
	})
}

func (m *PresenceChannelManager) subscribedSync() {
	m.session.status = Subscribed
	m.retry.Reset()
	if identity := m.session.identity; identity != "" {
		err := m.session.channel.Track(PresenceRecord{
			UserID:   identity,
			OnlineAt: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("could not track %s: %v", identity, err)
		}
	}
	m.recomputeSync()
}

func (m *PresenceChannelManager) failedSync(status SubscribeStatus, cause error) {
	err := errors.Wrapf(ErrSubscription, "status %s", status)
	if cause != nil {
		err = errors.WithSecondaryError(err, cause)
	}
	log.Printf("session %d: %v", m.session.generation, err)
	m.publisher.MarkStale(fmt.Sprintf("subscription %s", status))
	identity := m.session.identity
	m.teardownSync()
	m.scheduleRetrySync(m.generation, identity)
}

func (m *PresenceChannelManager) scheduleRetrySync(gen uint64, identity string) {
	delay := m.retry.NextBackOff()
	if delay == backoff.Stop {
		log.Println("giving up re-subscribing, the online count stays stale")
		return
	}
	log.Printf("re-subscribing in %v", delay)
	m.retryTimer = time.AfterFunc(delay, func() {
		m.Act(nil, func() {
			m.retryTimer = nil
			if m.stopped || m.generation != gen {
				return
			}
			m.setupSync(identity)
		})
	})
}

func (m *PresenceChannelManager) stopRetrySync() {
	if m.retryTimer == nil {
		return
	}
	m.retryTimer.Stop()
	m.retryTimer = nil
}

func (m *PresenceChannelManager) isCurrentSync(gen uint64) bool {
	return !m.stopped &&
		m.session != nil &&
		m.session.generation == gen &&
		m.session.status != TornDown
}

func (m *PresenceChannelManager) recomputeSync() {
	m.publisher.Publish(Recompute(m.session.channel.PresenceState()))
}

func describeIdentity(identity string) string {
	if identity == "" {
		return "anonymous"
	}
	return identity
}
