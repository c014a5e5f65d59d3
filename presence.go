package presencecount

import (
	"context"
	"log"

	"github.com/cskr/pubsub/v2"
)

// Presence wires identity changes into the channel manager and exposes the count.
type Presence struct {
	watcher   *IdentityWatcher
	manager   *PresenceChannelManager
	publisher *CountPublisher
}

func NewPresence(events *pubsub.PubSub[string, Event], transport Transport, identity IdentityProvider) *Presence {
	publisher := NewCountPublisher(events)
	return NewPresenceWithManager(identity, NewPresenceChannelManager(transport, publisher), publisher)
}

func NewPresenceWithManager(identity IdentityProvider, manager *PresenceChannelManager, publisher *CountPublisher) *Presence {
	return &Presence{
		watcher:   NewIdentityWatcher(identity),
		manager:   manager,
		publisher: publisher,
	}
}

// Start joins the presence channel as the current user and follows identity changes.
func (p *Presence) Start(ctx context.Context) {
	p.watcher.Start(ctx, p.manager.Setup)
}

// Stop releases the identity subscription and the channel. The count stays readable.
func (p *Presence) Stop() {
	p.watcher.Stop()
	p.manager.Stop()
	p.publisher.Close()
	log.Println("presence stopped")
}

func (p *Presence) Publisher() *CountPublisher {
	return p.publisher
}

func (p *Presence) Session() SessionInfo {
	return p.manager.Session()
}

func (p *Presence) Identity() string {
	return p.watcher.Current()
}
