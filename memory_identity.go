package presencecount

import (
	"context"

	"github.com/Arceliar/phony"
)

// MemoryIdentityProvider is an identity provider driven by explicit
// Login/Logout calls, e.g. from the dashboard's auth endpoints.
type MemoryIdentityProvider struct {
	phony.Inbox
	user         *User
	lookupErr    error
	listeners    map[uint64]func(AuthEvent, *AuthSession)
	nextListener uint64
}

func NewMemoryIdentityProvider() *MemoryIdentityProvider {
	return &MemoryIdentityProvider{
		listeners: map[uint64]func(AuthEvent, *AuthSession){},
	}
}

func (p *MemoryIdentityProvider) GetCurrentUser(_ context.Context) (*User, error) {
	var user *User
	var err error
	phony.Block(p, func() {
		err = p.lookupErr
		if p.user != nil {
			u := *p.user
			user = &u
		}
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *MemoryIdentityProvider) OnAuthStateChange(callback func(AuthEvent, *AuthSession)) Subscription {
	var id uint64
	phony.Block(p, func() {
		p.nextListener++
		id = p.nextListener
		p.listeners[id] = callback
	})
	return SubscriptionFunc(func() {
		phony.Block(p, func() {
			delete(p.listeners, id)
		})
	})
}

func (p *MemoryIdentityProvider) Login(userID string) {
	phony.Block(p, func() {
		event := SignedIn
		if p.user != nil && p.user.ID == userID {
			event = TokenRefreshed
		}
		p.user = &User{ID: userID}
		p.notifySync(event)
	})
}

func (p *MemoryIdentityProvider) Logout() {
	phony.Block(p, func() {
		p.user = nil
		p.notifySync(SignedOut)
	})
}

// RefreshToken re-announces the current session without changing the user.
func (p *MemoryIdentityProvider) RefreshToken() {
	phony.Block(p, func() {
		p.notifySync(TokenRefreshed)
	})
}

// FailLookups makes GetCurrentUser fail with err until called with nil.
func (p *MemoryIdentityProvider) FailLookups(err error) {
	phony.Block(p, func() {
		p.lookupErr = err
	})
}

func (p *MemoryIdentityProvider) notifySync(event AuthEvent) {
	var session *AuthSession
	if p.user != nil {
		u := *p.user
		session = &AuthSession{User: &u}
	}
	for _, listener := range p.listeners {
		listener(event, session)
	}
}
