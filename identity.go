package presencecount

import (
	"context"
	"log"

	"github.com/Arceliar/phony"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type AuthSession struct {
	User *User
}

type AuthEvent string

const (
	InitialSession AuthEvent = "INITIAL_SESSION"
	SignedIn       AuthEvent = "SIGNED_IN"
	SignedOut      AuthEvent = "SIGNED_OUT"
	TokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	UserUpdated    AuthEvent = "USER_UPDATED"
)

type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a cancel function to a Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() {
	f()
}

// IdentityProvider is the authentication collaborator.
// A nil user without an error means nobody is logged in.
type IdentityProvider interface {
	GetCurrentUser(ctx context.Context) (*User, error)
	OnAuthStateChange(callback func(event AuthEvent, session *AuthSession)) Subscription
}

func identityOf(session *AuthSession) string {
	if session == nil || session.User == nil {
		return ""
	}
	return session.User.ID
}

// IdentityWatcher emits the local user id once on start and again on every
// change of it. Events that keep the same user (e.g. token refresh) are dropped.
type IdentityWatcher struct {
	phony.Inbox
	provider     IdentityProvider
	onChange     func(identity string)
	subscription Subscription
	started      bool
	initialized  bool
	stopped      bool
	current      string
	pending      *string
}

func NewIdentityWatcher(provider IdentityProvider) *IdentityWatcher {
	return &IdentityWatcher{
		provider: provider,
	}
}

// Start subscribes to auth changes, looks up the current user and emits it.
// It returns once the initial identity has been handed to onChange.
func (w *IdentityWatcher) Start(ctx context.Context, onChange func(identity string)) {
	var ok bool
	phony.Block(w, func() {
		if w.started || w.stopped {
			return
		}
		w.started = true
		w.onChange = onChange
		w.subscription = w.provider.OnAuthStateChange(w.onAuthStateChange)
		ok = true
	})
	if !ok {
		return
	}

	identity := w.lookupCurrent(ctx)

	phony.Block(w, func() {
		w.emitInitialSync(identity)
	})
}

// Stop cancels the auth subscription. Safe to call more than once.
func (w *IdentityWatcher) Stop() {
	phony.Block(w, func() {
		if w.stopped {
			return
		}
		w.stopped = true
		if w.subscription != nil {
			w.subscription.Unsubscribe()
			w.subscription = nil
		}
	})
}

func (w *IdentityWatcher) Current() string {
	var res string
	phony.Block(w, func() {
		res = w.current
	})
	return res
}

func (w *IdentityWatcher) lookupCurrent(ctx context.Context) string {
	user, err := w.provider.GetCurrentUser(ctx)
	if err != nil {
		log.Printf("continuing anonymously: %v", err)
		return ""
	}
	if user == nil {
		return ""
	}
	return user.ID
}

func (w *IdentityWatcher) onAuthStateChange(event AuthEvent, session *AuthSession) {
	identity := identityOf(session)
	w.Act(nil, func() {
		if w.stopped {
			return
		}
		if !w.initialized {
			w.pending = &identity
			return
		}
		if identity == w.current {
			return
		}
		log.Printf("identity changed (%s): %s -> %s", event, describeIdentity(w.current), describeIdentity(identity))
		w.emitSync(identity)
	})
}

func (w *IdentityWatcher) emitInitialSync(identity string) {
	if w.stopped {
		return
	}
	w.initialized = true
	w.emitSync(identity)
	if w.pending != nil && *w.pending != identity {
		w.emitSync(*w.pending)
	}
	w.pending = nil
}

func (w *IdentityWatcher) emitSync(identity string) {
	w.current = identity
	w.onChange(identity)
}
