package presencecount

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

const defaultIdentityPollInterval = 5 * time.Second

// HTTPIdentityProvider asks an auth service for the current user and polls it
// to notice logins and logouts.
type HTTPIdentityProvider struct {
	client       *resty.Client
	pollInterval time.Duration
}

func NewHTTPIdentityProvider(baseUrl string, pollInterval time.Duration) *HTTPIdentityProvider {
	client := resty.New().
		SetBaseURL(baseUrl).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)

	if pollInterval <= 0 {
		pollInterval = defaultIdentityPollInterval
	}

	return &HTTPIdentityProvider{
		client:       client,
		pollInterval: pollInterval,
	}
}

func (p *HTTPIdentityProvider) GetCurrentUser(ctx context.Context) (*User, error) {
	user := User{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&user).
		Get("/user")

	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "could not fetch the current user"), ErrIdentityLookup)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		if user.ID == "" {
			return nil, nil
		}
		return &user, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, nil
	default:
		return nil, errors.Wrapf(ErrIdentityLookup, "identity service returned [%d]: %s", resp.StatusCode(), resp.String())
	}
}

// OnAuthStateChange polls until the subscription is cancelled.
// The first successful poll is reported as INITIAL_SESSION.
func (p *HTTPIdentityProvider) OnAuthStateChange(callback func(AuthEvent, *AuthSession)) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	go p.pollForever(ctx, callback)
	return SubscriptionFunc(cancel)
}

func (p *HTTPIdentityProvider) pollForever(ctx context.Context, callback func(AuthEvent, *AuthSession)) {
	var last *User
	first := true
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		user, err := p.GetCurrentUser(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Printf("identity poll failed: %v", err)
		default:
			if event, changed := authTransition(first, last, user); changed {
				callback(event, sessionOf(user))
			}
			last = user
			first = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func authTransition(first bool, before, after *User) (AuthEvent, bool) {
	switch {
	case first:
		return InitialSession, true
	case before == nil && after == nil:
		return "", false
	case before == nil:
		return SignedIn, true
	case after == nil:
		return SignedOut, true
	case before.ID != after.ID:
		return UserUpdated, true
	default:
		return "", false
	}
}

func sessionOf(user *User) *AuthSession {
	if user == nil {
		return nil
	}
	return &AuthSession{User: user}
}
