package presencecount

import "github.com/cockroachdb/errors"

var (
	// ErrIdentityLookup is returned when the current user cannot be determined.
	ErrIdentityLookup = errors.New("identity lookup failed")
	// ErrSubscription marks a channel that never reached (or left) the subscribed state.
	ErrSubscription = errors.New("channel subscription failed")
	// ErrChannelClosed is returned by operations on a channel that has been torn down.
	ErrChannelClosed = errors.New("channel closed")
)
