package presencecount

// OnlineUsersChannel is the shared presence topic every connection joins.
const OnlineUsersChannel = "online-users"

// topics of the in-process event bus
const (
	Topic = "events"
)

const (
	OnlineCountEvent      = "OnlineCount"
	OnlineCountStaleEvent = "OnlineCountStale"
	StartedListeningEvent = "StartedListening"
	RevisionEvent         = "Revision"
	LastSeenCountEvent    = "LastSeenCount"
)

// limits the amount of buffered events per observer
const pubSubChannelCapacity = 1024
