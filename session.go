package presencecount

type SessionStatus int

const (
	Idle SessionStatus = iota
	Connecting
	Subscribed
	TornDown
)

func (s SessionStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case TornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// ChannelSession is the single subscription owned by a PresenceChannelManager.
type ChannelSession struct {
	generation uint64
	identity   string
	channel    Channel
	status     SessionStatus
}

// SessionInfo is a read-only copy of the current session.
type SessionInfo struct {
	Generation uint64
	Identity   string
	Status     SessionStatus
}

func (s *ChannelSession) info() SessionInfo {
	if s == nil {
		return SessionInfo{Status: Idle}
	}
	return SessionInfo{
		Generation: s.generation,
		Identity:   s.identity,
		Status:     s.status,
	}
}
