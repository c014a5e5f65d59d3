package presencecount

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRealtimeHub(t *testing.T) (*Hub, *MemoryTransport, string) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	local := NewMemoryTransport(hub)
	r := gin.New()
	r.GET("/realtime/:channel", func(c *gin.Context) {
		ServeRealtime(local, c.Param("channel"), c.Writer, c.Request)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, local, srv.URL
}

func TestWebsocketChannelTracksOnTheRemoteHub(t *testing.T) {
	hub, local, url := startRealtimeHub(t)
	transport := NewWebsocketTransport(url)

	remote := transport.OpenChannel(OnlineUsersChannel)
	events := listenAll(remote)
	subscribed(t, remote)
	require.Eventually(t, func() bool {
		return events.of(EventSync) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, remote.Track(PresenceRecord{UserID: "1", OnlineAt: time.Now()}))
	eventuallyCount(t, 1, func() int { return Recompute(hub.State(OnlineUsersChannel)) })

	other := local.OpenChannel(OnlineUsersChannel)
	subscribed(t, other)
	require.NoError(t, other.Track(PresenceRecord{UserID: "2", OnlineAt: time.Now()}))

	eventuallyCount(t, 2, countOf(remote))
	assert.GreaterOrEqual(t, events.of(EventJoin), 2)

	require.NoError(t, transport.CloseChannel(remote))
	eventuallyCount(t, 1, func() int { return Recompute(hub.State(OnlineUsersChannel)) })
	require.Eventually(t, func() bool {
		return hub.Members(OnlineUsersChannel) == 1
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, remote.Track(PresenceRecord{UserID: "1"}), ErrChannelClosed)
}

func TestWebsocketChannelReportsAnUnreachableHub(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ch := NewWebsocketTransport(url).OpenChannel(OnlineUsersChannel)
	r := &statusRecorder{}
	ch.Subscribe(r.record)

	require.Eventually(t, func() bool {
		return len(r.seen()) == 1
	}, 2*dialTimeout, 5*time.Millisecond)
	assert.Equal(t, StatusChannelError, r.seen()[0])
}

func TestWebsocketChannelReportsALostConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return
		}
		_ = conn.WriteJSON(wireMessage{Type: wireStatus, Status: StatusSubscribed})
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	ch := NewWebsocketTransport(srv.URL).OpenChannel(OnlineUsersChannel)
	r := &statusRecorder{}
	ch.Subscribe(r.record)

	require.Eventually(t, func() bool {
		return len(r.seen()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []SubscribeStatus{StatusSubscribed, StatusClosed}, r.seen())
}

func TestRealtimeEndpointIgnoresMalformedFrames(t *testing.T) {
	hub, _, url := startRealtimeHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(toWebsocketScheme(url)+"/realtime/"+OnlineUsersChannel, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wireMessage{Type: "bogus"}))
	require.NoError(t, conn.WriteJSON(wireMessage{Type: wireTrack}))
	require.NoError(t, conn.WriteJSON(wireMessage{Type: wireSubscribe}))

	var status wireMessage
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, wireStatus, status.Type)
	assert.Equal(t, StatusSubscribed, status.Status)

	var sync wireMessage
	require.NoError(t, conn.ReadJSON(&sync))
	assert.Equal(t, wirePresence, sync.Type)
	assert.Equal(t, EventSync, sync.Event)
	assert.Empty(t, sync.State)
	assert.Equal(t, 1, hub.Members(OnlineUsersChannel))
}

func TestWebsocketScheme(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080", toWebsocketScheme("http://localhost:8080"))
	assert.Equal(t, "wss://example.com", toWebsocketScheme("https://example.com"))
	assert.Equal(t, "ws://already", toWebsocketScheme("ws://already"))
}
