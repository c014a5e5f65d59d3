package presencecount

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
)

const dialTimeout = 10 * time.Second

// WebsocketTransport opens channels on a remote hub served at <base>/realtime/<name>.
type WebsocketTransport struct {
	baseUrl string
	dialer  *websocket.Dialer
}

func NewWebsocketTransport(baseUrl string) *WebsocketTransport {
	return &WebsocketTransport{
		baseUrl: strings.TrimRight(toWebsocketScheme(baseUrl), "/"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
		},
	}
}

func toWebsocketScheme(baseUrl string) string {
	switch {
	case strings.HasPrefix(baseUrl, "http://"):
		return "ws://" + strings.TrimPrefix(baseUrl, "http://")
	case strings.HasPrefix(baseUrl, "https://"):
		return "wss://" + strings.TrimPrefix(baseUrl, "https://")
	default:
		return baseUrl
	}
}

func (t *WebsocketTransport) OpenChannel(name string) Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsChannel{
		url:       t.baseUrl + "/realtime/" + url.PathEscape(name),
		dialer:    t.dialer,
		ctx:       ctx,
		cancel:    cancel,
		listeners: map[EventKind][]func(){},
		state:     PresenceState{},
	}
}

func (t *WebsocketTransport) CloseChannel(ch Channel) error {
	wc, ok := ch.(*wsChannel)
	if !ok {
		return errors.Newf("not a websocket channel: %T", ch)
	}
	wc.close()
	return nil
}

type wsChannel struct {
	url    string
	dialer *websocket.Dialer
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	listeners  map[EventKind][]func()
	onStatus   func(SubscribeStatus, error)
	state      PresenceState
	subscribed bool
	closed     bool
}

func (c *wsChannel) On(kind EventKind, callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.listeners[kind] = append(c.listeners[kind], callback)
}

func (c *wsChannel) Subscribe(onStatus func(SubscribeStatus, error)) {
	c.mu.Lock()
	if c.closed || c.subscribed {
		c.mu.Unlock()
		return
	}
	c.subscribed = true
	c.onStatus = onStatus
	c.mu.Unlock()

	go c.connect()
}

func (c *wsChannel) Track(record PresenceRecord) error {
	return c.write(wireMessage{Type: wireTrack, Payload: &record})
}

func (c *wsChannel) PresenceState() PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *wsChannel) connect() {
	ctx, cancel := context.WithTimeout(c.ctx, dialTimeout)
	defer cancel()
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.reportStatus(StatusChannelError, errors.Wrapf(err, "could not connect to %s", c.url))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.write(wireMessage{Type: wireSubscribe}); err != nil {
		c.reportStatus(StatusChannelError, err)
		return
	}
	c.readLoop(conn)
}

func (c *wsChannel) readLoop(conn *websocket.Conn) {
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.reportStatus(StatusClosed, errors.Wrap(err, "realtime connection lost"))
			return
		}
		switch msg.Type {
		case wireStatus:
			var err error
			if msg.Reason != "" {
				err = errors.New(msg.Reason)
			}
			c.reportStatus(msg.Status, err)
		case wirePresence:
			c.deliver(msg.Event, msg.State)
		default:
			log.Printf("unknown realtime message: '%s'", msg.Type)
		}
	}
}

func (c *wsChannel) deliver(kind EventKind, state PresenceState) {
	if state == nil {
		state = PresenceState{}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	listeners := append([]func(){}, c.listeners[kind]...)
	c.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

func (c *wsChannel) reportStatus(status SubscribeStatus, err error) {
	c.mu.Lock()
	onStatus := c.onStatus
	closed := c.closed
	c.mu.Unlock()
	if closed || onStatus == nil {
		return
	}
	onStatus(status, err)
}

func (c *wsChannel) write(msg wireMessage) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	if conn == nil {
		return errors.New("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (c *wsChannel) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = nil
	c.onStatus = nil
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
}
