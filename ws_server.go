package presencecount

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// realtimeBridge connects one websocket client to a channel of the local transport.
type realtimeBridge struct {
	conn       *websocket.Conn
	transport  Transport
	channel    Channel
	send       chan wireMessage
	done       chan struct{}
	subscribed bool
	once       sync.Once
}

func ServeRealtime(transport Transport, name string, writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}

	bridge := &realtimeBridge{
		conn:      conn,
		transport: transport,
		channel:   transport.OpenChannel(name),
		send:      make(chan wireMessage, sendBufferSize),
		done:      make(chan struct{}),
	}
	go bridge.writePump()
	bridge.readPump()
}

func (b *realtimeBridge) readPump() {
	defer b.shutdown()
	b.conn.SetReadLimit(maxMessageSize)
	_ = b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error {
		return b.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg wireMessage
		if err := b.conn.ReadJSON(&msg); err != nil {
			// read error ends the loop so the deferred cleanup can fire.
			return
		}
		b.handle(msg)
	}
}

func (b *realtimeBridge) handle(msg wireMessage) {
	switch msg.Type {
	case wireSubscribe:
		b.subscribe()
	case wireTrack:
		if msg.Payload == nil {
			log.Println("track without payload ignored")
			return
		}
		if err := b.channel.Track(*msg.Payload); err != nil {
			log.Printf("track failed: %v", err)
		}
	default:
		log.Printf("unknown realtime message: '%s'", msg.Type)
	}
}

func (b *realtimeBridge) subscribe() {
	if b.subscribed {
		return
	}
	b.subscribed = true
	for _, kind := range []EventKind{EventSync, EventJoin, EventLeave} {
		b.channel.On(kind, func() {
			b.push(wireMessage{Type: wirePresence, Event: kind, State: b.channel.PresenceState()})
		})
	}
	b.channel.Subscribe(func(status SubscribeStatus, err error) {
		msg := wireMessage{Type: wireStatus, Status: status}
		if err != nil {
			msg.Reason = err.Error()
		}
		b.push(msg)
	})
}

func (b *realtimeBridge) push(msg wireMessage) {
	select {
	case <-b.done:
	case b.send <- msg:
	default:
		// presence frames carry the full state, the next one heals a drop
		log.Printf("realtime client too slow, dropping '%s' frame", msg.Type)
	}
}

func (b *realtimeBridge) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		b.conn.Close()
	}()
	for {
		select {
		case <-b.done:
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = b.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-b.send:
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *realtimeBridge) shutdown() {
	b.once.Do(func() {
		close(b.done)
		if err := b.transport.CloseChannel(b.channel); err != nil {
			log.Printf("closing realtime channel: %v", err)
		}
	})
}
