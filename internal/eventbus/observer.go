package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/kaitd/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Observer exposes a Bus's event stream over a websocket for operator
// debugging (GET /debug/stream). It mirrors the teacher's Neural Bus
// observer: a registry of live clients fed by a Subscribe on the bus,
// each with its own write goroutine and ping/pong keepalive.
type Observer struct {
	bus     *Bus
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	log     *logging.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewObserver wires an Observer to bus; it subscribes to every topic and
// fans each event out to connected websocket clients.
func NewObserver(bus *Bus, log *logging.Logger) *Observer {
	o := &Observer{
		bus:     bus,
		clients: make(map[*wsClient]struct{}),
		log:     log.WithComponent("eventbus.observer"),
	}
	bus.Subscribe("", o.broadcast)
	return o
}

func (o *Observer) broadcast(ev Event) {
	payload, err := json.Marshal(struct {
		Topic   Topic `json:"topic"`
		Payload any   `json:"payload"`
	}{ev.Topic, ev.Payload})
	if err != nil {
		o.log.Warn("failed to marshal bus event for stream: %v", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for c := range o.clients {
		select {
		case c.send <- payload:
		default:
			// client too slow; drop this event for it.
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and streams bus events
// until the client disconnects.
func (o *Observer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}

	o.mu.Lock()
	o.clients[client] = struct{}{}
	o.mu.Unlock()

	go o.writePump(client)
	o.readPump(client)
}

func (o *Observer) readPump(c *wsClient) {
	defer o.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (o *Observer) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (o *Observer) unregister(c *wsClient) {
	o.mu.Lock()
	if _, ok := o.clients[c]; ok {
		delete(o.clients, c)
		close(c.send)
	}
	o.mu.Unlock()
}
