package monitor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomjod/forcemeter/internal/log"
)

// writeWait bounds a single write to a client. A client that stops reading is dropped once a write
// to it times out.
var writeWait = 5 * time.Second

// Message is the envelope sent over the WebSocket feed.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	lock sync.Mutex
}

func (c *client) send(b []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

type hub struct {
	lock    sync.RWMutex
	clients map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(conn *websocket.Conn) *client {
	c := &client{conn: conn}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	return c
}

func (h *hub) remove(c *client) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
	c.conn.Close()
}

func (h *hub) count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

func (h *hub) snapshot() []*client {
	h.lock.RLock()
	defer h.lock.RUnlock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// broadcast marshals msg once and writes it to every client. The client list is copied first so
// that a slow write never holds the hub lock. A client whose write fails is dropped.
func (h *hub) broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error("Error serializing %s message: %s", msg.Type, err)
		return
	}
	for _, c := range h.snapshot() {
		if err := c.send(b); err != nil {
			log.Warning("Dropping WebSocket client %s: %s", c.conn.RemoteAddr(), err)
			h.remove(c)
		}
	}
}

// closeAll closes every connection, which also aborts any write in progress.
func (h *hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.conn.Close()
	}
}
