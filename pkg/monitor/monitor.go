// Package monitor is a tiny JSON stats broadcaster for an external
// debugger/dashboard: cache occupancy, the cache content key, the last
// invalidation, and the scheduler cycle. One hub goroutine owns the client set; clients
// register, unregister, and receive snapshots over channels.
package monitor

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stats is one snapshot of the state an attached dashboard cares about.
// CacheKey is the cache's live-set content digest: a dashboard compares
// consecutive keys to tell recompilation churn from a quiet cache without
// shipping the block set itself.
type Stats struct {
	CacheLive      int    `json:"cache_live"`
	CacheRetired   int    `json:"cache_retired"`
	CacheRestored  int    `json:"cache_restored"`
	CacheKey       uint64 `json:"cache_key"`
	LastInvalidate string `json:"last_invalidate,omitempty"`
	Cycle          uint64 `json:"cycle"`
}

// Source is anything that can produce a Stats snapshot on demand —
// typically a thin wrapper around *jit.Cache.Stats and ContentDigest plus
// the scheduler cycle, supplied by cmd/ndscore.
type Source func() Stats

// Hub broadcasts periodic Stats snapshots to every connected websocket
// client.
type Hub struct {
	source Source
	period time.Duration

	mu      sync.Mutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub builds a Hub that polls source every period for a new snapshot
// to broadcast.
func NewHub(source Source, period time.Duration) *Hub {
	return &Hub{
		source:     source,
		period:     period,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 8),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024 * 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns the http.Handler that upgrades an incoming connection to
// a websocket and registers it with the hub.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &client{hub: h, conn: conn, send: make(chan []byte, 16)}
		h.register <- c
		go c.writePump()
		go c.readPump()
	})
}

// Serve runs the hub's broadcast loop and periodic poller for the life of
// the process; there is no shutdown path beyond the caller exiting.
func (h *Hub) Serve(addr string) error {
	go h.pollLoop()
	go h.broadcastLoop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return http.Serve(ln, h.Handler())
}

func (h *Hub) pollLoop() {
	t := time.NewTicker(h.period)
	defer t.Stop()
	for range t.C {
		b, err := json.Marshal(h.source())
		if err != nil {
			continue
		}
		h.broadcast <- b
	}
}

func (h *Hub) broadcastLoop() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// client is one connected websocket dashboard with the usual read/write
// pump pair: the write pump drains send, the read pump only watches for
// disconnection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.conn.Close()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
