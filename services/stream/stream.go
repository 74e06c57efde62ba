package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"agromarket_backend/services/marketdata"

	"github.com/gorilla/websocket"
)

// Hub configuration
const (
	MaxClients    = 100
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	sendQueueSize = 64
)

// Message is the envelope broadcast to websocket clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans freshly collected price observations out to websocket clients.
// It satisfies marketdata.Publisher, so the collector feeds it directly.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	upgrader   websocket.Upgrader

	// clientCount mirrors len(clients); the map belongs to the run()
	// goroutine, the counter is safe to read from HTTP handlers
	clientCount atomic.Int32
}

// NewHub creates the hub and starts its dispatch loop
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go h.run()
	return h
}

// PublishPrices broadcasts a batch of observations to all connected clients
func (h *Hub) PublishPrices(observations []marketdata.Observation) {
	msg := Message{
		Type: "prices",
		Data: observations,
		Time: time.Now().Format(time.RFC3339),
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Println("Price broadcast queue full, dropping update")
	}
}

// Shutdown closes all client connections and stops the dispatch loop
func (h *Hub) Shutdown() {
	close(h.shutdown)
}

// ClientCount returns the number of connected stream clients
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// HandleConnection upgrades an HTTP request to a websocket subscription
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= MaxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.clientCount.Store(int32(len(h.clients)))
			log.Printf("WebSocket client connected (%d total)", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.clientCount.Store(int32(len(h.clients)))
				log.Printf("WebSocket client disconnected (%d total)", len(h.clients))
			}

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error encoding broadcast message: %v", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow client; drop it rather than block the hub
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.clientCount.Store(int32(len(h.clients)))

		case <-h.shutdown:
			for c := range h.clients {
				close(c.send)
				c.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.clientCount.Store(0)
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		// Clients only listen; discard anything they send
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
