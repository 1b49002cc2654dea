package notification

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	broadcastBuffer = 64
	writeWait       = 5 * time.Second
)

// Hub fans notifications out to connected dashboard WebSocket clients.
// Broadcasts are queued and delivered by Run on its own goroutine, so
// a stalled client never blocks the code raising the notification.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

// NewHub creates an empty hub. Call Run on its own goroutine before
// broadcasting.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, broadcastBuffer),
	}
}

// Run delivers queued broadcasts to every connected client. Each write
// carries a deadline so a wedged connection is closed and dropped
// instead of stalling delivery to the rest.
func (h *Hub) Run() {
	for payload := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			client.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// HandleWS upgrades an HTTP request and registers the connection. A
// read pump per connection discards inbound frames and unregisters the
// client as soon as it closes or errors.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
	log.Printf("Dashboard client connected (%d active)", h.clientCount())

	go h.readPump(conn)
}

func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

// BroadcastJSON marshals v and queues it for delivery. The queue is
// bounded; when it is full the message is dropped rather than blocking
// the caller.
func (h *Hub) BroadcastJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal broadcast payload: %v", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		log.Printf("Broadcast queue full, dropping message")
	}
}

func (h *Hub) clientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}
