package ingest

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/telemetry"
)

// EventDataRefreshed is sent when the source relation changed.
const EventDataRefreshed = "data_refreshed"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// no Origin header means a non-browser client
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// RefreshEvent tells dashboard clients to re-render.
type RefreshEvent struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Stats     *storage.Stats `json:"stats,omitempty"`
}

// RefreshHub fans refresh events out to connected websocket clients.
type RefreshHub struct {
	// Connected dashboards
	clients map[*websocket.Conn]bool

	// Connections joining and leaving, handled by Run
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	// Encoded RefreshEvents waiting to be sent
	broadcast chan []byte

	mu sync.RWMutex
}

// NewRefreshHub creates a hub. Call Run to start it.
func NewRefreshHub() *RefreshHub {
	return &RefreshHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *RefreshHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Shutdown: drop every client
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Dashboard client connected (total: %d)", count)
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Dashboard client disconnected (total: %d)", count)
		case message := <-h.broadcast:
			h.mu.RLock()
			// Failed connections are unregistered once the read lock is released
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					log.Printf("WebSocket write error: %v", err)
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range failed {
				h.unregister <- conn
			}
		}
	}
}

// Notify queues a refresh event for every client. Events are dropped when
// the queue is full.
func (h *RefreshHub) Notify(stats *storage.Stats) error {
	message, err := json.Marshal(RefreshEvent{
		Type:      EventDataRefreshed,
		Timestamp: time.Now().Unix(),
		Stats:     stats,
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
		telemetry.RefreshBroadcast()
	default:
		// Never block the importer that triggered the event
		log.Printf("Refresh queue full, dropping event")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *RefreshHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasClients reports whether any client is connected.
func (h *RefreshHub) HasClients() bool { return h.ClientCount() > 0 }

// HandleWebSocket upgrades GET /v1/ws and keeps the connection alive until
// the client leaves.
func HandleWebSocket(hub *RefreshHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		hub.register <- conn

		// Stops the ping sender when the read loop exits
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Keepalive pings
		go func() {
			ticker := time.NewTicker(config.WSPingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		defer func() {
			cancel() // stop pinging
			hub.unregister <- conn
		}()

		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		// Every pong extends the read deadline
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
			return nil
		})

		// clients never send data; reading drives control frames and close detection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				return
			}
		}
	}
}
