// Package websocket provides the browser-facing WebSocket fan-out for the
// orchestration core: task progress (internal/taskbus, forwarded by
// internal/httpapi) and container status frames (internal/events) reach
// connected clients through this hub, scoped per Project to keep one
// tenant's stream from leaking into another's. Agent turn events do not
// pass through it; internal/httpapi streams them over SSE.
//
// Architecture:
//   - Hub: tracks registered clients and routes broadcasts
//   - Client: one browser WebSocket connection, with a buffered send queue
//   - readPump/writePump: per-client goroutines moving bytes to/from the conn
//
// Message flow:
//  1. A caller hands an upgraded browser connection to ServeClient (no
//     route in internal/httpapi does this)
//  2. Client registers with the Hub
//  3. internal/httpapi (taskbus events) and internal/events (status
//     frames) call BroadcastToProject
//  4. Hub fans the message out to every Client scoped to that Project
//  5. Client.writePump delivers it to the browser
package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tesslate/studio-orchestrator/internal/logger"
)

// Hub maintains active WebSocket connections and routes project-scoped
// broadcasts to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan projectMessage
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

type projectMessage struct {
	projectID string
	payload   []byte
}

// Client represents one browser WebSocket connection subscribed to a
// single Project's event stream.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id        string
	projectID string
	userID    string
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan projectMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run drives the hub's registration and broadcast loop. Call it once, in
// its own goroutine, for the lifetime of the process.
func (h *Hub) Run() {
	log := logger.WebSocket()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debug().Str("client_id", client.id).Str("project_id", client.projectID).Int("total", len(h.clients)).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			var stale []*Client
			for client := range h.clients {
				if client.projectID != msg.projectID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()

			if len(stale) > 0 {
				h.mu.Lock()
				for _, client := range stale {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// BroadcastToProject sends message to every client currently watching
// projectID.
func (h *Hub) BroadcastToProject(projectID string, message []byte) {
	h.broadcast <- projectMessage{projectID: projectID, payload: message}
}

// ClientCount returns the number of connected clients across all projects.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	log := logger.WebSocket()
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("client_id", c.id).Msg("client connection closed")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

// ServeClient registers conn as a new client scoped to projectID and starts
// its read/write pumps. clientID is typically "{userID}-{chatID}".
func (h *Hub) ServeClient(conn *websocket.Conn, clientID, projectID, userID string) {
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		id:        clientID,
		projectID: projectID,
		userID:    userID,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
