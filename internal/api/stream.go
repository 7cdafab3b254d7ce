package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBufferSize = 64
	maxStreamConns = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream pushes day reports to websocket clients.
type Stream struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

type client struct {
	stream *Stream
	conn   *websocket.Conn
	send   chan []byte
}

type streamMsg struct {
	Type    string            `json:"type"`
	Payload *engine.DayReport `json:"payload"`
}

// NewStream creates a stream. Call Run before serving clients.
func NewStream() *Stream {
	return &Stream{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run handles client registration and broadcasting until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for c := range s.clients {
				close(c.send)
				delete(s.clients, c)
			}
			s.mu.Unlock()
			return

		case c := <-s.register:
			s.mu.Lock()
			s.clients[c] = true
			n := len(s.clients)
			s.mu.Unlock()
			slog.Info("stream: client connected", "clients", n)

		case c := <-s.unregister:
			s.mu.Lock()
			if s.clients[c] {
				delete(s.clients, c)
				close(c.send)
			}
			s.mu.Unlock()

		case msg := <-s.broadcast:
			s.mu.RLock()
			for c := range s.clients {
				select {
				case c.send <- msg:
				default:
					slog.Warn("stream: dropping report for slow client")
				}
			}
			s.mu.RUnlock()
		}
	}
}

// Publish queues a day report for every client. It never blocks the caller.
func (s *Stream) Publish(r *engine.DayReport) {
	data, err := json.Marshal(streamMsg{Type: "day", Payload: r})
	if err != nil {
		slog.Error("stream: encode report", "error", err)
		return
	}
	select {
	case s.broadcast <- data:
	case <-s.done:
	default:
		slog.Warn("stream: broadcast queue full, dropping report", "day", r.Day)
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleWS upgrades the request and registers the client.
func (s *Stream) HandleWS(w http.ResponseWriter, r *http.Request) {
	if s.Clients() >= maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("stream: upgrade failed", "error", err)
		return
	}

	c := &client{stream: s, conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case s.register <- c:
	case <-s.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for close and pong frames.
func (c *client) readPump() {
	defer func() {
		select {
		case c.stream.unregister <- c:
		case <-c.stream.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("stream: unexpected close", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
