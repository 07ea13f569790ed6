package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"lampd/internal/node"
)

// WSHub fans node events out to WebSocket clients. Run owns the client
// set; membership changes flow through the register and unregister
// channels.
type WSHub struct {
	clients map[*wsClient]struct{}
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan node.Event

	done     chan struct{}
	stopOnce sync.Once
}

// wsClient is one connected consumer. accept limits delivery to the
// listed event types; nil accepts everything.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	accept map[string]bool
}

func (c *wsClient) wants(eventType string) bool {
	return c.accept == nil || c.accept[eventType]
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan node.Event, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It returns after Stop, closing every
// remaining client.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.send)
			}
			h.clients = nil
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("ws client connected", "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Debug("ws client disconnected", "total", len(h.clients))

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// deliver fans one event out to every client whose filter matches.
// Clients with a full send queue are dropped.
func (h *WSHub) deliver(event node.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("ws marshal", "err", err)
		return
	}
	for c := range h.clients {
		if !c.wants(event.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("ws client evicted, send queue full")
		}
	}
}

// Stop shuts the hub down. Safe to call more than once.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues an event for delivery, dropping it when the hub is
// stopped or cannot keep up.
func (h *WSHub) Broadcast(event node.Event) {
	select {
	case <-h.done:
	case h.broadcast <- event:
	default:
		h.logger.Warn("ws broadcast queue full, dropping event")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	// Without configured origins nhooyr falls back to same-origin.

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		accept: parseEventFilter(r.URL.Query().Get("events")),
	}

	// Seed the new client with the current lamp state so it does not
	// have to wait for the next change. Queued before registration,
	// while this goroutine is the only writer to the channel.
	if client.wants(node.EventPropertyUpdate) {
		if snapshot, err := json.Marshal(node.Event{
			Type: node.EventPropertyUpdate,
			Data: s.adapter.Properties(),
		}); err == nil {
			client.send <- snapshot
		}
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go client.writeLoop()
	client.readLoop(s.wsHub)
}

// writeLoop drains the send queue into the connection. The hub closing
// the queue ends the loop and the connection with it.
func (c *wsClient) writeLoop() {
	for msg := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop discards inbound frames until the peer goes away, then
// unregisters the client. Reading is what surfaces pings and
// disconnects.
func (c *wsClient) readLoop(hub *WSHub) {
	defer func() {
		select {
		case hub.unregister <- c:
		case <-hub.done:
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-hub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// parseEventFilter turns the comma-separated events query parameter
// into an accept set. Empty means no filter.
func parseEventFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	accept := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			accept[t] = true
		}
	}
	if len(accept) == 0 {
		return nil
	}
	return accept
}
