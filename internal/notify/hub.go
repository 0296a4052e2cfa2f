package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var ErrHubClosed = errors.New("notification hub closed")

// Hub pushes settlement notifications to the websocket connections of their
// owner. Nothing is stored: an owner with no open connection misses the push
// and reads the state from the API instead.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool

	quit      chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[string]map[*client]struct{}),
		quit:     make(chan struct{}),
	}
}

// Emit queues n for every connection of n.OwnerID. Slow connections drop
// the message rather than block the caller. Alerts are never sent to users.
func (h *Hub) Emit(_ context.Context, n Notification) error {
	if n.Kind == KindAlert {
		return nil
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[n.OwnerID] {
		select {
		case c.send <- b:
		default:
			slog.Warn("websocket client too slow, dropping notification",
				"owner_id", n.OwnerID, "reference", n.Reference)
		}
	}

	return nil
}

// Subscribers reports the number of open connections for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[ownerID])
}

// Serve upgrades the request and streams notifications for ownerID until
// the peer disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, ownerID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	if !h.register(ownerID, c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()

		return ErrHubClosed
	}
	defer h.conns.Done()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(c)
	}()

	h.readLoop(c)

	// Unregister first so no Emit can send on the closed channel.
	h.unregister(ownerID, c)
	close(c.send)
	<-done

	return nil
}

// Close sends a going-away frame to every open connection and waits until
// their handlers return. Connections opened afterwards are refused.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.closeOnce.Do(func() { close(h.quit) })

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close hub: %w", ctx.Err())
	}
}

func (h *Hub) register(ownerID string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.conns.Add(1)

	set, ok := h.clients[ownerID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[ownerID] = set
	}

	set[c] = struct{}{}

	return true
}

func (h *Hub) unregister(ownerID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients[ownerID], c)
	if len(h.clients[ownerID]) == 0 {
		delete(h.clients, ownerID)
	}
}

// readLoop only services control frames; clients have nothing to say.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				return
			}
		case <-h.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))

			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
