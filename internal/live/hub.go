package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kickoff/internal/game"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

const (
	MessageSnapshot = "match_snapshot"
	MessageUpdate   = "match_update"
)

// Message is the envelope written to websocket subscribers.
type Message struct {
	Type    string    `json:"type"`
	MatchID uuid.UUID `json:"match_id"`
	Payload any       `json:"payload"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	room   uuid.UUID
	mu     sync.Mutex
	closed bool
}

// Hub fans match updates out to websocket subscribers grouped by match. It
// implements game.Publisher; a slow subscriber loses messages instead of
// stalling the simulation.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*client]struct{}
}

var _ game.Publisher = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[uuid.UUID]map[*client]struct{}),
	}
}

// Subscribers reports how many connections are watching a match.
func (h *Hub) Subscribers(matchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

func (h *Hub) Publish(_ context.Context, matchID uuid.UUID, update game.MatchUpdate) error {
	return h.broadcast(matchID, Message{Type: MessageUpdate, MatchID: matchID, Payload: update})
}

func (h *Hub) broadcast(matchID uuid.UUID, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[matchID]
	if !ok {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	for c := range room {
		if !c.offer(data) {
			h.log.Debug("subscriber lagging, update dropped", "match_id", matchID)
		}
	}
	return nil
}

// ServeWS upgrades the request and streams updates for matchID until the
// peer goes away. snapshot, when non-nil, is sent before any update.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, matchID uuid.UUID, snapshot *game.Match) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		room: matchID,
	}
	if snapshot != nil {
		data, err := json.Marshal(Message{Type: MessageSnapshot, MatchID: matchID, Payload: snapshot})
		if err != nil {
			_ = conn.Close()
			return err
		}
		c.send <- data
	}
	h.register(c)
	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.room] = room
	}
	room[c] = struct{}{}
	h.log.Debug("subscriber joined", "match_id", c.room, "subscribers", len(room))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	c.close()
	if len(room) == 0 {
		delete(h.rooms, c.room)
	}
	h.log.Debug("subscriber left", "match_id", c.room, "subscribers", len(room))
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		for c := range room {
			c.close()
		}
		delete(h.rooms, id)
	}
}

func (c *client) offer(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// readPump only exists to process control frames and notice disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("subscriber read failed", "match_id", c.room, "err", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.log.Debug("subscriber write failed", "match_id", c.room, "err", err)
				}
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
