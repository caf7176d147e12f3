package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"

	"github.com/pursuit-ops/isochroned/pkg/streaming"
)

const (
	sendChSize = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub delivers events to WebSocket subscribers grouped into one room per
// mission.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uint]map[*client]struct{}
	closed bool
	logger *slog.Logger
}

var _ Notifier = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[uint]map[*client]struct{}),
		logger: logger,
	}
}

// client is one subscriber connection with a single write goroutine.
type client struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// ServeHTTP upgrades the request and joins the room named by the
// missionID route variable.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	missionID, err := strconv.ParseUint(mux.Vars(r)["missionID"], 10, 64)
	if err != nil {
		http.Error(w, "invalid mission id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
	}
	if !h.join(uint(missionID), c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("Subscriber joined", "missionID", missionID)

	go h.writeLoop(c)
	h.readLoop(uint(missionID), c)
}

func (h *Hub) join(missionID uint, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	room, ok := h.rooms[missionID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[missionID] = room
	}
	room[c] = struct{}{}
	return true
}

func (h *Hub) leave(missionID uint, c *client) {
	h.mu.Lock()
	room := h.rooms[missionID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, missionID)
	}
	h.mu.Unlock()
	c.stop()
}

// readLoop discards inbound messages and keeps the pong deadline fresh.
// It returns when the peer goes away.
func (h *Hub) readLoop(missionID uint, c *client) {
	defer h.leave(missionID, c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", "missionID", missionID, "error", err)
			}
			return
		}
	}
}

// writeLoop drains sendCh to the connection. It is the only writer.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				h.logger.Warn("WebSocket write error", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Notify sends e to every subscriber of its mission. Slow subscribers
// whose buffer is full miss the event.
func (h *Hub) Notify(_ context.Context, e streaming.Event) error {
	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[e.MissionID] {
		select {
		case c.sendCh <- data:
		default:
			h.logger.Warn("WebSocket send channel full, dropping message",
				"missionID", e.MissionID, "type", e.Type)
		}
	}
	return nil
}

// subscribers returns the number of connections in a mission room.
func (h *Hub) subscribers(missionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[missionID])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[uint]map[*client]struct{})
	h.mu.Unlock()

	for _, room := range rooms {
		for c := range room {
			c.stop()
		}
	}
	return nil
}
