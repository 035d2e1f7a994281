// Package feed broadcasts live self-play events to websocket spectators.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	TypePlacement = "placement"
	TypeGameEnd   = "game_end"
	TypeHello     = "hello"
)

// Event is the envelope of every message on the feed.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Placement is the data of a placement event.
type Placement struct {
	Worker    int        `json:"worker"`
	GameID    string     `json:"game_id"`
	Placement int        `json:"placement"`
	Shape     string     `json:"shape"`
	Rotation  int        `json:"rotation"`
	Offset    int        `json:"offset"`
	Explored  bool       `json:"explored"`
	Lines     int        `json:"lines"`
	Score     int        `json:"score"`
	Weights   [4]float64 `json:"weights"`
	Epsilon   float64    `json:"epsilon"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Rows      [][]uint8  `json:"rows"`
}

// GameEnd is the data of a game_end event.
type GameEnd struct {
	Worker     int        `json:"worker"`
	GameID     string     `json:"game_id"`
	Game       int        `json:"game"`
	Score      int        `json:"score"`
	Lines      int        `json:"lines"`
	Level      int        `json:"level"`
	Placements int        `json:"placements"`
	Capped     bool       `json:"capped"`
	Weights    [4]float64 `json:"weights"`
}

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Hub fans events out to every connected client. Publishing never blocks the
// game loop: a client whose buffer is full misses the event.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	dropped int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns an empty hub. A nil logger uses slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish encodes data as an event of type typ and queues it for every client.
func (h *Hub) Publish(typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Event{Type: typ, Data: raw})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
		}
	}
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped reports how many messages were skipped for slow clients.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// ServeHTTP upgrades the request and streams events until the client leaves
// or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	hello, _ := json.Marshal(Event{Type: TypeHello, Data: json.RawMessage(`{}`)})
	c.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(c)
	h.writeLoop(c)
}

// readLoop discards client messages and notices when the peer goes away.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client with a going-away close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
