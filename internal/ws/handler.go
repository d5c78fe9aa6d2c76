package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/pkg/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// EventSource delivers every bus event until ctx is done.
type EventSource interface {
	ConsumeEvents(ctx context.Context, handler func(events.Event) error) error
}

type client struct {
	conn *websocket.Conn
	pin  string
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub relays bus events to the websocket subscribers of each room. One
// consumer feeds all rooms; a subscriber that falls behind is dropped.
type Hub struct {
	source   EventSource
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub(source EventSource, allowedOrigins []string) *Hub {
	h := &Hub{
		source: source,
		rooms:  make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Run consumes the bus until ctx is done or the source fails. Callers
// restart it after a failure.
func (h *Hub) Run(ctx context.Context) error {
	log.Info().Str("module", "ws").Msg("relaying room events")
	return h.source.ConsumeEvents(ctx, func(event events.Event) error {
		h.Broadcast(event)
		return nil
	})
}

func (h *Hub) Broadcast(event events.Event) {
	if event.Pin == "" {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Str("module", "ws").Err(err).Msg("failed to marshal event")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[event.Pin] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("module", "ws").Str("pin", c.pin).Msg("dropping slow subscriber")
		h.unregister(c)
	}
}

// Subscribers returns the number of open connections for pin.
func (h *Hub) Subscribers(pin string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pin])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[c.pin]; !ok {
		h.rooms[c.pin] = make(map[*client]struct{})
	}
	h.rooms[c.pin][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.pin]
	if !ok {
		return
	}
	if _, ok := room[c]; ok {
		delete(room, c)
		c.close()
	}
	if len(room) == 0 {
		delete(h.rooms, c.pin)
	}
}

func (h *Hub) HandleWebSocket(c *gin.Context) {
	pin := strings.ToUpper(c.Param("pin"))
	if pin == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "ws").Err(err).Msg("failed to upgrade connection")
		return
	}

	cl := &client{conn: conn, pin: pin, send: make(chan []byte, sendBuffer)}
	h.register(cl)
	log.Debug().Str("module", "ws").Str("pin", pin).Str("user", c.GetString("user_id")).Msg("subscriber joined")

	go h.write(cl)
	h.read(cl)
}

// read discards client frames; it only keeps the connection alive and
// notices when it closes.
func (h *Hub) read(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Str("module", "ws").Str("pin", c.pin).Err(err).Msg("read failed")
			}
			return
		}
	}
}

func (h *Hub) write(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
