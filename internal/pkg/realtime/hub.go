package realtime

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // clients only send control frames
	sendBuffer     = 64
)

// roomChannelPrefix is the Redis channel for a room: mural:events:<room>
const roomChannelPrefix = "mural:events:"

var (
	wsConnectionsGauge   = expvar.NewInt("websocket_connections")
	wsEventsSentTotal    = expvar.NewInt("websocket_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("websocket_events_dropped_total")
)

// Connection is one subscribed websocket client
type Connection struct {
	Room string
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans catalog events out to websocket subscribers. With Redis every
// instance receives every event through Pub/Sub, without it delivery is local.
type Hub struct {
	rooms map[string]map[*Connection]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	upgrader websocket.Upgrader
}

// NewHub creates a hub. redisClient may be nil.
func NewHub(redisClient *redis.Client, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		rooms:      make(map[string]map[*Connection]bool),
		redis:      redisClient,
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		ctx:        ctx,
		cancel:     cancel,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Allow all in development
			if len(allowedOrigins) == 0 || origin == "" {
				return true
			}

			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}

			log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
			return false
		},
	}

	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, roomChannelPrefix+"*")
	}

	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.rooms[conn.Room] == nil {
				h.rooms[conn.Room] = make(map[*Connection]bool)
			}
			h.rooms[conn.Room][conn] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)
			log.Debug().Str("room", conn.Room).Msg("Subscriber connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.rooms[conn.Room]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.rooms, conn.Room)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("room", conn.Room).Msg("Subscriber disconnected")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			room := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			h.broadcastLocal(room, []byte(msg.Payload))
		}
	}
}

// Publish sends payload as JSON to every subscriber of room
func (h *Hub) Publish(room string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("Failed to marshal event")
		return
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
		defer cancel()
		err := h.redis.Publish(ctx, roomChannelPrefix+room, data).Err()
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("room", room).Msg("Redis publish failed, delivering locally")
	}

	h.broadcastLocal(room, data)
}

func (h *Hub) broadcastLocal(room string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.rooms[room] {
		select {
		case conn.Send <- data:
			wsEventsSentTotal.Add(1)
		default:
			// Buffer full, skip this message
			wsEventsDroppedTotal.Add(1)
			log.Warn().Str("room", room).Msg("WebSocket send buffer full")
		}
	}
}

// Handler upgrades requests to a websocket subscribed to room
func (h *Hub) Handler(room string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		client := &Connection{
			Room: room,
			Conn: conn,
			Send: make(chan []byte, sendBuffer),
		}

		registered := false
		if h.ctx.Err() == nil {
			select {
			case h.register <- client:
				registered = true
			case <-h.ctx.Done():
			}
		}
		if !registered {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			return
		}

		go h.reader(client)
		go h.writer(client)
	})
}

// reader drains control frames until the client goes away
func (h *Hub) reader(client *Connection) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.ctx.Done():
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("room", client.Room).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *Hub) writer(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ConnectionCount returns the number of local subscribers of room
func (h *Hub) ConnectionCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
