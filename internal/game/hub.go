package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	HUB_BUFFER    = 256
	WRITE_TIMEOUT = 10 * time.Second
)

// WSMessage is the envelope pushed to websocket clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// Hub fans engine events out to websocket clients. Broadcast never blocks;
// when the buffer is full the message is dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, HUB_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				client.conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.WithFields(log.Fields{"user": client.userID, "total": total}).Debug("[WS] client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.WithFields(log.Fields{"user": client.userID, "total": total}).Debug("[WS] client disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				go client.send(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends Run and closes every client connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("[WS] marshal failed")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("[WS] broadcast buffer full, dropping message")
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(ev Event) {
	h.Broadcast(WSMessage{Type: string(ev.Type), Data: ev})
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.WithField("user", c.userID).WithError(err).Debug("[WS] write failed")
	}
}

// Reply sends a message to this client only.
func (c *Client) Reply(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("[WS] marshal failed")
		return
	}
	c.send(data)
}

// SendInitialState pushes the current round snapshot to a new client.
func (c *Client) SendInitialState(state *Game) {
	if state == nil {
		return
	}
	c.Reply(WSMessage{Type: "initial_state", Data: state})
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{conn: conn, userID: userID}
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			h.unregister <- client
			return
		}
	}
	h.mu.RUnlock()
}
