package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

// Connection is one authenticated client session. Conn may be nil for
// connections that never touch the network (tests, in-process clients).
type Connection struct {
	ID        string
	Principal domain.Principal
	Conn      *websocket.Conn

	outbox *Outbox
	config config.WebSocketConfig

	mu    sync.Mutex
	rooms map[string]struct{}

	onDisconnect func(*Connection)
	closeOnce    sync.Once
}

func NewConnection(id string, principal domain.Principal, conn *websocket.Conn, wsCfg config.WebSocketConfig, relayCfg config.RelayConfig) *Connection {
	return &Connection{
		ID:        id,
		Principal: principal,
		Conn:      conn,
		outbox:    NewOutbox(relayCfg.FrameQueueSize, relayCfg.ControlQueueSize),
		config:    wsCfg,
		rooms:     make(map[string]struct{}),
	}
}

// Outbox exposes the connection's outbound queue.
func (c *Connection) Outbox() *Outbox {
	return c.outbox
}

// Enqueue pushes a serialized message onto the outbox without blocking.
func (c *Connection) Enqueue(class Class, data []byte) PushResult {
	return c.outbox.Push(class, data)
}

// SetDisconnectHandler registers fn to run once when ReadPump exits.
func (c *Connection) SetDisconnectHandler(fn func(*Connection)) {
	c.onDisconnect = fn
}

// Rooms returns the ids of the rooms the connection belongs to, sorted.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InRoom reports whether the connection is a member of roomID.
func (c *Connection) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Connection) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Close stops the write side. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// ReadPump reads messages until the transport fails, then runs the
// disconnect handler before closing the connection.
func (c *Connection) ReadPump(handler func(*Connection, []byte)) {
	defer func() {
		if c.onDisconnect != nil {
			c.onDisconnect(c)
		}
		c.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump drains the outbox onto the socket and keeps the peer alive with
// pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.outbox.Ready():
			for _, message := range c.outbox.Drain() {
				c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
				if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			}

		case <-c.outbox.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
