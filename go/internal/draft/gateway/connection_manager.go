package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections subscribed to draft and
// series channels
type ConnectionManager struct {
	// Connection pools organized by channel name
	channels map[string]map[*Connection]bool
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	// Called for every message a client sends. Nil drops client messages.
	onMessage func(c *Connection, message []byte)
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Channel string
	DraftID string      // empty on series connections
	Team    engine.Team // empty for spectators
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a payload queued for a channel. When ConnectionID is
// set only that connection receives it.
type BroadcastMessage struct {
	Channel      string
	ConnectionID string
	Payload      any
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = 1000
	}
	return &ConnectionManager{
		channels: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and subscribes
// it to channel. initial, when non-nil, is sent to the new connection first.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, channel, draftID string, team engine.Team, initial any) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		Channel:     channel,
		DraftID:     draftID,
		Team:        team,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
	}

	cm.registerConnection(connection)

	// Queued before the read pump starts so it precedes any reply to the client.
	if initial != nil {
		cm.SendToConnection(channel, connection.ID, initial)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("channel", channel).
		Str("team", string(team)).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.channels[conn.Channel] == nil {
		cm.channels[conn.Channel] = make(map[*Connection]bool)
	}
	cm.channels[conn.Channel][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("channel", conn.Channel).
		Int("total_connections", len(cm.channels[conn.Channel])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and closes its send channel.
// Safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.channels[conn.Channel]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}

	delete(connections, conn)
	close(conn.Send)

	if len(connections) == 0 {
		delete(cm.channels, conn.Channel)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("channel", conn.Channel).
		Msg("connection unregistered")
}

// BroadcastToChannel queues payload for every connection on channel. The
// message is dropped when the broadcast queue is full.
func (cm *ConnectionManager) BroadcastToChannel(channel string, payload any) bool {
	select {
	case cm.broadcastCh <- BroadcastMessage{Channel: channel, Payload: payload}:
		return true
	default:
		log.Warn().Str("channel", channel).Msg("broadcast channel full, dropping message")
		return false
	}
}

// SendToConnection queues payload for a single connection on channel.
func (cm *ConnectionManager) SendToConnection(channel, connectionID string, payload any) bool {
	select {
	case cm.broadcastCh <- BroadcastMessage{Channel: channel, ConnectionID: connectionID, Payload: payload}:
		return true
	default:
		log.Warn().
			Str("channel", channel).
			Str("connection_id", connectionID).
			Msg("broadcast channel full, dropping connection message")
		return false
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Payload)
	if err != nil {
		log.Error().Err(err).Str("channel", message.Channel).Msg("failed to marshal payload for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	// Sends happen under the read lock so no send channel is closed mid-send.
	cm.mu.RLock()
	for conn := range cm.channels[message.Channel] {
		if message.ConnectionID != "" && conn.ID != message.ConnectionID {
			continue
		}
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("channel", conn.Channel).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("channel", message.Channel).
		Int("connections", delivered).
		Msg("message broadcasted")
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveChannels     int            `json:"active_channels"`
	ChannelConnections map[string]int `json:"channel_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveChannels:     len(cm.channels),
		ChannelConnections: make(map[string]int, len(cm.channels)),
	}
	for channel, connections := range cm.channels {
		stats.TotalConnections += len(connections)
		stats.ChannelConnections[channel] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.onMessage != nil {
			c.Manager.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
