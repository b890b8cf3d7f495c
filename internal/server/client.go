// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, event dispatch, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client represents a WebSocket client connection in the chat system. It
// carries the opaque connection id used for group membership, the connection
// state, the message sending channel, and a hub reference.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	logger         zerolog.Logger
}

// NewClient creates a new Client instance with the provided WebSocket
// connection, hub reference, and client address. A fresh connection id is
// assigned; the send channel is buffered to handle message queuing.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config, logger zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		logger:         logger.With().Str("conn_id", id).Str("addr", addr).Logger(),
	}
}

// ID returns the opaque connection identifier assigned at creation.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.logger.Error().Err(err).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.logger.Error().Err(err).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn().Int64("max_bytes", c.maxMessageSize).Msg("Message exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Info().Err(err).Msg("Client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info().Err(err).Msg("Client connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Error().Err(err).Msg("Unexpected WebSocket error")
		return true
	}

	c.logger.Error().Err(err).Msg("WebSocket read error")
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the event should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("refill_interval", c.rateLimit.RefillInterval).
			Msg("Rate limit exceeded; discarding event")
		return false
	}
	return true
}

// dispatchEvent decodes an inbound frame and routes it to the matching event
// handler. Malformed frames and unknown events are dropped silently; the
// realtime channel never reports errors back to the sender.
func (c *Client) dispatchEvent(rawEvent []byte) bool {
	var event Event
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid event frame")
		return false
	}

	switch event.Event {
	case EventJoinGroup:
		return c.handleJoinGroup(event.Data)
	case EventLeaveGroup:
		return c.handleLeaveGroup(event.Data)
	case EventSendMessage:
		return c.handleSendMessage(event.Data)
	default:
		c.logger.Warn().Str("event", event.Event).Msg("Unknown event; dropping")
		return false
	}
}

// handleJoinGroup adds the connection to the group and announces the join to
// the room, joiner included. Unknown groups are a silent no-op.
func (c *Client) handleJoinGroup(data json.RawMessage) bool {
	var payload JoinGroupData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid join_group payload")
		return false
	}

	if _, ok := c.hub.groups.Join(payload.GroupID, c.id); !ok {
		c.logger.Debug().Str("group_id", payload.GroupID).Msg("join_group for unknown group; dropping")
		return false
	}

	c.logger.Info().Str("group_id", payload.GroupID).Str("username", payload.Username).Msg("Client joined group")

	notice := UserNotice{
		Username: payload.Username,
		Message:  fmt.Sprintf("%s присоединился к группе", payload.Username),
	}
	return c.broadcastToRoom(payload.GroupID, EventUserJoined, notice)
}

// handleLeaveGroup removes the connection from the group and announces the
// departure to the remaining members. Unknown groups are a silent no-op.
func (c *Client) handleLeaveGroup(data json.RawMessage) bool {
	var payload JoinGroupData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid leave_group payload")
		return false
	}

	if _, ok := c.hub.groups.Get(payload.GroupID); !ok {
		c.logger.Debug().Str("group_id", payload.GroupID).Msg("leave_group for unknown group; dropping")
		return false
	}

	c.hub.groups.Leave(payload.GroupID, c.id)
	c.logger.Info().Str("group_id", payload.GroupID).Str("username", payload.Username).Msg("Client left group")

	notice := UserNotice{
		Username: payload.Username,
		Message:  fmt.Sprintf("%s покинул группу", payload.Username),
	}
	return c.broadcastToRoom(payload.GroupID, EventUserLeft, notice)
}

// handleSendMessage fans a chat message out to the room. Unknown groups and
// empty messages are dropped without feedback to the sender.
func (c *Client) handleSendMessage(data json.RawMessage) bool {
	var payload SendMessageData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid send_message payload")
		return false
	}

	if payload.Message == "" {
		c.logger.Debug().Str("group_id", payload.GroupID).Msg("Empty message; dropping")
		return false
	}

	if _, ok := c.hub.groups.Get(payload.GroupID); !ok {
		c.logger.Debug().Str("group_id", payload.GroupID).Msg("send_message for unknown group; dropping")
		return false
	}

	message := ChatMessage{
		ID:        uuid.NewString(),
		Text:      payload.Message,
		Sender:    payload.Username,
		Timestamp: time.Now().Format("15:04:05"),
		GroupID:   payload.GroupID,
	}
	return c.broadcastToRoom(payload.GroupID, EventNewMessage, message)
}

// broadcastToRoom wraps the payload in the event envelope and hands it to the
// hub for room fan-out.
func (c *Client) broadcastToRoom(groupID, event string, data any) bool {
	frame, err := marshalEvent(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Error encoding event")
		return false
	}

	select {
	case c.hub.broadcast <- RoomMessage{GroupID: groupID, Payload: frame}:
		return true
	case <-c.hub.ctx.Done():
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		// During hub shutdown nobody drains the unregister channel; the
		// select keeps the pump from leaking.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Error().Err(err).Msg("Error closing connection in readPump")
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawEvent, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.dispatchEvent(rawEvent)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		// Only log unexpected connection close errors
		if !isExpectedCloseError(err) {
			c.logger.Error().Err(err).Msg("Error closing connection in writePump")
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.logger.Error().Err(err).Msg("Error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
	}
	return false
}

// writeTextMessage writes a text frame and any queued frames
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error creating writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	if !c.writeQueuedMessages(w) {
		return false
	}

	if err := w.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing writer")
		return false
	}
	return true
}

// writeQueuedMessages drains frames already queued on the send channel into
// the same writer, newline separated.
func (c *Client) writeQueuedMessages(w io.WriteCloser) bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing newline")
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.logger.Error().Err(err).Msg("Error writing queued message")
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.logger.Error().Err(err).Msg("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping message")
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
