// Package server coordinates client registration, room broadcast, and
// connection cleanup for the LinkRoom realtime channel via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RoomMessage is a frame addressed to every connection currently joined to a
// group. Delivery includes the sender; the realtime protocol echoes a user's
// own messages back to them.
type RoomMessage struct {
	GroupID string
	Payload []byte
}

// Hub manages all WebSocket client connections and fans frames out to room
// members. It maintains client registration/unregistration and ensures
// thread-safe operations through mutex protection. Group membership itself
// lives in the GroupRegistry; the hub resolves member connection ids to live
// clients at broadcast time.
type Hub struct {
	clients    map[string]*Client
	groups     *GroupRegistry
	broadcast  chan RoomMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     zerolog.Logger
}

// NewHub creates and initializes a new Hub instance bound to the given group
// registry. The returned Hub is ready to manage WebSocket connections once
// Run is started.
func NewHub(groups *GroupRegistry, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     groups,
		broadcast:  make(chan RoomMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetBroadcastChan returns the channel used for broadcasting frames to room members.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetBroadcastChan() chan<- RoomMessage {
	return h.broadcast
}

// ClientCount reports the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn().Interface("panic", r).Msg("Recovered from panic in safeSend")
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	registered, exists := h.clients[client.id]
	if !exists || registered != client || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and room broadcast. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn().Msg("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info().
				Str("conn_id", client.id).
				Str("addr", client.addr).
				Int("total_clients", clientCount).
				Msg("Client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if registered, ok := h.clients[client.id]; ok && registered == client {
				delete(h.clients, client.id)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Membership cleanup and channel close happen after
				// releasing the lock.
				h.groups.RemoveConnection(client.id)
				close(client.send)
				h.logger.Info().
					Str("conn_id", client.id).
					Str("addr", client.addr).
					Int("total_clients", clientCount).
					Msg("Client unregistered")
			} else {
				h.mutex.Unlock()
			}

		case roomMsg := <-h.broadcast:
			h.handleBroadcast(roomMsg)
		}
	}
}

// handleBroadcast delivers a frame to every live client joined to the room.
func (h *Hub) handleBroadcast(roomMsg RoomMessage) {
	recipients := h.roomClients(roomMsg.GroupID)

	h.logger.Debug().
		Str("group_id", roomMsg.GroupID).
		Int("recipients", len(recipients)).
		Msg("Broadcasting to room")

	var clientsToRemove []*Client
	for _, client := range recipients {
		if !h.safeSend(client, roomMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	h.removeFailedClients(clientsToRemove)
}

// roomClients resolves the group's member connection ids to live clients.
func (h *Hub) roomClients(groupID string) []*Client {
	memberIDs := h.groups.Members(groupID)
	if len(memberIDs) == 0 {
		return nil
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(memberIDs))
	for _, connID := range memberIDs {
		if client, ok := h.clients[connID]; ok {
			clients = append(clients, client)
		}
	}
	return clients
}

// removeFailedClients drops clients whose send buffers are full and sweeps
// them out of every group.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var removed []*Client
	for _, client := range clientsToRemove {
		if registered, exists := h.clients[client.id]; exists && registered == client {
			delete(h.clients, client.id)
			client.closed = true
			removed = append(removed, client)
			h.logger.Warn().
				Str("conn_id", client.id).
				Str("addr", client.addr).
				Msg("Client removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	// Close channels and clean membership after releasing the lock
	for _, client := range removed {
		h.groups.RemoveConnection(client.id)
		close(client.send)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.logger.Info().Msg("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	// Close all client connections
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.logger.Error().Err(err).Str("addr", client.addr).Msg("Error closing client connection")
				}
			}
		}
	}

	h.logger.Info().Int("count", len(clients)).Msg("Closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info().Msg("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn().Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
