// Package realtime pushes message notifications to connected participants
// over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tcgvault/messaging/internal/messaging"
)

// EventMessageCreated is the frame type sent when a message arrives.
const EventMessageCreated = "message.created"

type frame struct {
	Type string `json:"type"`
	messaging.Event
}

// Hub tracks open connections per user. A user may have several (tabs, devices).
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[string]*Connection
}

var _ messaging.Notifier = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{users: make(map[string]map[string]*Connection)}
}

// Register starts serving conn and tracks it until it closes.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	conns := h.users[conn.UserID]
	if conns == nil {
		conns = make(map[string]*Connection)
		h.users[conn.UserID] = conns
	}
	conns[conn.ID] = conn
	h.mu.Unlock()

	go conn.WriteLoop()
	go func() {
		<-conn.Done()
		h.unregister(conn)
	}()
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.users[conn.UserID]
	delete(conns, conn.ID)
	if len(conns) == 0 {
		delete(h.users, conn.UserID)
	}
}

// Connections returns how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// NotifyUser sends payload to every connection of userID and returns how many
// accepted it.
func (h *Hub) NotifyUser(userID string, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.users[userID]))
	for _, conn := range h.users[userID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// MessageCreated pushes the event to the recipient. A recipient with no open
// connection is not an error; they will load the message on next fetch.
func (h *Hub) MessageCreated(_ context.Context, ev messaging.Event) error {
	payload, err := json.Marshal(frame{Type: EventMessageCreated, Event: ev})
	if err != nil {
		return err
	}
	h.NotifyUser(ev.RecipientID, payload)
	return nil
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Connection
	for _, conns := range h.users {
		for _, conn := range conns {
			all = append(all, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range all {
		conn.Close()
	}
}
