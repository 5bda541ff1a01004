package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
)

var (
	ErrClientNotRegistered = errors.New("client not registered")
	ErrHubStopped          = errors.New("hub stopped")
	ErrBroadcastTimeout    = errors.New("broadcast queue full")
)

// Hub is the connection registry. It tracks live connections per user,
// per-connection room subscriptions, and fans events out to rooms.
type Hub struct {
	clients   map[string]*Client            // connectionID -> client
	users     map[string]map[string]*Client // userID -> connectionID -> client
	rooms     map[string]map[string]*Client // conversationID -> connectionID -> client
	broadcast chan *delivery
	mu        sync.RWMutex
	config    config.WebSocketConfig
	onEvict   func(*Client)
	done      chan struct{}
	stopOnce  sync.Once
}

// delivery is one event addressed to a fixed set of recipients. Recipients
// are resolved when the event is queued, so a room torn down after queueing
// still receives it.
type delivery struct {
	data       []byte
	recipients []*Client
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	buf := cfg.BroadcastBuffer
	if buf <= 0 {
		buf = 1024
	}
	return &Hub{
		clients:   make(map[string]*Client),
		users:     make(map[string]map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		broadcast: make(chan *delivery, buf),
		config:    cfg,
		done:      make(chan struct{}),
	}
}

// OnEvict sets the function called when a client is dropped for not keeping
// up with its send queue. It defaults to Unregister.
func (h *Hub) OnEvict(fn func(*Client)) {
	h.onEvict = fn
}

// Run delivers queued broadcasts in order until ctx is done. It is the
// single publish path, which keeps per-room ordering.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) deliver(d *delivery) {
	var slow []*Client

	h.mu.RLock()
	for _, c := range d.recipients {
		// Skip clients that unregistered after the event was queued;
		// their Send channel is closed.
		if h.clients[c.ID] != c {
			continue
		}
		select {
		case c.Send <- d.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, c.ID).Str(log.FieldUserID, c.UserID).Msg("send queue full, dropping client")
		go h.evict(c)
	}
}

func (h *Hub) evict(c *Client) {
	if h.onEvict != nil {
		h.onEvict(c)
		return
	}
	h.Unregister(c)
}

// Register adds a client. It reports whether this is the user's first live
// connection (0 -> 1).
func (h *Hub) Register(c *Client) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; ok {
		return false
	}
	h.clients[c.ID] = c

	conns, ok := h.users[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.users[c.UserID] = conns
	}
	conns[c.ID] = c

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, c.ID).Str(log.FieldUserID, c.UserID).Int("connections", len(conns)).Msg("client registered")
	return len(conns) == 1
}

// Unregister removes a client from the registry and every room and closes
// its send queue. It reports whether this was the user's last live
// connection (1 -> 0). Unregistering twice is a no-op.
func (h *Hub) Unregister(c *Client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.ID] != c {
		return false
	}
	delete(h.clients, c.ID)

	for convID := range c.rooms {
		h.removeFromRoomLocked(c, convID)
	}

	if conns, ok := h.users[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.users, c.UserID)
			last = true
		}
	}

	close(c.Send)

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, c.ID).Str(log.FieldUserID, c.UserID).Bool("last", last).Msg("client unregistered")
	return last
}

// JoinRoom subscribes a registered client to a conversation room. The
// caller authorizes first.
func (h *Hub) JoinRoom(c *Client, conversationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.ID] != c {
		return ErrClientNotRegistered
	}

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[conversationID] = room
	}
	room[c.ID] = c
	c.rooms[conversationID] = struct{}{}
	return nil
}

// LeaveRoom unsubscribes a client. Leaving a room it is not in is a no-op.
func (h *Hub) LeaveRoom(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c, conversationID)
}

func (h *Hub) removeFromRoomLocked(c *Client, conversationID string) {
	delete(c.rooms, conversationID)
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// RemoveUserFromRoom unsubscribes every connection of userID from a room
// and returns how many were removed.
func (h *Hub) RemoveUserFromRoom(userID, conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.users[userID] {
		if _, ok := c.rooms[conversationID]; ok {
			h.removeFromRoomLocked(c, conversationID)
			n++
		}
	}
	return n
}

// CloseRoom unsubscribes every connection from a room.
func (h *Hub) CloseRoom(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.rooms[conversationID] {
		delete(c.rooms, conversationID)
	}
	delete(h.rooms, conversationID)
}

// Broadcast queues event for every connection in the room except
// excludeConnectionID. Delivery to each subscriber is fire-and-forget.
func (h *Hub) Broadcast(ctx context.Context, conversationID string, event domain.Event, excludeConnectionID string) error {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.rooms[conversationID]))
	for id, c := range h.rooms[conversationID] {
		if id != excludeConnectionID {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	return h.enqueue(ctx, event, recipients)
}

// BroadcastAll queues event for every connection except excludeConnectionID.
func (h *Hub) BroadcastAll(ctx context.Context, event domain.Event, excludeConnectionID string) error {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != excludeConnectionID {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	return h.enqueue(ctx, event, recipients)
}

func (h *Hub) enqueue(ctx context.Context, event domain.Event, recipients []*Client) error {
	if len(recipients) == 0 {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	timer := time.NewTimer(h.writeWait())
	defer timer.Stop()

	select {
	case h.broadcast <- &delivery{data: data, recipients: recipients}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBroadcastTimeout
	}
}

// SendTo writes event to one client, bypassing room queues. A full send
// queue drops the event.
func (h *Hub) SendTo(c *Client, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[c.ID] != c {
		return ErrClientNotRegistered
	}
	select {
	case c.Send <- data:
	default:
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, c.ID).Str(log.FieldEventType, event.EventType()).Msg("send queue full, event dropped")
	}
	return nil
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// ConnectionCount returns the number of live connections of userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// OnlineUserIDs returns the sorted IDs of users with a live connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// RoomSize returns the number of connections subscribed to a room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// InRoom reports whether c is subscribed to a room.
func (h *Hub) InRoom(c *Client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[conversationID]
	return ok
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) writeWait() time.Duration {
	if h.config.WriteWait > 0 {
		return h.config.WriteWait
	}
	return 10 * time.Second
}
