package ws

import (
	"sync"

	"campushub/internal/metrics"
)

// Conn is the transport side of a client connection. *websocket.Conn
// satisfies it; tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Event is a server-to-client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one identified connection known to the hub.
type Client struct {
	userID string
	conn   Conn

	// gorilla/websocket allows a single concurrent writer
	writeMu sync.Mutex
}

// UserID returns the identity this connection announced.
func (c *Client) UserID() string { return c.userID }

// Send pushes one event to this connection. Write failures are returned
// to the caller; broadcast paths treat them as best-effort.
func (c *Client) Send(evt Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(evt)
}

// Hub is the in-memory presence registry and room index. It is injected
// into the gateway and the REST handlers; a horizontally scaled
// deployment would swap it for a shared store behind the same surface.
//
// Presence holds at most one active connection per user: a second login
// takes over reachability and the earlier connection silently loses it.
type Hub struct {
	mu     sync.RWMutex
	online map[string]*Client
	rooms  map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		online: make(map[string]*Client),
		rooms:  make(map[string]map[*Client]struct{}),
	}
}

// MarkOnline registers the connection as the user's active one,
// overwriting any previous mapping (last writer wins).
func (h *Hub) MarkOnline(userID string, conn Conn) *Client {
	c := &Client{userID: userID, conn: conn}

	h.mu.Lock()
	h.online[userID] = c
	metrics.OnlineUsers.Set(float64(len(h.online)))
	h.mu.Unlock()
	return c
}

// MarkOffline removes the user's presence entry, but only if it still
// points at this client; a taken-over connection must not evict its
// successor. Reports whether presence actually changed.
func (h *Hub) MarkOffline(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.online[c.userID]; ok && cur == c {
		delete(h.online, c.userID)
		metrics.OnlineUsers.Set(float64(len(h.online)))
		return true
	}
	return false
}

// Lookup returns the user's active connection, or nil.
func (h *Hub) Lookup(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID]
}

// OnlineUserIDs returns the IDs of all users currently reachable.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.online))
	for id := range h.online {
		ids = append(ids, id)
	}
	return ids
}

// JoinRoom subscribes the connection to room-scoped broadcasts.
// Idempotent; membership in other rooms is untouched.
func (h *Hub) JoinRoom(conversationKey string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[conversationKey]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[conversationKey] = room
	}
	room[c] = struct{}{}
}

// LeaveAllRooms drops the connection from every room it joined.
func (h *Hub) LeaveAllRooms(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
}

// RoomMembers returns the clients currently joined to the room.
func (h *Hub) RoomMembers(conversationKey string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[conversationKey]
	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	return members
}

// BroadcastRoom sends the event to every connection joined to the room,
// optionally skipping one. Failed writes are dropped silently; the
// history fetch path is the recovery mechanism.
func (h *Hub) BroadcastRoom(conversationKey string, except *Client, evt Event) {
	for _, c := range h.RoomMembers(conversationKey) {
		if c == except {
			continue
		}
		_ = c.Send(evt)
	}
}

// SendToUser pushes the event directly to the user's active connection.
// Reports false when the user is not reachable; that is not an error.
func (h *Hub) SendToUser(userID string, evt Event) bool {
	c := h.Lookup(userID)
	if c == nil {
		return false
	}
	return c.Send(evt) == nil
}

// BroadcastAll sends the event to every online user's connection.
func (h *Hub) BroadcastAll(evt Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.online))
	for _, c := range h.online {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.Send(evt)
	}
}
