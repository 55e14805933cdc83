package realtime

import (
	"sort"
	"sync"

	"helpr/internal/domain"
	"helpr/internal/metrics"
	"helpr/internal/models"
	"helpr/internal/notify"

	"github.com/rs/zerolog"
)

const (
	scopeRoom       = "room"
	scopeUser       = "user"
	scopeRole       = "role"
	scopeDisconnect = "disconnect"
)

// Target addresses one audience: a booking room (optionally without one
// user's connections), a user's personal channel or every user of a role.
// The disconnect scope closes the user's connections instead of writing.
type Target struct {
	Scope  string      `json:"scope"`
	ID     int64       `json:"id,omitempty"`
	Except int64       `json:"except,omitempty"`
	Role   models.Role `json:"role,omitempty"`
}

// Hub is the in-process registry of live connections, personal channels and
// booking rooms. Room state is per process and rebuilt as clients reconnect.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	users map[int64]map[string]*Conn
	rooms map[int64]map[string]*Conn

	logger *zerolog.Logger
}

func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		conns:  make(map[string]*Conn),
		users:  make(map[int64]map[string]*Conn),
		rooms:  make(map[int64]map[string]*Conn),
		logger: logger,
	}
}

// Register joins the connection to its user's personal channel.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	set, ok := h.users[c.Actor.ID]
	if !ok {
		set = make(map[string]*Conn)
		h.users[c.Actor.ID] = set
	}
	set[c.ID] = c
	h.mu.Unlock()

	metrics.ConnectionOpened()
	h.logger.Debug().Str("conn_id", c.ID).Int64("user_id", c.Actor.ID).Msg("realtime connection registered")
}

// Unregister removes the connection from its personal channel and every room.
// It returns the rooms the user no longer has any connection in. Repeated
// calls return nil.
func (h *Hub) Unregister(c *Conn) []int64 {
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		c.Close()
		return nil
	}
	delete(h.conns, c.ID)
	if set := h.users[c.Actor.ID]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.users, c.Actor.ID)
		}
	}
	left := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		if h.removeFromRoom(c, id) {
			left = append(left, id)
		}
	}
	h.mu.Unlock()

	c.Close()
	metrics.ConnectionClosed()
	h.logger.Debug().Str("conn_id", c.ID).Int64("user_id", c.Actor.ID).Int("rooms", len(left)).Msg("realtime connection unregistered")
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	return left
}

// Join adds the connection to the room. It reports whether this is the
// user's first connection in the room.
func (h *Hub) Join(c *Conn, bookingID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		return false
	}
	if _, ok := c.rooms[bookingID]; ok {
		return false
	}
	room, ok := h.rooms[bookingID]
	if !ok {
		room = make(map[string]*Conn)
		h.rooms[bookingID] = room
	}
	first := !userIn(room, c.Actor.ID)
	room[c.ID] = c
	c.rooms[bookingID] = struct{}{}
	return first
}

// Leave removes the connection from the room. It reports whether that was
// the user's last connection in the room.
func (h *Hub) Leave(c *Conn, bookingID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.rooms[bookingID]; !ok {
		return false
	}
	return h.removeFromRoom(c, bookingID)
}

// removeFromRoom reports whether the user has no connection left in the room.
func (h *Hub) removeFromRoom(c *Conn, bookingID int64) bool {
	delete(c.rooms, bookingID)
	room := h.rooms[bookingID]
	if room == nil {
		return true
	}
	delete(room, c.ID)
	if len(room) == 0 {
		delete(h.rooms, bookingID)
		return true
	}
	return !userIn(room, c.Actor.ID)
}

func userIn(room map[string]*Conn, userID int64) bool {
	for _, c := range room {
		if c.Actor.ID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) InRoom(c *Conn, bookingID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[bookingID]
	return ok
}

// Members is a snapshot of the distinct users connected to a room.
func (h *Hub) Members(bookingID int64) []notify.UserRef {
	h.mu.RLock()
	seen := make(map[int64]notify.UserRef)
	for _, c := range h.rooms[bookingID] {
		seen[c.Actor.ID] = userRef(c.Actor)
	}
	h.mu.RUnlock()

	users := make([]notify.UserRef, 0, len(seen))
	for _, u := range seen {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Deliver enqueues a pre-encoded frame on every connection of the target.
// A connection whose buffer is full is dropped.
func (h *Hub) Deliver(t Target, frame []byte) {
	h.mu.RLock()
	var targets []*Conn
	switch t.Scope {
	case scopeRoom:
		for _, c := range h.rooms[t.ID] {
			if t.Except != 0 && c.Actor.ID == t.Except {
				continue
			}
			targets = append(targets, c)
		}
	case scopeUser:
		for _, c := range h.users[t.ID] {
			targets = append(targets, c)
		}
	case scopeRole:
		for _, c := range h.conns {
			if c.Actor.Role == t.Role {
				targets = append(targets, c)
			}
		}
	case scopeDisconnect:
		for _, c := range h.users[t.ID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if t.Scope == scopeDisconnect {
		for _, c := range targets {
			c.Close()
		}
		if len(targets) > 0 {
			h.logger.Info().Int64("user_id", t.ID).Int("connections", len(targets)).Msg("closed realtime connections of user")
		}
		return
	}

	for _, c := range targets {
		if c.enqueue(frame) || c.closed() {
			continue
		}
		metrics.IncDropped()
		h.logger.Warn().Str("conn_id", c.ID).Int64("user_id", c.Actor.ID).Msg("dropping slow realtime connection")
		c.Close()
	}
}

// DisconnectUser closes every connection of the user. The transport then
// unregisters them and presence is cleaned up as usual.
func (h *Hub) DisconnectUser(userID int64) {
	h.Deliver(Target{Scope: scopeDisconnect, ID: userID}, nil)
}

func (h *Hub) ToRoom(bookingID int64) domain.Emitter {
	return emitter{sink: h.Deliver, target: Target{Scope: scopeRoom, ID: bookingID}, logger: h.logger}
}

func (h *Hub) ToRoomExcept(bookingID, userID int64) domain.Emitter {
	return emitter{sink: h.Deliver, target: Target{Scope: scopeRoom, ID: bookingID, Except: userID}, logger: h.logger}
}

func (h *Hub) ToUser(userID int64) domain.Emitter {
	return emitter{sink: h.Deliver, target: Target{Scope: scopeUser, ID: userID}, logger: h.logger}
}

func (h *Hub) ToRole(role models.Role) domain.Emitter {
	return emitter{sink: h.Deliver, target: Target{Scope: scopeRole, Role: role}, logger: h.logger}
}

type emitter struct {
	sink   func(Target, []byte)
	target Target
	logger *zerolog.Logger
}

func (e emitter) Emit(event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to encode realtime event")
		return
	}
	e.sink(e.target, frame)
}

func userRef(a domain.Actor) notify.UserRef {
	return notify.UserRef{ID: a.ID, Name: a.Name, Role: a.Role}
}
