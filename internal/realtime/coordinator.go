package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/metrics"
	"helpr/internal/models"
	"helpr/internal/notify"
	"helpr/internal/service"

	"github.com/rs/zerolog"
)

// Inbound event names.
const (
	EventJoin        = "booking:join"
	EventLeave       = "booking:leave"
	EventGetUsers    = "booking:get-users"
	EventTyping      = "booking:typing"
	EventSend        = "message:send"
	EventRead        = "message:read"
	EventUnreadCount = "message:unread-count"
)

type BookingReader interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// Chat is the message workflow the coordinator drives.
type Chat interface {
	SendInRoom(ctx context.Context, actor domain.Actor, bookingID int64, in service.SendInput, inRoom bool) (*models.Message, error)
	MarkRead(ctx context.Context, actor domain.Actor, bookingID int64, messageIDs []int64) ([]int64, error)
	UnreadCount(ctx context.Context, actor domain.Actor, bookingID int64) (int, error)
}

type inbound struct {
	BookingID   int64              `json:"booking_id"`
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"message_type"`
	ImageURL    string             `json:"image_url"`
	MessageIDs  []int64            `json:"message_ids"`
	IsTyping    bool               `json:"is_typing"`
}

type handlerFunc func(ctx context.Context, c *Conn, in inbound) error

// Coordinator applies inbound room and chat events for one connection at a
// time. Failures are reported to the originating connection only.
type Coordinator struct {
	hub         *Hub
	broadcaster domain.Broadcaster
	bookings    BookingReader
	chat        Chat
	logger      *zerolog.Logger
	handlers    map[string]handlerFunc
}

// NewCoordinator wires the handlers. Room-wide events go through broadcaster,
// which is the hub itself or a relay in front of it.
func NewCoordinator(hub *Hub, broadcaster domain.Broadcaster, bookings BookingReader, chat Chat, logger *zerolog.Logger) *Coordinator {
	if broadcaster == nil {
		broadcaster = hub
	}
	c := &Coordinator{
		hub:         hub,
		broadcaster: broadcaster,
		bookings:    bookings,
		chat:        chat,
		logger:      logger,
	}
	c.handlers = map[string]handlerFunc{
		EventJoin:        c.join,
		EventLeave:       c.leave,
		EventGetUsers:    c.getUsers,
		EventTyping:      c.typing,
		EventSend:        c.send,
		EventRead:        c.read,
		EventUnreadCount: c.unreadCount,
	}
	return c
}

// Connect registers the connection on its personal channel.
func (c *Coordinator) Connect(conn *Conn) {
	c.hub.Register(conn)
	c.logger.Info().Str("conn_id", conn.ID).Int64("user_id", conn.Actor.ID).Str("role", string(conn.Actor.Role)).Msg("realtime client connected")
}

// Disconnect leaves every room the connection was in and tells the rest of
// each room the user has no other connection in.
func (c *Coordinator) Disconnect(conn *Conn) {
	for _, id := range c.hub.Unregister(conn) {
		c.broadcaster.ToRoom(id).Emit(notify.EventBookingUserLeft, notify.PresencePayload{BookingID: id, User: userRef(conn.Actor)})
	}
	c.logger.Info().Str("conn_id", conn.ID).Int64("user_id", conn.Actor.ID).Msg("realtime client disconnected")
}

// Handle decodes and dispatches one inbound frame. It never panics.
func (c *Coordinator) Handle(ctx context.Context, conn *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		c.reply(conn, notify.EventError, notify.ErrorPayload{Message: "malformed frame"})
		return
	}
	h, ok := c.handlers[env.Event]
	if !ok {
		metrics.IncRealtimeEvent("unknown", false)
		c.reply(conn, notify.EventError, notify.ErrorPayload{Event: env.Event, Message: "unknown event"})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("event", env.Event).Str("conn_id", conn.ID).Msg("realtime handler panicked")
			metrics.IncRealtimeEvent(env.Event, false)
			c.reply(conn, notify.EventError, notify.ErrorPayload{Event: env.Event, Message: "internal error"})
		}
	}()

	var in inbound
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &in); err != nil {
			metrics.IncRealtimeEvent(env.Event, false)
			c.reply(conn, notify.EventError, notify.ErrorPayload{Event: env.Event, Message: "malformed payload"})
			return
		}
	}

	err := h(ctx, conn, in)
	metrics.IncRealtimeEvent(env.Event, err == nil)
	if err != nil {
		c.reply(conn, notify.EventError, notify.ErrorPayload{Event: env.Event, Message: c.clientMessage(env.Event, conn, err)})
	}
}

func (c *Coordinator) clientMessage(event string, conn *Conn, err error) string {
	if domain.IsClientError(err) || errors.Is(err, service.ErrRateLimited) {
		return err.Error()
	}
	c.logger.Error().Err(err).Str("event", event).Int64("user_id", conn.Actor.ID).Msg("realtime handler failed")
	return "failed to process " + event
}

// reply writes directly to one connection.
func (c *Coordinator) reply(conn *Conn, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("failed to encode reply")
		return
	}
	if !conn.enqueue(frame) && !conn.closed() {
		metrics.IncDropped()
		conn.Close()
	}
}

func requireBooking(in inbound) error {
	if in.BookingID <= 0 {
		return domain.Invalid("booking_id", "booking id required")
	}
	return nil
}

func (c *Coordinator) loadBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := c.bookings.GetBooking(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.NotFound("Booking")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return b, nil
}

func (c *Coordinator) join(ctx context.Context, conn *Conn, in inbound) error {
	if err := requireBooking(in); err != nil {
		return err
	}
	b, err := c.loadBooking(ctx, in.BookingID)
	if err != nil {
		return err
	}
	if !domain.CanView(b, conn.Actor.ID, conn.Actor.Role) {
		return domain.Forbidden("access denied")
	}
	if !domain.CanJoinRoom(b, conn.Actor) {
		return domain.Forbidden("booking is closed")
	}

	first := c.hub.Join(conn, b.ID)
	c.reply(conn, notify.EventBookingJoined, notify.JoinedPayload{BookingID: b.ID, Status: b.Status})
	if first {
		c.broadcaster.ToRoomExcept(b.ID, conn.Actor.ID).Emit(notify.EventBookingUserJoined, notify.PresencePayload{BookingID: b.ID, User: userRef(conn.Actor)})
		c.logger.Debug().Int64("booking_id", b.ID).Int64("user_id", conn.Actor.ID).Msg("joined booking room")
	}
	return nil
}

// leave is a no-op for rooms the connection is not in. Presence changes only
// when the user's last connection leaves.
func (c *Coordinator) leave(_ context.Context, conn *Conn, in inbound) error {
	if in.BookingID <= 0 {
		return nil
	}
	if c.hub.Leave(conn, in.BookingID) {
		c.broadcaster.ToRoom(in.BookingID).Emit(notify.EventBookingUserLeft, notify.PresencePayload{BookingID: in.BookingID, User: userRef(conn.Actor)})
	}
	return nil
}

func (c *Coordinator) getUsers(ctx context.Context, conn *Conn, in inbound) error {
	if err := requireBooking(in); err != nil {
		return err
	}
	b, err := c.loadBooking(ctx, in.BookingID)
	if err != nil {
		return err
	}
	if err := domain.AuthorizeView(b, conn.Actor); err != nil {
		return err
	}
	c.reply(conn, notify.EventBookingUsers, notify.UsersPayload{BookingID: b.ID, Users: c.hub.Members(b.ID)})
	return nil
}

func (c *Coordinator) typing(_ context.Context, conn *Conn, in inbound) error {
	if err := requireBooking(in); err != nil {
		return err
	}
	if !c.hub.InRoom(conn, in.BookingID) {
		return domain.Forbidden("join the booking room first")
	}
	c.broadcaster.ToRoomExcept(in.BookingID, conn.Actor.ID).Emit(notify.EventBookingUserTyping, notify.TypingPayload{
		BookingID: in.BookingID,
		User:      userRef(conn.Actor),
		IsTyping:  in.IsTyping,
	})
	return nil
}

func (c *Coordinator) send(ctx context.Context, conn *Conn, in inbound) error {
	if err := requireBooking(in); err != nil {
		return err
	}
	_, err := c.chat.SendInRoom(ctx, conn.Actor, in.BookingID, service.SendInput{
		Content:     in.Content,
		MessageType: in.MessageType,
		ImageURL:    in.ImageURL,
	}, c.hub.InRoom(conn, in.BookingID))
	return err
}

func (c *Coordinator) read(ctx context.Context, conn *Conn, in inbound) error {
	if err := requireBooking(in); err != nil {
		return err
	}
	if len(in.MessageIDs) == 0 {
		return domain.Invalid("message_ids", "message ids required")
	}
	_, err := c.chat.MarkRead(ctx, conn.Actor, in.BookingID, in.MessageIDs)
	return err
}

func (c *Coordinator) unreadCount(ctx context.Context, conn *Conn, in inbound) error {
	if err := requireBooking(in); err != nil {
		return err
	}
	n, err := c.chat.UnreadCount(ctx, conn.Actor, in.BookingID)
	if err != nil {
		return err
	}
	c.reply(conn, notify.EventMessageUnreadCount, notify.UnreadCountPayload{BookingID: in.BookingID, Count: n})
	return nil
}
