package notify

import (
	"time"

	"helpr/internal/models"
)

// Outbound real-time event names.
const (
	EventBookingJoined        = "booking:joined"
	EventBookingUserJoined    = "booking:user-joined"
	EventBookingUserLeft      = "booking:user-left"
	EventBookingUsers         = "booking:users"
	EventBookingUserTyping    = "booking:user-typing"
	EventBookingUpdated       = "booking:updated"
	EventBookingStatusChanged = "booking:status-changed"
	EventBookingAccepted      = "booking:accepted"
	EventBookingNewAvailable  = "booking:new-available"
	EventMessageNew           = "message:new"
	EventNotificationMessage  = "notification:new-message"
	EventMessageReadReceipt   = "message:read-receipt"
	EventMessageUnreadCount   = "message:unread-count"
	EventError                = "error"
)

type BookingUpdatedPayload struct {
	BookingID int64                `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type StatusChangedPayload struct {
	BookingID int64                `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
	ChangedAt time.Time            `json:"changed_at"`
}

type UserRef struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Role models.Role `json:"role,omitempty"`
}

type AcceptedPayload struct {
	BookingID int64                `json:"booking_id"`
	Helper    UserRef              `json:"helper"`
	Status    models.BookingStatus `json:"status"`
}

type ServiceRef struct {
	ID       int64                  `json:"id"`
	Name     string                 `json:"name"`
	Category models.ServiceCategory `json:"category"`
}

type NewAvailablePayload struct {
	BookingID   int64      `json:"booking_id"`
	Service     ServiceRef `json:"service"`
	Location    string     `json:"location"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MessagePayload is a message as rendered to room members. Sender is nil for
// system messages.
type MessagePayload struct {
	ID          int64              `json:"id"`
	BookingID   int64              `json:"booking_id"`
	Sender      *UserRef           `json:"sender"`
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"message_type"`
	ImageURL    string             `json:"image_url,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

type PreviewPayload struct {
	BookingID  int64     `json:"booking_id"`
	SenderName string    `json:"sender_name"`
	Preview    string    `json:"preview"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReadReceiptPayload struct {
	BookingID  int64     `json:"booking_id"`
	MessageIDs []int64   `json:"message_ids"`
	ReadBy     UserRef   `json:"read_by"`
	ReadAt     time.Time `json:"read_at"`
}

type JoinedPayload struct {
	BookingID int64                `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
}

// PresencePayload carries booking:user-joined and booking:user-left.
type PresencePayload struct {
	BookingID int64   `json:"booking_id"`
	User      UserRef `json:"user"`
}

type UsersPayload struct {
	BookingID int64     `json:"booking_id"`
	Users     []UserRef `json:"users"`
}

type TypingPayload struct {
	BookingID int64   `json:"booking_id"`
	User      UserRef `json:"user"`
	IsTyping  bool    `json:"is_typing"`
}

type UnreadCountPayload struct {
	BookingID int64 `json:"booking_id"`
	Count     int   `json:"count"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// Preview truncates content to at most models.PreviewLength runes.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= models.PreviewLength {
		return content
	}
	return string(runes[:models.PreviewLength])
}
