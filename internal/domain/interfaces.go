package domain

import (
	"context"
	"time"

	"helpr/internal/models"
)

// BookingRepository persists bookings. UpdateBookingTransition must write the
// status, helper assignment, the new history entry and the optional audit
// record as one unit, conditional on the booking still being in fromStatus at
// fromVersion.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter, page models.Page) ([]*models.Booking, int, error)
	UpdateBookingTransition(ctx context.Context, after *models.Booking, fromStatus models.BookingStatus, fromVersion int64, action *models.AdminAction) error
	RateBooking(ctx context.Context, bookingID int64, rating int, review string) error
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, bookingID int64, page models.Page) ([]*models.Message, int, error)
	MarkMessagesRead(ctx context.Context, bookingID, userID int64, messageIDs []int64, at time.Time) ([]int64, error)
	CountUnread(ctx context.Context, bookingID, userID int64) (int, error)
}

// UserRepository persists users. ModerateUser is conditional on the stored
// moderation state matching from and writes the optional audit record in the
// same unit.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	ModerateUser(ctx context.Context, user *models.User, from models.Moderation, action *models.AdminAction) error
	ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) ([]*models.User, int, error)
	ListVerifiedHelpers(ctx context.Context, category models.ServiceCategory, page models.Page) ([]*models.User, int, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

type ServiceRepository interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, category models.ServiceCategory, activeOnly bool) ([]*models.Service, error)
	CreateService(ctx context.Context, svc *models.Service, action *models.AdminAction) error
	UpdateService(ctx context.Context, svc *models.Service, action *models.AdminAction) error
}

// AuditStore reads the audit trail. Records are only ever written by the
// repository that commits the audited change.
type AuditStore interface {
	ListAdminActions(ctx context.Context, filter models.AuditFilter, page models.Page) ([]*models.AdminAction, int, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, userID int64) (*models.Session, error)
	DeleteSession(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Emitter delivers one event to whatever audience it was scoped to.
type Emitter interface {
	Emit(event string, payload any)
}

// Broadcaster scopes real-time delivery. All delivery is best-effort.
type Broadcaster interface {
	ToRoom(bookingID int64) Emitter
	// ToRoomExcept reaches every room member other than userID's connections.
	ToRoomExcept(bookingID, userID int64) Emitter
	ToUser(userID int64) Emitter
	ToRole(role models.Role) Emitter
}

// ConnectionCloser drops a user's live real-time connections.
type ConnectionCloser interface {
	DisconnectUser(userID int64)
}
