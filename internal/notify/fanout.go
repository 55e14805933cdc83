package notify

import (
	"context"
	"fmt"
	"time"

	"helpr/internal/domain"
	"helpr/internal/events"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// Fanout delivers booking and chat notifications over the Broadcaster.
// Personal-channel and room deliveries are independent and best-effort.
type Fanout struct {
	broadcaster domain.Broadcaster
	messages    domain.MessageRepository
	events      domain.EventPublisher
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewFanout(b domain.Broadcaster, messages domain.MessageRepository, publisher domain.EventPublisher, logger *zerolog.Logger) *Fanout {
	return &Fanout{
		broadcaster: b,
		messages:    messages,
		events:      publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// StatusChanged notifies the customer, the helper when assigned and the room.
func (f *Fanout) StatusChanged(b *models.Booking) {
	at := f.now().UTC()
	updated := BookingUpdatedPayload{BookingID: b.ID, Status: b.Status, UpdatedAt: at}

	f.broadcaster.ToUser(b.CustomerID).Emit(EventBookingUpdated, updated)
	if b.HelperID != nil {
		f.broadcaster.ToUser(*b.HelperID).Emit(EventBookingUpdated, updated)
	}
	f.broadcaster.ToRoom(b.ID).Emit(EventBookingStatusChanged, StatusChangedPayload{
		BookingID: b.ID,
		Status:    b.Status,
		ChangedAt: at,
	})
}

// Accepted tells the customer who took the booking.
func (f *Fanout) Accepted(b *models.Booking, helper domain.Actor) {
	f.broadcaster.ToUser(b.CustomerID).Emit(EventBookingAccepted, AcceptedPayload{
		BookingID: b.ID,
		Helper:    UserRef{ID: helper.ID, Name: helper.Name},
		Status:    b.Status,
	})
}

// NewAvailable announces a fresh booking to every connected helper.
func (f *Fanout) NewAvailable(b *models.Booking, svc *models.Service) {
	f.broadcaster.ToRole(models.RoleHelper).Emit(EventBookingNewAvailable, NewAvailablePayload{
		BookingID:   b.ID,
		Service:     ServiceRef{ID: svc.ID, Name: svc.Name, Category: svc.Category},
		Location:    b.Location.Address,
		ScheduledAt: b.ScheduledAt,
		CreatedAt:   b.CreatedAt,
	})
}

// Transitioned runs the full fan-out for a committed transition made by actor.
// The system message is persisted; failing to persist it is logged and
// does not undo the transition.
func (f *Fanout) Transitioned(ctx context.Context, b *models.Booking, actor domain.Actor) {
	if b.Status == models.StatusAccepted {
		f.Accepted(b, actor)
	}
	f.StatusChanged(b)

	if _, err := f.SystemMessage(ctx, b.ID, SystemText(b.Status, actor.Name)); err != nil {
		f.logger.Error().Err(err).Int64("booking_id", b.ID).Str("status", string(b.Status)).Msg("failed to persist system message")
	}
}

// SystemMessage persists a sender-less message and broadcasts it to the room.
func (f *Fanout) SystemMessage(ctx context.Context, bookingID int64, content string) (*models.Message, error) {
	msg := &models.Message{
		BookingID:   bookingID,
		Content:     content,
		MessageType: models.MessageSystem,
		CreatedAt:   f.now().UTC(),
	}
	if err := f.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create system message: %w", err)
	}
	f.publishMessage(msg)
	f.broadcaster.ToRoom(bookingID).Emit(EventMessageNew, RenderMessage(msg, nil))
	return msg, nil
}

// NewMessage broadcasts a persisted participant message to the room and
// pushes a preview to the other participant's personal channel.
func (f *Fanout) NewMessage(b *models.Booking, msg *models.Message, sender domain.Actor) {
	f.publishMessage(msg)
	ref := &UserRef{ID: sender.ID, Name: sender.Name, Role: sender.Role}
	f.broadcaster.ToRoom(b.ID).Emit(EventMessageNew, RenderMessage(msg, ref))

	recipient, ok := domain.OtherParticipant(b, sender.ID)
	if !ok || recipient == sender.ID {
		return
	}
	f.broadcaster.ToUser(recipient).Emit(EventNotificationMessage, PreviewPayload{
		BookingID:  b.ID,
		SenderName: sender.Name,
		Preview:    Preview(msg.Content),
		CreatedAt:  msg.CreatedAt,
	})
}

// ReadReceipt tells other room members which messages reader has seen.
func (f *Fanout) ReadReceipt(bookingID int64, messageIDs []int64, reader domain.Actor, at time.Time) {
	f.broadcaster.ToRoomExcept(bookingID, reader.ID).Emit(EventMessageReadReceipt, ReadReceiptPayload{
		BookingID:  bookingID,
		MessageIDs: messageIDs,
		ReadBy:     UserRef{ID: reader.ID, Name: reader.Name},
		ReadAt:     at,
	})
}

func (f *Fanout) publishMessage(msg *models.Message) {
	if f.events == nil {
		return
	}
	_ = f.events.PublishJSON(events.EventMessageCreated, events.MessageEventPayload{
		MessageID:   msg.ID,
		BookingID:   msg.BookingID,
		SenderID:    msg.SenderID,
		MessageType: string(msg.MessageType),
	})
}

func RenderMessage(msg *models.Message, sender *UserRef) MessagePayload {
	return MessagePayload{
		ID:          msg.ID,
		BookingID:   msg.BookingID,
		Sender:      sender,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		ImageURL:    msg.ImageURL,
		CreatedAt:   msg.CreatedAt,
	}
}

// SystemText is the chat line posted when a booking enters status.
func SystemText(status models.BookingStatus, actorName string) string {
	switch status {
	case models.StatusAccepted:
		return actorName + " has accepted this booking"
	case models.StatusInProgress:
		return actorName + " has started working on this booking"
	case models.StatusCompleted:
		return actorName + " has marked this booking as complete"
	case models.StatusClosed:
		return actorName + " has closed this booking"
	case models.StatusCancelled:
		return "This booking was cancelled by an administrator"
	case models.StatusDisputed:
		return "This booking has been placed under dispute by an administrator"
	case models.StatusForceClosed:
		return "This booking was closed by an administrator"
	default:
		return "Booking status changed to " + string(status)
	}
}
