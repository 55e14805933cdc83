package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// ErrRateLimited is returned when a sender exceeds the chat message budget.
var ErrRateLimited = errors.New("too many messages, please slow down")

type MessageService struct {
	bookings   domain.BookingRepository
	messages   domain.MessageRepository
	limiter    domain.SessionStore
	notifier   Notifier
	logger     *zerolog.Logger
	rateLimit  int
	rateWindow time.Duration
	now        func() time.Time
}

func NewMessageService(
	bookings domain.BookingRepository,
	messages domain.MessageRepository,
	limiter domain.SessionStore,
	notifier Notifier,
	rateLimit int,
	rateWindow time.Duration,
	logger *zerolog.Logger,
) *MessageService {
	if rateLimit <= 0 {
		rateLimit = models.RateLimitMessages
	}
	if rateWindow <= 0 {
		rateWindow = models.RateLimitWindow * time.Second
	}
	return &MessageService{
		bookings:   bookings,
		messages:   messages,
		limiter:    limiter,
		notifier:   notifier,
		logger:     logger,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		now:        time.Now,
	}
}

type SendInput struct {
	Content     string
	MessageType models.MessageType
	ImageURL    string
}

func validateSend(in *SendInput) error {
	in.Content = strings.TrimSpace(in.Content)
	if in.MessageType == "" {
		in.MessageType = models.MessageText
	}
	var fields []domain.FieldError
	if in.Content == "" {
		fields = append(fields, domain.FieldError{Field: "content", Message: "content is required"})
	} else if utf8.RuneCountInString(in.Content) > models.MaxMessageLength {
		fields = append(fields, domain.FieldError{Field: "content", Message: fmt.Sprintf("message too long (max %d characters)", models.MaxMessageLength)})
	}
	switch in.MessageType {
	case models.MessageText:
	case models.MessageImage:
		if strings.TrimSpace(in.ImageURL) == "" {
			fields = append(fields, domain.FieldError{Field: "image_url", Message: "image messages need an image url"})
		}
	default:
		fields = append(fields, domain.FieldError{Field: "message_type", Message: "message type must be text or image"})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func (s *MessageService) loadBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, wrap(storeErr(err, "Booking"), "load booking")
	}
	return b, nil
}

// History returns the booking chat, oldest first.
func (s *MessageService) History(ctx context.Context, actor domain.Actor, bookingID int64, page models.Page) ([]*models.Message, int, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, 0, err
	}
	if err := domain.AuthorizeView(b, actor); err != nil {
		return nil, 0, err
	}
	items, total, err := s.messages.GetMessages(ctx, bookingID, page)
	return items, total, wrap(err, "load messages")
}

// Send is the request/response path: participants only, no room membership.
func (s *MessageService) Send(ctx context.Context, actor domain.Actor, bookingID int64, in SendInput) (*models.Message, error) {
	return s.send(ctx, actor, bookingID, in, func(b *models.Booking) error {
		return domain.AuthorizeParticipantSend(b, actor)
	})
}

// SendInRoom additionally requires the sender's connection to be in the room.
func (s *MessageService) SendInRoom(ctx context.Context, actor domain.Actor, bookingID int64, in SendInput, inRoom bool) (*models.Message, error) {
	return s.send(ctx, actor, bookingID, in, func(b *models.Booking) error {
		return domain.AuthorizeSend(b, actor, inRoom)
	})
}

// send persists first and only then broadcasts.
func (s *MessageService) send(ctx context.Context, actor domain.Actor, bookingID int64, in SendInput, authorize func(*models.Booking) error) (*models.Message, error) {
	if err := validateSend(&in); err != nil {
		return nil, err
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(b); err != nil {
		return nil, err
	}
	if err := s.checkRate(ctx, actor.ID); err != nil {
		return nil, err
	}

	senderID := actor.ID
	msg := &models.Message{
		BookingID:   bookingID,
		SenderID:    &senderID,
		Content:     in.Content,
		MessageType: in.MessageType,
		ImageURL:    in.ImageURL,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	s.logger.Debug().Int64("booking_id", bookingID).Int64("sender_id", actor.ID).Int64("message_id", msg.ID).Msg("message sent")
	s.notifier.NewMessage(b, msg, actor)
	return msg, nil
}

func (s *MessageService) checkRate(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.CheckRateLimit(ctx, fmt.Sprintf("chat:%d", userID), s.rateLimit, s.rateWindow)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("chat rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// MarkRead records receipts for the actor and tells the rest of the room about
// the messages that were newly read. Repeating the call is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, actor domain.Actor, bookingID int64, messageIDs []int64) ([]int64, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !domain.IsParticipant(b, actor.ID) {
		return nil, domain.Forbidden("only booking participants can mark messages read")
	}

	at := s.now().UTC()
	marked, err := s.messages.MarkMessagesRead(ctx, bookingID, actor.ID, messageIDs, at)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	if len(marked) > 0 {
		s.notifier.ReadReceipt(bookingID, marked, actor, at)
	}
	return marked, nil
}

func (s *MessageService) UnreadCount(ctx context.Context, actor domain.Actor, bookingID int64) (int, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	if err := domain.AuthorizeView(b, actor); err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnread(ctx, bookingID, actor.ID)
	return n, wrap(err, "count unread messages")
}
