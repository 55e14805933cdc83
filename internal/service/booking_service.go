package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"helpr/internal/audit"
	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/events"
	"helpr/internal/metrics"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

type BookingService struct {
	bookings domain.BookingRepository
	users    domain.UserRepository
	services domain.ServiceRepository
	notifier Notifier
	auditor  Auditor
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(
	bookings domain.BookingRepository,
	users domain.UserRepository,
	services domain.ServiceRepository,
	notifier Notifier,
	auditor Auditor,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		bookings: bookings,
		users:    users,
		services: services,
		notifier: notifier,
		auditor:  auditor,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateBookingInput struct {
	ServiceID         int64
	Description       string
	Address           string
	Lat               *float64
	Lng               *float64
	ScheduledAt       time.Time
	EstimatedDuration int
}

func (s *BookingService) validateCreate(in *CreateBookingInput) error {
	var fields []domain.FieldError
	add := func(field, msg string) { fields = append(fields, domain.FieldError{Field: field, Message: msg}) }

	in.Description = strings.TrimSpace(in.Description)
	in.Address = strings.TrimSpace(in.Address)

	if in.ServiceID <= 0 {
		add("service_id", "service is required")
	}
	if n := utf8.RuneCountInString(in.Description); n < models.MinDescriptionLength || n > models.MaxDescriptionLength {
		add("description", fmt.Sprintf("description must be %d-%d characters", models.MinDescriptionLength, models.MaxDescriptionLength))
	}
	if utf8.RuneCountInString(in.Address) < models.MinAddressLength {
		add("location.address", fmt.Sprintf("address must be at least %d characters", models.MinAddressLength))
	}
	if !in.ScheduledAt.After(s.now()) {
		add("scheduled_at", "scheduled time must be in the future")
	}
	if in.EstimatedDuration == 0 {
		in.EstimatedDuration = models.DefaultEstimatedDuration
	}
	if in.EstimatedDuration < models.MinEstimatedDuration || in.EstimatedDuration > models.MaxEstimatedDuration {
		add("estimated_duration", fmt.Sprintf("duration must be %d-%d minutes", models.MinEstimatedDuration, models.MaxEstimatedDuration))
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		add("location.coordinates", "lat and lng must be provided together")
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Create opens a REQUESTED booking for the customer and announces it to helpers.
func (s *BookingService) Create(ctx context.Context, actor domain.Actor, in CreateBookingInput) (*models.Booking, error) {
	if actor.Role != models.RoleCustomer {
		return nil, domain.Forbidden("only customers can create bookings")
	}
	if err := s.validateCreate(&in); err != nil {
		return nil, err
	}

	svc, err := s.services.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, wrap(storeErr(err, "Service"), "load service")
	}
	if !svc.IsActive {
		return nil, domain.NotFound("Service")
	}

	b := domain.NewBooking(&models.Booking{
		CustomerID:        actor.ID,
		ServiceID:         svc.ID,
		Description:       in.Description,
		Location:          models.Location{Address: in.Address, Lat: in.Lat, Lng: in.Lng},
		ScheduledAt:       in.ScheduledAt.UTC(),
		EstimatedDuration: in.EstimatedDuration,
	}, s.now().UTC())

	if err := s.bookings.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.Info().Int64("booking_id", b.ID).Int64("customer_id", actor.ID).Int64("service_id", svc.ID).Msg("booking created")
	s.publish(events.EventBookingCreated, b, "", actor.ID, "")
	s.notifier.NewAvailable(b, svc)
	return b, nil
}

// Get returns a booking the actor may view.
func (s *BookingService) Get(ctx context.Context, actor domain.Actor, id int64) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, wrap(err, "load booking")
	}
	if err := domain.AuthorizeView(b, actor); err != nil {
		return nil, err
	}
	return b, nil
}

// ListMine lists the customer's own bookings or the helper's assigned ones.
func (s *BookingService) ListMine(ctx context.Context, actor domain.Actor, status models.BookingStatus, page models.Page) ([]*models.Booking, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.Invalid("status", "unknown status")
	}
	filter := models.BookingFilter{Status: status}
	switch actor.Role {
	case models.RoleHelper:
		filter.HelperID = &actor.ID
	default:
		filter.CustomerID = &actor.ID
	}
	items, total, err := s.bookings.ListBookings(ctx, filter, page)
	return items, total, wrap(err, "list bookings")
}

// ListAvailable lists future REQUESTED bookings in the helper's categories.
func (s *BookingService) ListAvailable(ctx context.Context, actor domain.Actor, category models.ServiceCategory, page models.Page) ([]*models.Booking, int, error) {
	if actor.Role != models.RoleHelper {
		return nil, 0, domain.Forbidden("only helpers can browse available bookings")
	}
	user, err := loadUser(ctx, s.users, actor.ID)
	if err != nil {
		return nil, 0, wrap(err, "load helper")
	}

	from := s.now().UTC()
	filter := models.BookingFilter{Status: models.StatusRequested, FromTime: &from}
	if category != "" {
		filter.Categories = []models.ServiceCategory{category}
	} else if user.HelperProfile != nil && len(user.HelperProfile.Services) > 0 {
		filter.Categories = user.HelperProfile.Services
	}
	items, total, err := s.bookings.ListBookings(ctx, filter, page)
	return items, total, wrap(err, "list available bookings")
}

// ListAll is the admin view over every booking.
func (s *BookingService) ListAll(ctx context.Context, actor domain.Actor, status models.BookingStatus, page models.Page) ([]*models.Booking, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, domain.Forbidden("admin access required")
	}
	if status != "" && !status.Valid() {
		return nil, 0, domain.Invalid("status", "unknown status")
	}
	items, total, err := s.bookings.ListBookings(ctx, models.BookingFilter{Status: status}, page)
	return items, total, wrap(err, "list bookings")
}

// Accept assigns the helper and moves the booking to ACCEPTED in one write.
func (s *BookingService) Accept(ctx context.Context, actor domain.Actor, id int64) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.StatusAccepted, "", func(b *models.Booking) error {
		return domain.AuthorizeAccept(b, actor)
	}, func(next *models.Booking) {
		helperID := actor.ID
		next.HelperID = &helperID
	})
}

func (s *BookingService) Start(ctx context.Context, actor domain.Actor, id int64) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.StatusInProgress, "", func(b *models.Booking) error {
		return domain.AuthorizeStart(b, actor)
	}, nil)
}

func (s *BookingService) Complete(ctx context.Context, actor domain.Actor, id int64) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.StatusCompleted, "", func(b *models.Booking) error {
		return domain.AuthorizeComplete(b, actor)
	}, nil)
}

func (s *BookingService) Close(ctx context.Context, actor domain.Actor, id int64) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.StatusClosed, "", func(b *models.Booking) error {
		return domain.AuthorizeClose(b, actor)
	}, nil)
}

func (s *BookingService) AdminCancel(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.Booking, error) {
	return s.adminTransition(ctx, actor, id, "cancel", models.StatusCancelled, models.ActionBookingCancel, reason, prov)
}

func (s *BookingService) AdminDispute(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.Booking, error) {
	return s.adminTransition(ctx, actor, id, "dispute", models.StatusDisputed, models.ActionBookingDispute, reason, prov)
}

func (s *BookingService) AdminForceClose(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.Booking, error) {
	return s.adminTransition(ctx, actor, id, "force-close", models.StatusForceClosed, models.ActionBookingForceClose, reason, prov)
}

func (s *BookingService) adminTransition(
	ctx context.Context,
	actor domain.Actor,
	id int64,
	action string,
	to models.BookingStatus,
	actionType models.ActionType,
	reason string,
	prov models.Provenance,
) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > models.MaxReasonLength {
		return nil, domain.Invalid("reason", fmt.Sprintf("reason must be at most %d characters", models.MaxReasonLength))
	}

	var record *models.AdminAction
	next, err := s.commit(ctx, actor, id, to, reason, func(b *models.Booking) error {
		if err := domain.AuthorizeAdminTransition(b, actor, action, to); err != nil {
			if errors.Is(err, domain.ErrForbidden) {
				s.logger.Warn().Int64("actor_id", actor.ID).Int64("booking_id", id).Str("action", action).Msg("forbidden admin booking action")
			}
			return err
		}
		return nil
	}, func(next *models.Booking) {
		next.AdminNotes = reason
	}, func(prev, next *models.Booking) (*models.AdminAction, error) {
		var err error
		record, err = s.auditor.Prepare(audit.Entry{
			AdminID:    actor.ID,
			ActionType: actionType,
			TargetType: models.TargetBooking,
			TargetID:   next.ID,
			Previous:   map[string]any{"status": string(prev.Status)},
			New:        map[string]any{"status": string(next.Status)},
			Reason:     reason,
			Provenance: prov,
		})
		return record, err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Committed(record)
	s.notifier.Transitioned(ctx, next, actor)
	return next, nil
}

func (s *BookingService) transition(
	ctx context.Context,
	actor domain.Actor,
	id int64,
	to models.BookingStatus,
	reason string,
	authorize func(b *models.Booking) error,
	mutate func(next *models.Booking),
) (*models.Booking, error) {
	next, err := s.commit(ctx, actor, id, to, reason, authorize, mutate, nil)
	if err != nil {
		return nil, err
	}
	s.notifier.Transitioned(ctx, next, actor)
	return next, nil
}

// commit loads, authorizes, applies and conditionally persists one transition.
// When record is set, the audit record it builds is written in the same
// transaction as the booking. Losing a race to a concurrent writer is reported
// as a transition error naming the state the booking moved to.
func (s *BookingService) commit(
	ctx context.Context,
	actor domain.Actor,
	id int64,
	to models.BookingStatus,
	reason string,
	authorize func(b *models.Booking) error,
	mutate func(next *models.Booking),
	record func(prev, next *models.Booking) (*models.AdminAction, error),
) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, wrap(err, "load booking")
	}
	if err := authorize(b); err != nil {
		return nil, err
	}

	next := domain.ApplyTransitionAt(b, to, actor.ID, reason, s.now().UTC())
	if mutate != nil {
		mutate(next)
	}

	var action *models.AdminAction
	if record != nil {
		if action, err = record(b, next); err != nil {
			return nil, err
		}
	}

	if err := s.bookings.UpdateBookingTransition(ctx, next, b.Status, b.Version, action); err != nil {
		if !errors.Is(err, database.ErrConcurrentModification) {
			return nil, fmt.Errorf("failed to update booking: %w", err)
		}
		metrics.IncTransitionConflict()
		current, loadErr := s.loadBooking(ctx, id)
		if loadErr != nil {
			return nil, wrap(loadErr, "reload booking")
		}
		s.logger.Debug().Int64("booking_id", id).Str("target", string(to)).Str("current", string(current.Status)).Msg("lost booking transition race")
		return nil, &domain.TransitionError{Action: actionName(to), From: current.Status, To: to}
	}

	s.logger.Info().
		Int64("booking_id", next.ID).
		Int64("actor_id", actor.ID).
		Str("from", string(b.Status)).
		Str("to", string(next.Status)).
		Msg("booking transitioned")
	s.publish(events.EventBookingStatusChanged, next, b.Status, actor.ID, reason)
	return next, nil
}

// Rate stores the customer's one-time rating and refreshes the helper average.
func (s *BookingService) Rate(ctx context.Context, actor domain.Actor, id int64, rating int, review string) (*models.Booking, error) {
	review = strings.TrimSpace(review)
	if rating < models.MinRating || rating > models.MaxRating {
		return nil, domain.Invalid("rating", fmt.Sprintf("rating must be between %d and %d", models.MinRating, models.MaxRating))
	}
	if utf8.RuneCountInString(review) > models.MaxReviewLength {
		return nil, domain.Invalid("review", fmt.Sprintf("review must be at most %d characters", models.MaxReviewLength))
	}

	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, wrap(err, "load booking")
	}
	if err := domain.AuthorizeRate(b, actor); err != nil {
		return nil, err
	}

	if err := s.bookings.RateBooking(ctx, id, rating, review); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, domain.Conflict("booking has already been rated")
		}
		return nil, fmt.Errorf("failed to rate booking: %w", err)
	}

	rated, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, wrap(err, "reload booking")
	}
	s.publish(events.EventBookingRated, rated, "", actor.ID, "")
	return rated, nil
}

func (s *BookingService) publish(eventType string, b *models.Booking, from models.BookingStatus, actorID int64, reason string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		HelperID:   b.HelperID,
		ServiceID:  b.ServiceID,
		From:       string(from),
		Status:     string(b.Status),
		ChangedBy:  actorID,
		Reason:     reason,
		At:         b.UpdatedAt,
	}
	if b.CustomerRating != nil {
		payload.Rating = *b.CustomerRating
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("booking_id", b.ID).Msg("failed to publish event")
	}
}

func actionName(to models.BookingStatus) string {
	switch to {
	case models.StatusAccepted:
		return "accept"
	case models.StatusInProgress:
		return "start"
	case models.StatusCompleted:
		return "complete"
	case models.StatusClosed:
		return "close"
	case models.StatusCancelled:
		return "cancel"
	case models.StatusDisputed:
		return "dispute"
	case models.StatusForceClosed:
		return "force-close"
	}
	return strings.ToLower(string(to))
}
