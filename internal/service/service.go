package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpr/internal/audit"
	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/models"
)

// Notifier is the fan-out surface the services depend on.
type Notifier interface {
	Transitioned(ctx context.Context, b *models.Booking, actor domain.Actor)
	NewAvailable(b *models.Booking, svc *models.Service)
	NewMessage(b *models.Booking, msg *models.Message, sender domain.Actor)
	ReadReceipt(bookingID int64, messageIDs []int64, reader domain.Actor, at time.Time)
}

// Auditor builds the audit record written with an admin change and announces
// it once the change has committed.
type Auditor interface {
	Prepare(e audit.Entry) (*models.AdminAction, error)
	Committed(action *models.AdminAction)
}

// storeErr maps persistence sentinels into the domain taxonomy.
func storeErr(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return domain.NotFound(entity)
	case errors.Is(err, database.ErrDuplicate):
		return domain.Conflict(entity + " already exists")
	default:
		return err
	}
}

func (s *BookingService) loadBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Booking")
	}
	return b, nil
}

func loadUser(ctx context.Context, users domain.UserRepository, id int64) (*models.User, error) {
	u, err := users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	return u, nil
}

func wrap(err error, action string) error {
	if err == nil || domain.IsClientError(err) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
