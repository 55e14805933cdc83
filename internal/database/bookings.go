package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpr/internal/domain"
	"helpr/internal/models"
)

const bookingColumns = `b.id, b.customer_id, b.helper_id, b.service_id, b.description, b.address,
	b.lat, b.lng, b.scheduled_at, b.estimated_duration, b.status, b.completed_at,
	b.customer_rating, b.customer_review, b.admin_notes, b.created_at, b.updated_at, b.version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b           models.Booking
		helperID    sql.NullInt64
		lat, lng    sql.NullFloat64
		completedAt sql.NullTime
		rating      sql.NullInt64
		status      string
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &helperID, &b.ServiceID, &b.Description, &b.Location.Address,
		&lat, &lng, &b.ScheduledAt, &b.EstimatedDuration, &status, &completedAt,
		&rating, &b.CustomerReview, &b.AdminNotes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.HelperID = int64Ptr(helperID)
	b.CompletedAt = timePtr(completedAt)
	if lat.Valid {
		b.Location.Lat = &lat.Float64
	}
	if lng.Valid {
		b.Location.Lng = &lng.Float64
	}
	if rating.Valid {
		r := int(rating.Int64)
		b.CustomerRating = &r
	}
	return &b, nil
}

// CreateBooking inserts the booking together with its seeded history.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO bookings (
				customer_id, helper_id, service_id, description, address, lat, lng,
				scheduled_at, estimated_duration, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := booking.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := tx.ExecContext(ctx, query,
		booking.CustomerID,
		nullInt64(booking.HelperID),
		booking.ServiceID,
		booking.Description,
		booking.Location.Address,
		booking.Location.Lat,
		booking.Location.Lng,
		booking.ScheduledAt.UTC(),
		booking.EstimatedDuration,
		string(booking.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, entry := range booking.StatusHistory {
		if err := insertHistory(ctx, tx, id, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, bookingID int64, entry models.StatusChange) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO booking_status_history (booking_id, status, changed_by, changed_at, reason) VALUES (?, ?, ?, ?, ?)`,
		bookingID, string(entry.Status), entry.ChangedBy, entry.ChangedAt.UTC(), entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.StatusHistory, err = db.getStatusHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (db *DB) getStatusHistory(ctx context.Context, bookingID int64) ([]models.StatusChange, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT status, changed_by, changed_at, reason FROM booking_status_history WHERE booking_id = ? ORDER BY id ASC`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var history []models.StatusChange
	for rows.Next() {
		var (
			entry  models.StatusChange
			status string
		)
		if err := rows.Scan(&status, &entry.ChangedBy, &entry.ChangedAt, &entry.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		entry.Status = models.BookingStatus(status)
		history = append(history, entry)
	}
	return history, rows.Err()
}

func bookingWhere(filter models.BookingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID != nil {
		conds = append(conds, "b.customer_id = ?")
		args = append(args, *filter.CustomerID)
	}
	if filter.HelperID != nil {
		conds = append(conds, "b.helper_id = ?")
		args = append(args, *filter.HelperID)
	}
	if filter.Status != "" {
		conds = append(conds, "b.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.FromTime != nil {
		conds = append(conds, "b.scheduled_at >= ?")
		args = append(args, filter.FromTime.UTC())
	}
	if len(filter.Categories) > 0 {
		conds = append(conds, "s.category IN ("+placeholders(len(filter.Categories))+")")
		for _, c := range filter.Categories {
			args = append(args, string(c))
		}
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListBookings returns one page of bookings matching filter and the total match count.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter, page models.Page) ([]*models.Booking, int, error) {
	from := ` FROM bookings b JOIN services s ON s.id = b.service_id`
	where, args := bookingWhere(filter)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	order := ` ORDER BY b.created_at DESC, b.id DESC`
	if filter.FromTime != nil {
		order = ` ORDER BY b.scheduled_at ASC, b.id ASC`
	}
	query := `SELECT ` + bookingColumns + from + where + order + ` LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	rows.Close()

	// history is loaded after the cursor is released; the pool holds a single connection
	for _, b := range bookings {
		if b.StatusHistory, err = db.getStatusHistory(ctx, b.ID); err != nil {
			return nil, 0, err
		}
	}
	return bookings, total, nil
}

// UpdateBookingTransition persists a transition computed by the domain layer.
// The row is only updated if it is still at fromStatus/fromVersion; otherwise
// ErrConcurrentModification is returned and nothing is written. A non-nil
// action is inserted in the same transaction, so a failed audit write leaves
// the booking untouched.
func (db *DB) UpdateBookingTransition(
	ctx context.Context,
	after *models.Booking,
	fromStatus models.BookingStatus,
	fromVersion int64,
	action *models.AdminAction,
) error {
	if err := domain.CheckBooking(after); err != nil {
		return fmt.Errorf("refusing to persist booking %d: %w", after.ID, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE bookings
	          SET status = ?, helper_id = ?, completed_at = ?, admin_notes = ?, updated_at = ?, version = version + 1
	          WHERE id = ? AND status = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		string(after.Status),
		nullInt64(after.HelperID),
		nullTime(after.CompletedAt),
		after.AdminNotes,
		after.UpdatedAt.UTC(),
		after.ID,
		string(fromStatus),
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}

	if err := insertHistory(ctx, tx, after.ID, after.StatusHistory[len(after.StatusHistory)-1]); err != nil {
		return err
	}

	if after.Status == models.StatusCompleted && after.HelperID != nil {
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET total_bookings = total_bookings + 1, updated_at = ? WHERE id = ?`,
			after.UpdatedAt.UTC(), *after.HelperID,
		)
		if err != nil {
			return fmt.Errorf("failed to increment helper bookings: %w", err)
		}
	}

	if action != nil {
		if err := insertAdminAction(ctx, tx, action); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	after.Version = fromVersion + 1
	return nil
}

// RateBooking stores the customer's rating once and refreshes the helper average.
func (db *DB) RateBooking(ctx context.Context, bookingID int64, rating int, review string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET customer_rating = ?, customer_review = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND customer_rating IS NULL AND status IN (?, ?)`,
		rating, review, time.Now().UTC(), bookingID,
		string(models.StatusCompleted), string(models.StatusClosed),
	)
	if err != nil {
		return fmt.Errorf("failed to rate booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}

	var helperID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT helper_id FROM bookings WHERE id = ?`, bookingID).Scan(&helperID); err != nil {
		return fmt.Errorf("failed to load booking helper: %w", err)
	}

	if helperID.Valid {
		// full recompute over every rated booking of the helper
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET rating = COALESCE((
				SELECT ROUND(AVG(customer_rating), 1) FROM bookings
				WHERE helper_id = ? AND customer_rating IS NOT NULL
			 ), 0), updated_at = ? WHERE id = ?`,
			helperID.Int64, time.Now().UTC(), helperID.Int64,
		)
		if err != nil {
			return fmt.Errorf("failed to update helper rating: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rating: %w", err)
	}
	return nil
}
