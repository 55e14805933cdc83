package database

import (
	"context"
	"testing"
	"time"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	lat, lng := 51.5, -0.12
	b := newRequestedBooking(f, time.Now().Add(24*time.Hour).UTC())
	b.Location.Lat = &lat
	b.Location.Lng = &lng
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, got.Status)
	assert.Nil(t, got.HelperID)
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, f.customer.ID, got.StatusHistory[0].ChangedBy)
	require.NotNil(t, got.Location.Lat)
	assert.InDelta(t, 51.5, *got.Location.Lat, 0.0001)
	assert.Equal(t, 90, got.EstimatedDuration)

	_, err = db.GetBooking(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBookingTransition(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	b := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
	require.NoError(t, db.CreateBooking(ctx, b))

	accepted := domain.ApplyTransition(b, models.StatusAccepted, f.helper.ID, "")
	accepted.HelperID = &f.helper.ID
	require.NoError(t, db.UpdateBookingTransition(ctx, accepted, b.Status, b.Version, nil))
	assert.Equal(t, int64(2), accepted.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	require.NotNil(t, got.HelperID)
	assert.Equal(t, f.helper.ID, *got.HelperID)
	assert.Len(t, got.StatusHistory, 2)
	assert.NoError(t, domain.CheckBooking(got))

	// stale version is rejected without side effects
	stale := domain.ApplyTransition(b, models.StatusCancelled, 1, "late")
	err = db.UpdateBookingTransition(ctx, stale, b.Status, b.Version, nil)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Len(t, got.StatusHistory, 2)
}

func TestCompletionIncrementsHelperBookings(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	b := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
	require.NoError(t, db.CreateBooking(ctx, b))

	cur := b
	for _, to := range []models.BookingStatus{models.StatusAccepted, models.StatusInProgress, models.StatusCompleted} {
		next := domain.ApplyTransition(cur, to, f.helper.ID, "")
		next.HelperID = &f.helper.ID
		require.NoError(t, db.UpdateBookingTransition(ctx, next, cur.Status, cur.Version, nil))
		cur = next
	}

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)

	helper, err := db.GetUserByID(ctx, f.helper.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, helper.HelperProfile.TotalBookings)
}

func TestRateBooking(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	complete := func() *models.Booking {
		b := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
		require.NoError(t, db.CreateBooking(ctx, b))
		cur := b
		for _, to := range []models.BookingStatus{models.StatusAccepted, models.StatusInProgress, models.StatusCompleted} {
			next := domain.ApplyTransition(cur, to, f.helper.ID, "")
			next.HelperID = &f.helper.ID
			require.NoError(t, db.UpdateBookingTransition(ctx, next, cur.Status, cur.Version, nil))
			cur = next
		}
		return cur
	}

	first := complete()
	second := complete()

	require.NoError(t, db.RateBooking(ctx, first.ID, 5, "Spotless"))
	require.NoError(t, db.RateBooking(ctx, second.ID, 4, ""))

	assert.ErrorIs(t, db.RateBooking(ctx, first.ID, 1, "again"), ErrConcurrentModification)

	got, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CustomerRating)
	assert.Equal(t, 5, *got.CustomerRating)
	assert.Equal(t, "Spotless", got.CustomerReview)

	helper, err := db.GetUserByID(ctx, f.helper.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, helper.HelperProfile.Rating, 0.001)

	open := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
	require.NoError(t, db.CreateBooking(ctx, open))
	assert.ErrorIs(t, db.RateBooking(ctx, open.ID, 3, ""), ErrConcurrentModification)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	tech := &models.Service{Name: "Tech Support", Category: models.CategoryTech, IsActive: true}
	require.NoError(t, db.CreateService(ctx, tech, nil))
	care := &models.Service{Name: "Elder Care", Category: models.CategoryCare, IsActive: true}
	require.NoError(t, db.CreateService(ctx, care, nil))

	future := time.Now().Add(48 * time.Hour).UTC()
	past := time.Now().Add(-48 * time.Hour).UTC()

	home := newRequestedBooking(f, future)
	require.NoError(t, db.CreateBooking(ctx, home))

	techBooking := newRequestedBooking(f, future.Add(time.Hour))
	techBooking.ServiceID = tech.ID
	require.NoError(t, db.CreateBooking(ctx, techBooking))

	careBooking := newRequestedBooking(f, future)
	careBooking.ServiceID = care.ID
	require.NoError(t, db.CreateBooking(ctx, careBooking))

	stale := newRequestedBooking(f, past)
	require.NoError(t, db.CreateBooking(ctx, stale))

	page := models.NewPage(1, 10, 0)

	mine, total, err := db.ListBookings(ctx, models.BookingFilter{CustomerID: &f.customer.ID}, page)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, mine, 4)
	for _, b := range mine {
		assert.NotEmpty(t, b.StatusHistory)
	}

	now := time.Now().UTC()
	available, total, err := db.ListBookings(ctx, models.BookingFilter{
		Status:     models.StatusRequested,
		FromTime:   &now,
		Categories: f.helper.HelperProfile.Services,
	}, page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, available, 2)
	assert.Equal(t, home.ID, available[0].ID, "ordered by schedule")
	assert.Equal(t, techBooking.ID, available[1].ID)

	paged, total, err := db.ListBookings(ctx, models.BookingFilter{}, models.NewPage(2, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, paged, 1)

	assigned, total, err := db.ListBookings(ctx, models.BookingFilter{HelperID: &f.helper.ID}, page)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, assigned)
}

func cancelAction(bookingID int64) *models.AdminAction {
	return &models.AdminAction{
		AdminID:       99,
		ActionType:    models.ActionBookingCancel,
		TargetType:    models.TargetBooking,
		TargetID:      bookingID,
		PreviousState: map[string]any{"status": "REQUESTED"},
		NewState:      map[string]any{"status": "CANCELLED"},
		Reason:        "duplicate",
	}
}

func TestUpdateBookingTransitionWritesAuditInSameTx(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	b := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
	require.NoError(t, db.CreateBooking(ctx, b))

	action := cancelAction(b.ID)
	cancelled := domain.ApplyTransition(b, models.StatusCancelled, 99, "duplicate")
	require.NoError(t, db.UpdateBookingTransition(ctx, cancelled, b.Status, b.Version, action))
	assert.NotZero(t, action.ID)

	targetID := b.ID
	rows, total, err := db.ListAdminActions(ctx, models.AuditFilter{TargetID: &targetID}, models.NewPage(1, 10, 0))
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "CANCELLED", rows[0].NewState["status"])
}

func TestUpdateBookingTransitionRollsBackOnAuditFailure(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	b := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
	require.NoError(t, db.CreateBooking(ctx, b))

	_, err := db.ExecContext(ctx, `ALTER TABLE admin_actions RENAME TO admin_actions_offline`)
	require.NoError(t, err)

	cancelled := domain.ApplyTransition(b, models.StatusCancelled, 99, "duplicate")
	err = db.UpdateBookingTransition(ctx, cancelled, b.Status, b.Version, cancelAction(b.ID))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConcurrentModification)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, got.Status)
	assert.Equal(t, b.Version, got.Version)
	assert.Len(t, got.StatusHistory, 1)

	_, err = db.ExecContext(ctx, `ALTER TABLE admin_actions_offline RENAME TO admin_actions`)
	require.NoError(t, err)
	require.NoError(t, db.UpdateBookingTransition(ctx, cancelled, b.Status, b.Version, cancelAction(b.ID)))
}

func TestUpdateBookingTransitionRejectsBrokenInvariants(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	b := newRequestedBooking(f, time.Now().Add(time.Hour).UTC())
	require.NoError(t, db.CreateBooking(ctx, b))

	unassigned := domain.ApplyTransition(b, models.StatusAccepted, f.helper.ID, "")
	require.Error(t, db.UpdateBookingTransition(ctx, unassigned, b.Status, b.Version, nil))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, got.Status)
}
