package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"helpr/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "helpr.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	customer *models.User
	helper   *models.User
	service  *models.Service
}

func seedFixture(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()

	customer := &models.User{Phone: "+15550000001", Name: "Cara Customer", Role: models.RoleCustomer, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, customer))

	helper := &models.User{
		Phone:    "+15550000002",
		Name:     "Hal Helper",
		Role:     models.RoleHelper,
		IsActive: true,
		HelperProfile: &models.HelperProfile{
			IsVerified: true,
			Services:   []models.ServiceCategory{models.CategoryHome, models.CategoryTech},
		},
	}
	require.NoError(t, db.CreateUser(ctx, helper))

	svc := &models.Service{Name: "House Cleaning", Category: models.CategoryHome, IsActive: true}
	require.NoError(t, db.CreateService(ctx, svc, nil))

	return fixture{customer: customer, helper: helper, service: svc}
}

func newRequestedBooking(f fixture, scheduled time.Time) *models.Booking {
	now := time.Now().UTC()
	return &models.Booking{
		CustomerID:        f.customer.ID,
		ServiceID:         f.service.ID,
		Description:       "Deep clean of a two bedroom flat",
		Location:          models.Location{Address: "12 Harbour Street"},
		ScheduledAt:       scheduled,
		EstimatedDuration: 90,
		Status:            models.StatusRequested,
		StatusHistory: []models.StatusChange{
			{Status: models.StatusRequested, ChangedBy: f.customer.ID, ChangedAt: now},
		},
		CreatedAt: now,
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_InMemory(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	f := seedFixture(t, db)
	got, err := db.GetUserByID(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cara Customer", got.Name)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "closed.db"), &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	page := models.NewPage(1, 10, 0)

	_, err = db.GetBooking(ctx, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.Error(t, db.CreateBooking(ctx, &models.Booking{}))
	_, _, err = db.ListBookings(ctx, models.BookingFilter{}, page)
	assert.Error(t, err)
	assert.Error(t, db.CreateMessage(ctx, &models.Message{}))
	_, err = db.CountUnread(ctx, 1, 1)
	assert.Error(t, err)
	assert.Error(t, insertAdminAction(ctx, db, &models.AdminAction{}))
}
