package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"helpr/internal/audit"
	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/events"
	"helpr/internal/models"
	"helpr/internal/notify"
	"helpr/internal/repository"
	"helpr/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db       *database.DB
	bus      *events.EventBus
	rec      *testutil.RecordingBroadcaster
	sessions *repository.MemorySessionStore
	recorder *audit.Recorder
	fanout   *notify.Fanout
	bookings *BookingService
	messages *MessageService
	users    *UserService
	admin    *AdminService
	catalog  *CatalogService

	customer domain.Actor
	helper   domain.Actor
	admin1   domain.Actor
	service  *models.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "helpr.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		db:       db,
		bus:      events.NewEventBus(&logger),
		rec:      testutil.NewRecordingBroadcaster(),
		sessions: repository.NewMemorySessionStore(),
	}
	env.recorder = audit.NewRecorder(db, env.bus, &logger)
	env.fanout = notify.NewFanout(env.rec, db, env.bus, &logger)
	env.bookings = NewBookingService(db, db, db, env.fanout, env.recorder, env.bus, &logger)
	env.messages = NewMessageService(db, db, env.sessions, env.fanout, 0, 0, &logger)
	env.users = NewUserService(db, &logger)
	env.admin = NewAdminService(db, env.recorder, env.rec, &logger)
	env.catalog = NewCatalogService(db, env.recorder, &logger)

	ctx := context.Background()
	customer := &models.User{Phone: "+15550000001", Name: "Cara Customer", Role: models.RoleCustomer, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, customer))
	helper := &models.User{
		Phone: "+15550000002", Name: "Hal Helper", Role: models.RoleHelper, IsActive: true,
		HelperProfile: &models.HelperProfile{IsVerified: true, Services: []models.ServiceCategory{models.CategoryHome}},
	}
	require.NoError(t, db.CreateUser(ctx, helper))
	admin := &models.User{Phone: "+15550000009", Name: "Ada Admin", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, admin))
	svc := &models.Service{Name: "House Cleaning", Category: models.CategoryHome, IsActive: true}
	require.NoError(t, db.CreateService(ctx, svc, nil))

	env.customer = domain.ActorFromUser(customer)
	env.helper = domain.ActorFromUser(helper)
	env.admin1 = domain.ActorFromUser(admin)
	env.service = svc
	return env
}

func (e *testEnv) newHelper(t *testing.T, n int, verified bool) domain.Actor {
	t.Helper()
	u := &models.User{
		Phone: fmt.Sprintf("+1555300%04d", n), Name: fmt.Sprintf("Helper %d", n), Role: models.RoleHelper, IsActive: true,
		HelperProfile: &models.HelperProfile{IsVerified: verified, Services: []models.ServiceCategory{models.CategoryHome}},
	}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return domain.ActorFromUser(u)
}

func (e *testEnv) createBooking(t *testing.T) *models.Booking {
	t.Helper()
	b, err := e.bookings.Create(context.Background(), e.customer, CreateBookingInput{
		ServiceID:   e.service.ID,
		Description: "Deep clean of a two bedroom flat",
		Address:     "12 Harbour Street",
		ScheduledAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) acceptedBooking(t *testing.T) *models.Booking {
	t.Helper()
	b := e.createBooking(t)
	b, err := e.bookings.Accept(context.Background(), e.helper, b.ID)
	require.NoError(t, err)
	return b
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) Prepare(e audit.Entry) (*models.AdminAction, error) {
	args := m.Called(e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminAction), args.Error(1)
}

func (m *mockAuditor) Committed(action *models.AdminAction) {
	m.Called(action)
}

// takeAuditOffline renames the audit table so every audit insert fails until
// the returned func restores it.
func (e *testEnv) takeAuditOffline(t *testing.T) func() {
	t.Helper()
	_, err := e.db.Exec(`ALTER TABLE admin_actions RENAME TO admin_actions_offline`)
	require.NoError(t, err)
	return func() {
		_, err := e.db.Exec(`ALTER TABLE admin_actions_offline RENAME TO admin_actions`)
		require.NoError(t, err)
	}
}
