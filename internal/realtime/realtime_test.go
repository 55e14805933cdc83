package realtime

import (
	"context"
	"encoding/json"
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
	"helpr/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type roomEnv struct {
	db       *database.DB
	hub      *Hub
	coord    *Coordinator
	bookings *service.BookingService
	messages *service.MessageService

	customer domain.Actor
	helper   domain.Actor
	admin    domain.Actor
	outsider domain.Actor
	svc      *models.Service
}

func newRoomEnv(t *testing.T) *roomEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "rooms.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := NewHub(&logger)
	bus := events.NewEventBus(&logger)
	fanout := notify.NewFanout(hub, db, bus, &logger)
	messages := service.NewMessageService(db, db, repository.NewMemorySessionStore(), fanout, 0, 0, &logger)
	env := &roomEnv{
		db:       db,
		hub:      hub,
		coord:    NewCoordinator(hub, nil, db, messages, &logger),
		bookings: service.NewBookingService(db, db, db, fanout, audit.NewRecorder(db, bus, &logger), bus, &logger),
		messages: messages,
	}

	ctx := context.Background()
	mk := func(phone, name string, role models.Role, verified bool) domain.Actor {
		u := &models.User{Phone: phone, Name: name, Role: role, IsActive: true}
		if role == models.RoleHelper {
			u.HelperProfile = &models.HelperProfile{IsVerified: verified, Services: []models.ServiceCategory{models.CategoryHome}}
		}
		require.NoError(t, db.CreateUser(ctx, u))
		return domain.ActorFromUser(u)
	}
	env.customer = mk("+15550000101", "Cara", models.RoleCustomer, false)
	env.helper = mk("+15550000102", "Hal", models.RoleHelper, true)
	env.admin = mk("+15550000103", "Ada", models.RoleAdmin, false)
	env.outsider = mk("+15550000104", "Otto", models.RoleHelper, true)

	env.svc = &models.Service{Name: "House Cleaning", Category: models.CategoryHome, IsActive: true}
	require.NoError(t, db.CreateService(ctx, env.svc, nil))
	return env
}

func (e *roomEnv) acceptedBooking(t *testing.T) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := e.bookings.Create(ctx, e.customer, service.CreateBookingInput{
		ServiceID:   e.svc.ID,
		Description: "Clean the kitchen and bathroom",
		Address:     "4 Mill Lane",
		ScheduledAt: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	b, err = e.bookings.Accept(ctx, e.helper, b.ID)
	require.NoError(t, err)
	return b
}

func (e *roomEnv) connect(actor domain.Actor) *Conn {
	c := NewConn(actor, 32)
	e.coord.Connect(c)
	return c
}

func (e *roomEnv) do(c *Conn, event string, data any) {
	e.coord.Handle(context.Background(), c, frame(event, data))
}

func frame(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		panic(err)
	}
	return out
}

func recv(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case raw := <-c.Send():
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("no frame for conn %s", c.ID)
		return Envelope{}
	}
}

// queued drains every queued frame and returns their event names.
func queued(c *Conn) []string {
	var names []string
	for {
		select {
		case raw := <-c.Send():
			var env Envelope
			_ = json.Unmarshal(raw, &env)
			names = append(names, env.Event)
		default:
			return names
		}
	}
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
