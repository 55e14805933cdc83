package realtime

import (
	"context"
	"testing"

	"helpr/internal/domain"
	"helpr/internal/models"
	"helpr/internal/notify"
	"helpr/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRoomAndPresence(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)

	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	joined := recv(t, cust)
	require.Equal(t, notify.EventBookingJoined, joined.Event)
	assert.Equal(t, models.StatusAccepted, decode[notify.JoinedPayload](t, joined).Status)

	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	assert.Equal(t, notify.EventBookingJoined, recv(t, help).Event)
	presence := recv(t, cust)
	require.Equal(t, notify.EventBookingUserJoined, presence.Event)
	assert.Equal(t, env.helper.ID, decode[notify.PresencePayload](t, presence).User.ID)

	// joining again confirms but announces nothing
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	assert.Equal(t, []string{notify.EventBookingJoined}, queued(help))
	assert.Empty(t, queued(cust))

	env.do(cust, EventGetUsers, map[string]any{"booking_id": b.ID})
	users := decode[notify.UsersPayload](t, recv(t, cust))
	require.Len(t, users.Users, 2)
	assert.Equal(t, env.customer.ID, users.Users[0].ID)
	assert.Equal(t, env.helper.ID, users.Users[1].ID)
}

func TestJoinDenied(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)

	out := env.connect(env.outsider)
	queued(out)
	env.do(out, EventJoin, map[string]any{"booking_id": b.ID})
	denied := recv(t, out)
	require.Equal(t, notify.EventError, denied.Event)
	errPayload := decode[notify.ErrorPayload](t, denied)
	assert.Equal(t, EventJoin, errPayload.Event)
	assert.Equal(t, "access denied", errPayload.Message)
	assert.Empty(t, queued(cust))
	assert.Len(t, env.hub.Members(b.ID), 1)

	env.do(out, EventJoin, map[string]any{"booking_id": 9999})
	assert.Equal(t, "Booking not found", decode[notify.ErrorPayload](t, recv(t, out)).Message)

	env.do(out, EventJoin, map[string]any{})
	assert.Equal(t, notify.EventError, recv(t, out).Event)
}

func TestTerminalRoomAdminOnly(t *testing.T) {
	env := newRoomEnv(t)
	ctx := context.Background()
	b := env.acceptedBooking(t)
	_, err := env.bookings.AdminCancel(ctx, env.admin, b.ID, "duplicate", models.Provenance{})
	require.NoError(t, err)

	cust := env.connect(env.customer)
	queued(cust)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	assert.Equal(t, "booking is closed", decode[notify.ErrorPayload](t, recv(t, cust)).Message)

	adm := env.connect(env.admin)
	env.do(adm, EventJoin, map[string]any{"booking_id": b.ID})
	joined := recv(t, adm)
	require.Equal(t, notify.EventBookingJoined, joined.Event)
	assert.Equal(t, models.StatusCancelled, decode[notify.JoinedPayload](t, joined).Status)
}

func TestMessageDeliveredToRoomAndPreviewToOtherParticipant(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)
	queued(help)

	env.do(help, EventSend, map[string]any{"booking_id": b.ID, "content": "On my way"})

	assert.Equal(t, []string{notify.EventMessageNew}, queued(help))
	custEvents := queued(cust)
	assert.ElementsMatch(t, []string{notify.EventMessageNew, notify.EventNotificationMessage}, custEvents)

	msgs, total, err := env.messages.History(context.Background(), env.customer, b.ID, models.NewPage(1, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "On my way", msgs[1].Content)
}

func TestSendRequiresRoomMembership(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	help := env.connect(env.helper)
	queued(help)

	env.do(help, EventSend, map[string]any{"booking_id": b.ID, "content": "hello"})
	assert.Equal(t, "join the booking room before sending messages", decode[notify.ErrorPayload](t, recv(t, help)).Message)

	adm := env.connect(env.admin)
	env.do(adm, EventJoin, map[string]any{"booking_id": b.ID})
	queued(adm)
	env.do(adm, EventSend, map[string]any{"booking_id": b.ID, "content": "hello"})
	assert.Equal(t, notify.EventError, recv(t, adm).Event)
	assert.Empty(t, queued(help))
}

func TestSendToClosedBookingRejected(t *testing.T) {
	env := newRoomEnv(t)
	ctx := context.Background()
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})

	for _, step := range []func() (*models.Booking, error){
		func() (*models.Booking, error) { return env.bookings.Start(ctx, env.helper, b.ID) },
		func() (*models.Booking, error) { return env.bookings.Complete(ctx, env.helper, b.ID) },
		func() (*models.Booking, error) { return env.bookings.Close(ctx, env.customer, b.ID) },
	} {
		_, err := step()
		require.NoError(t, err)
	}
	_, before, err := env.messages.History(ctx, env.customer, b.ID, models.NewPage(1, 50, 0))
	require.NoError(t, err)
	queued(cust)
	queued(help)

	env.do(help, EventSend, map[string]any{"booking_id": b.ID, "content": "one more thing"})
	rejected := recv(t, help)
	require.Equal(t, notify.EventError, rejected.Event)
	assert.Contains(t, decode[notify.ErrorPayload](t, rejected).Message, "CLOSED")
	assert.Empty(t, queued(cust))

	_, after, err := env.messages.History(ctx, env.customer, b.ID, models.NewPage(1, 50, 0))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLeaveIsIdempotent(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)

	env.do(help, EventLeave, map[string]any{"booking_id": b.ID})
	assert.Empty(t, queued(help))

	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)
	queued(help)

	env.do(help, EventLeave, map[string]any{"booking_id": b.ID})
	env.do(help, EventLeave, map[string]any{"booking_id": b.ID})
	assert.Equal(t, []string{notify.EventBookingUserLeft}, queued(cust))
	assert.Empty(t, queued(help))
	assert.False(t, env.hub.InRoom(help, b.ID))
}

func TestDisconnectCleansUpPresence(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)

	env.coord.Disconnect(help)
	left := recv(t, cust)
	require.Equal(t, notify.EventBookingUserLeft, left.Event)
	assert.Equal(t, env.helper.ID, decode[notify.PresencePayload](t, left).User.ID)

	members := env.hub.Members(b.ID)
	require.Len(t, members, 1)
	assert.Equal(t, env.customer.ID, members[0].ID)
	assert.Equal(t, 1, env.hub.Connections())

	select {
	case <-help.Done():
	default:
		t.Fatal("disconnected conn should be closed")
	}
	env.coord.Disconnect(help)
	assert.Empty(t, queued(cust))
}

func TestPresenceTracksLastConnectionOfUser(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	tab1 := env.connect(env.helper)
	tab2 := env.connect(env.helper)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)

	env.do(tab1, EventJoin, map[string]any{"booking_id": b.ID})
	assert.Equal(t, []string{notify.EventBookingUserJoined}, queued(cust))
	env.do(tab2, EventJoin, map[string]any{"booking_id": b.ID})
	assert.Equal(t, []string{notify.EventBookingJoined}, queued(tab2))
	assert.Empty(t, queued(cust))
	queued(tab1)

	env.do(tab2, EventLeave, map[string]any{"booking_id": b.ID})
	assert.Empty(t, queued(cust))
	assert.Len(t, env.hub.Members(b.ID), 2)

	env.coord.Disconnect(tab1)
	assert.Equal(t, []string{notify.EventBookingUserLeft}, queued(cust))
	assert.Len(t, env.hub.Members(b.ID), 1)
}

func TestTypingReachesOthersOnly(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)

	env.do(help, EventTyping, map[string]any{"booking_id": b.ID, "is_typing": true})
	assert.Equal(t, notify.EventError, recv(t, help).Event)

	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)
	queued(help)

	env.do(help, EventTyping, map[string]any{"booking_id": b.ID, "is_typing": true})
	typing := recv(t, cust)
	require.Equal(t, notify.EventBookingUserTyping, typing.Event)
	assert.True(t, decode[notify.TypingPayload](t, typing).IsTyping)
	assert.Empty(t, queued(help))
}

func TestReadReceiptsAndUnreadCount(t *testing.T) {
	env := newRoomEnv(t)
	ctx := context.Background()
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})

	msg, err := env.messages.Send(ctx, env.helper, b.ID, service.SendInput{Content: "Gate code is 1234"})
	require.NoError(t, err)
	queued(cust)
	queued(help)

	env.do(cust, EventUnreadCount, map[string]any{"booking_id": b.ID})
	count := recv(t, cust)
	require.Equal(t, notify.EventMessageUnreadCount, count.Event)
	assert.Equal(t, 2, decode[notify.UnreadCountPayload](t, count).Count)

	env.do(cust, EventRead, map[string]any{"booking_id": b.ID, "message_ids": []int64{msg.ID}})
	receipt := recv(t, help)
	require.Equal(t, notify.EventMessageReadReceipt, receipt.Event)
	assert.Equal(t, []int64{msg.ID}, decode[notify.ReadReceiptPayload](t, receipt).MessageIDs)
	assert.Empty(t, queued(cust))

	env.do(cust, EventRead, map[string]any{"booking_id": b.ID, "message_ids": []int64{msg.ID}})
	assert.Empty(t, queued(help))

	env.do(cust, EventRead, map[string]any{"booking_id": b.ID})
	assert.Equal(t, notify.EventError, recv(t, cust).Event)
}

func TestMalformedFramesStayLocal(t *testing.T) {
	env := newRoomEnv(t)
	b := env.acceptedBooking(t)
	cust := env.connect(env.customer)
	help := env.connect(env.helper)
	env.do(cust, EventJoin, map[string]any{"booking_id": b.ID})
	env.do(help, EventJoin, map[string]any{"booking_id": b.ID})
	queued(cust)
	queued(help)

	env.coord.Handle(context.Background(), help, []byte("not json"))
	assert.Equal(t, "malformed frame", decode[notify.ErrorPayload](t, recv(t, help)).Message)

	env.do(help, "booking:explode", map[string]any{})
	assert.Equal(t, "unknown event", decode[notify.ErrorPayload](t, recv(t, help)).Message)

	env.coord.Handle(context.Background(), help, []byte(`{"event":"message:send","data":"oops"}`))
	assert.Equal(t, "malformed payload", decode[notify.ErrorPayload](t, recv(t, help)).Message)

	assert.Empty(t, queued(cust))
}

type panicChat struct{}

func (panicChat) SendInRoom(context.Context, domain.Actor, int64, service.SendInput, bool) (*models.Message, error) {
	panic("boom")
}

func (panicChat) MarkRead(context.Context, domain.Actor, int64, []int64) ([]int64, error) {
	return nil, nil
}

func (panicChat) UnreadCount(context.Context, domain.Actor, int64) (int, error) {
	return 0, nil
}

func TestHandlerPanicIsContained(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	coord := NewCoordinator(hub, nil, nil, panicChat{}, &logger)
	c := NewConn(domain.Actor{ID: 1, Role: models.RoleCustomer}, 4)
	coord.Connect(c)

	assert.NotPanics(t, func() {
		coord.Handle(context.Background(), c, frame(EventSend, map[string]any{"booking_id": 1, "content": "x"}))
	})
	got := recv(t, c)
	require.Equal(t, notify.EventError, got.Event)
	assert.Equal(t, "internal error", decode[notify.ErrorPayload](t, got).Message)
}
