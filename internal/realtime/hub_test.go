package realtime

import (
	"testing"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	logger := zerolog.Nop()
	return NewHub(&logger)
}

func TestHubScopes(t *testing.T) {
	hub := newTestHub()
	cust := NewConn(domain.Actor{ID: 1, Role: models.RoleCustomer}, 8)
	helperA := NewConn(domain.Actor{ID: 2, Role: models.RoleHelper}, 8)
	helperB := NewConn(domain.Actor{ID: 3, Role: models.RoleHelper}, 8)
	custSecond := NewConn(domain.Actor{ID: 1, Role: models.RoleCustomer}, 8)
	for _, c := range []*Conn{cust, helperA, helperB, custSecond} {
		hub.Register(c)
	}
	require.True(t, hub.Join(cust, 10))
	require.True(t, hub.Join(helperA, 10))

	hub.ToRoom(10).Emit("room", nil)
	assert.Equal(t, []string{"room"}, queued(cust))
	assert.Equal(t, []string{"room"}, queued(helperA))
	assert.Empty(t, queued(helperB))
	assert.Empty(t, queued(custSecond))

	hub.ToRoomExcept(10, 1).Emit("except", nil)
	assert.Empty(t, queued(cust))
	assert.Equal(t, []string{"except"}, queued(helperA))

	hub.ToUser(1).Emit("personal", nil)
	assert.Equal(t, []string{"personal"}, queued(cust))
	assert.Equal(t, []string{"personal"}, queued(custSecond))

	hub.ToRole(models.RoleHelper).Emit("helpers", nil)
	assert.Equal(t, []string{"helpers"}, queued(helperA))
	assert.Equal(t, []string{"helpers"}, queued(helperB))
	assert.Empty(t, queued(cust))

	hub.ToRoom(99).Emit("empty", nil)
	assert.Empty(t, hub.Members(99))
}

func TestHubJoinLeaveUnregister(t *testing.T) {
	hub := newTestHub()
	c := NewConn(domain.Actor{ID: 5, Name: "Hal", Role: models.RoleHelper}, 8)

	assert.False(t, hub.Join(c, 1), "unregistered conns cannot join")
	hub.Register(c)
	assert.True(t, hub.Join(c, 1))
	assert.False(t, hub.Join(c, 1))
	assert.True(t, hub.Join(c, 2))
	assert.True(t, hub.InRoom(c, 2))

	assert.True(t, hub.Leave(c, 2))
	assert.False(t, hub.Leave(c, 2))
	assert.False(t, hub.Leave(c, 3))

	members := hub.Members(1)
	require.Len(t, members, 1)
	assert.Equal(t, "Hal", members[0].Name)

	assert.Equal(t, []int64{1}, hub.Unregister(c))
	assert.Nil(t, hub.Unregister(c))
	assert.Empty(t, hub.Members(1))
	assert.Zero(t, hub.Connections())
}

func TestHubPresenceCountsUsersNotConnections(t *testing.T) {
	hub := newTestHub()
	tab1 := NewConn(domain.Actor{ID: 5, Name: "Hal", Role: models.RoleHelper}, 8)
	tab2 := NewConn(domain.Actor{ID: 5, Name: "Hal", Role: models.RoleHelper}, 8)
	hub.Register(tab1)
	hub.Register(tab2)

	assert.True(t, hub.Join(tab1, 1))
	assert.False(t, hub.Join(tab2, 1), "second tab of a present user")

	assert.False(t, hub.Leave(tab1, 1), "user still present through tab2")
	assert.Len(t, hub.Members(1), 1)

	assert.Equal(t, []int64{1}, hub.Unregister(tab2))
	assert.Empty(t, hub.Members(1))
}

func TestHubDisconnectUser(t *testing.T) {
	hub := newTestHub()
	tab1 := NewConn(domain.Actor{ID: 5, Role: models.RoleHelper}, 8)
	tab2 := NewConn(domain.Actor{ID: 5, Role: models.RoleHelper}, 8)
	other := NewConn(domain.Actor{ID: 6, Role: models.RoleCustomer}, 8)
	for _, c := range []*Conn{tab1, tab2, other} {
		hub.Register(c)
	}

	hub.DisconnectUser(5)
	assertClosed(t, tab1)
	assertClosed(t, tab2)
	select {
	case <-other.Done():
		t.Fatal("other users stay connected")
	default:
	}
	hub.DisconnectUser(404)
}

func assertClosed(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	default:
		t.Fatalf("conn %s should be closed", c.ID)
	}
}

func TestHubDropsSlowConnection(t *testing.T) {
	hub := newTestHub()
	slow := NewConn(domain.Actor{ID: 1, Role: models.RoleCustomer}, 1)
	fast := NewConn(domain.Actor{ID: 2, Role: models.RoleHelper}, 8)
	hub.Register(slow)
	hub.Register(fast)
	hub.Join(slow, 7)
	hub.Join(fast, 7)

	hub.ToRoom(7).Emit("one", nil)
	hub.ToRoom(7).Emit("two", nil)

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection should have been dropped")
	}
	assert.Equal(t, []string{"one", "two"}, queued(fast))

	// a dropped connection receives nothing further
	hub.ToRoom(7).Emit("three", nil)
	assert.Equal(t, []string{"one"}, queued(slow))
}

func TestEncode(t *testing.T) {
	raw, err := Encode("booking:joined", map[string]any{"booking_id": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"booking:joined","data":{"booking_id":3}}`, string(raw))

	_, err = Encode("bad", make(chan int))
	assert.Error(t, err)
}
