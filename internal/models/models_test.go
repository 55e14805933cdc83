package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		limit     int
		def       int
		wantPage  int
		wantLimit int
	}{
		{"defaults", 0, 0, 0, 1, 20},
		{"audit default", 0, 0, DefaultAuditPageSize, 1, 50},
		{"clamped limit", 3, 500, 0, 3, 100},
		{"negative page", -2, 10, 0, 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage(tt.page, tt.limit, tt.def)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

func TestPageResult(t *testing.T) {
	p := NewPage(2, 20, 0)
	assert.Equal(t, 20, p.Offset())

	res := p.Result(41)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 41, res.Total)

	assert.Equal(t, 0, p.Result(0).Pages)
}

func TestBookingClone(t *testing.T) {
	helper := int64(7)
	now := time.Now()
	b := &Booking{
		ID:            1,
		HelperID:      &helper,
		CompletedAt:   &now,
		StatusHistory: []StatusChange{{Status: StatusRequested, ChangedBy: 1, ChangedAt: now}},
	}

	c := b.Clone()
	*c.HelperID = 9
	c.StatusHistory = append(c.StatusHistory, StatusChange{Status: StatusAccepted})
	c.StatusHistory[0].Reason = "changed"

	assert.Equal(t, int64(7), *b.HelperID)
	assert.Len(t, b.StatusHistory, 1)
	assert.Empty(t, b.StatusHistory[0].Reason)
}

func TestUserHelpers(t *testing.T) {
	u := &User{Role: RoleHelper, HelperProfile: &HelperProfile{IsVerified: true, Services: []ServiceCategory{CategoryTech}}}
	assert.True(t, u.IsVerifiedHelper())
	assert.True(t, u.Offers(CategoryTech))
	assert.False(t, u.Offers(CategoryHome))

	customer := &User{Role: RoleCustomer}
	assert.False(t, customer.IsVerifiedHelper())
	assert.False(t, customer.Offers(CategoryTech))
}

func TestMessageReadBy(t *testing.T) {
	sender := int64(1)
	m := &Message{SenderID: &sender, ReadBy: []ReadReceipt{{UserID: 2, ReadAt: time.Now()}}}
	assert.False(t, m.IsSystem())
	assert.True(t, m.ReadByUser(2))
	assert.False(t, m.ReadByUser(3))
	assert.True(t, (&Message{}).IsSystem())
}

func TestStatusAndRoleValid(t *testing.T) {
	assert.True(t, StatusDisputed.Valid())
	assert.False(t, BookingStatus("PENDING").Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("manager").Valid())
}
