package models

import "time"

type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// StatusChange is one entry of a booking's append-only history.
type StatusChange struct {
	Status    BookingStatus `json:"status"`
	ChangedBy int64         `json:"changed_by"`
	ChangedAt time.Time     `json:"changed_at"`
	Reason    string        `json:"reason,omitempty"`
}

type Booking struct {
	ID                int64          `json:"id"`
	CustomerID        int64          `json:"customer_id"`
	HelperID          *int64         `json:"helper_id,omitempty"`
	ServiceID         int64          `json:"service_id"`
	Description       string         `json:"description"`
	Location          Location       `json:"location"`
	ScheduledAt       time.Time      `json:"scheduled_at"`
	EstimatedDuration int            `json:"estimated_duration"`
	Status            BookingStatus  `json:"status"`
	StatusHistory     []StatusChange `json:"status_history"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CustomerRating    *int           `json:"customer_rating,omitempty"`
	CustomerReview    string         `json:"customer_review,omitempty"`
	AdminNotes        string         `json:"admin_notes,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Version           int64          `json:"version"`
}

func (b *Booking) HasHelper() bool {
	return b.HelperID != nil
}

// Clone returns a deep copy so callers can mutate without aliasing history or pointers.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.StatusHistory = append([]StatusChange(nil), b.StatusHistory...)
	if b.HelperID != nil {
		id := *b.HelperID
		c.HelperID = &id
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	if b.CustomerRating != nil {
		r := *b.CustomerRating
		c.CustomerRating = &r
	}
	if b.Location.Lat != nil {
		lat := *b.Location.Lat
		c.Location.Lat = &lat
	}
	if b.Location.Lng != nil {
		lng := *b.Location.Lng
		c.Location.Lng = &lng
	}
	return &c
}

// Snapshot is the audited subset of a booking.
func (b *Booking) Snapshot() map[string]any {
	snap := map[string]any{"status": b.Status}
	if b.HelperID != nil {
		snap["helper_id"] = *b.HelperID
	}
	if b.AdminNotes != "" {
		snap["admin_notes"] = b.AdminNotes
	}
	return snap
}

type BookingFilter struct {
	CustomerID *int64
	HelperID   *int64
	Status     BookingStatus
	Categories []ServiceCategory
	FromTime   *time.Time
}
