package domain

import (
	"fmt"
	"time"

	"helpr/internal/models"
)

// Transition is one edge of the booking lifecycle. RequiredRole is empty when
// any role may take the edge, leaving participant checks to the access policy.
type Transition struct {
	To           models.BookingStatus
	RequiredRole models.Role
}

func participant(to models.BookingStatus) Transition {
	return Transition{To: to}
}

func adminOnly(to models.BookingStatus) Transition {
	return Transition{To: to, RequiredRole: models.RoleAdmin}
}

var transitions = map[models.BookingStatus][]Transition{
	models.StatusRequested: {
		participant(models.StatusAccepted),
		adminOnly(models.StatusCancelled),
	},
	models.StatusAccepted: {
		participant(models.StatusInProgress),
		adminOnly(models.StatusCancelled),
		adminOnly(models.StatusDisputed),
	},
	models.StatusInProgress: {
		participant(models.StatusCompleted),
		adminOnly(models.StatusDisputed),
	},
	models.StatusCompleted: {
		participant(models.StatusClosed),
		adminOnly(models.StatusDisputed),
	},
	models.StatusDisputed: {
		adminOnly(models.StatusForceClosed),
	},
}

// Transitions returns the outgoing edges of a status. Terminal statuses have none.
func Transitions(from models.BookingStatus) []Transition {
	return append([]Transition(nil), transitions[from]...)
}

func lookup(from, to models.BookingStatus) (Transition, bool) {
	for _, t := range transitions[from] {
		if t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(s models.BookingStatus) bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether role may move the booking to the target status.
func CanTransition(b *models.Booking, to models.BookingStatus, role models.Role) bool {
	if b == nil {
		return false
	}
	t, ok := lookup(b.Status, to)
	if !ok {
		return false
	}
	return t.RequiredRole == "" || t.RequiredRole == role
}

// ApplyTransition returns a copy of b moved to the target status with one history
// entry appended. Callers must check CanTransition first; an edge missing from
// the table panics.
func ApplyTransition(b *models.Booking, to models.BookingStatus, actorID int64, reason string) *models.Booking {
	return ApplyTransitionAt(b, to, actorID, reason, time.Now().UTC())
}

func ApplyTransitionAt(b *models.Booking, to models.BookingStatus, actorID int64, reason string, at time.Time) *models.Booking {
	if _, ok := lookup(b.Status, to); !ok {
		panic(fmt.Sprintf("domain: illegal booking transition %s -> %s", b.Status, to))
	}

	// history must stay monotonic even if the wall clock steps back
	if n := len(b.StatusHistory); n > 0 && at.Before(b.StatusHistory[n-1].ChangedAt) {
		at = b.StatusHistory[n-1].ChangedAt
	}

	next := b.Clone()
	next.Status = to
	next.StatusHistory = append(next.StatusHistory, models.StatusChange{
		Status:    to,
		ChangedBy: actorID,
		ChangedAt: at,
		Reason:    reason,
	})
	next.UpdatedAt = at
	if to == models.StatusCompleted {
		completed := at
		next.CompletedAt = &completed
	}
	return next
}

// NewBooking seeds a booking in REQUESTED with its initial history entry.
func NewBooking(b *models.Booking, at time.Time) *models.Booking {
	next := b.Clone()
	next.Status = models.StatusRequested
	next.HelperID = nil
	next.StatusHistory = []models.StatusChange{{
		Status:    models.StatusRequested,
		ChangedBy: b.CustomerID,
		ChangedAt: at,
	}}
	next.CreatedAt = at
	next.UpdatedAt = at
	return next
}

// CheckBooking verifies the lifecycle invariants a booking must satisfy
// before it is persisted: its history is a legal path ending at the current
// status, and every post-acceptance status carries a helper.
func CheckBooking(b *models.Booking) error {
	if !validHistory(b.StatusHistory, b.Status) {
		return fmt.Errorf("status history does not lead to %s", b.Status)
	}
	if requiresHelper(b.Status) && b.HelperID == nil {
		return fmt.Errorf("status %s requires an assigned helper", b.Status)
	}
	return nil
}

func validHistory(history []models.StatusChange, current models.BookingStatus) bool {
	if len(history) == 0 || history[0].Status != models.StatusRequested {
		return false
	}
	for i := 1; i < len(history); i++ {
		if _, ok := lookup(history[i-1].Status, history[i].Status); !ok {
			return false
		}
		if history[i].ChangedAt.Before(history[i-1].ChangedAt) {
			return false
		}
	}
	return history[len(history)-1].Status == current
}

// requiresHelper reports whether a status is only reachable through acceptance.
func requiresHelper(s models.BookingStatus) bool {
	switch s {
	case models.StatusAccepted, models.StatusInProgress, models.StatusCompleted,
		models.StatusClosed, models.StatusDisputed, models.StatusForceClosed:
		return true
	}
	return false
}
