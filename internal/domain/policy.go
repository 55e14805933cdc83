package domain

import "helpr/internal/models"

// Actor is a verified identity at the core boundary, resolved through the user directory.
type Actor struct {
	ID       int64
	Role     models.Role
	Name     string
	Verified bool
	Active   bool
}

func ActorFromUser(u *models.User) Actor {
	return Actor{
		ID:       u.ID,
		Role:     u.Role,
		Name:     u.Name,
		Verified: u.IsVerifiedHelper(),
		Active:   u.IsActive,
	}
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// IsParticipant reports whether userID is the customer or the assigned helper.
func IsParticipant(b *models.Booking, userID int64) bool {
	if b.CustomerID == userID {
		return true
	}
	return b.HelperID != nil && *b.HelperID == userID
}

func CanView(b *models.Booking, userID int64, role models.Role) bool {
	return role == models.RoleAdmin || IsParticipant(b, userID)
}

// OtherParticipant returns the participant on the other side of userID, if any.
func OtherParticipant(b *models.Booking, userID int64) (int64, bool) {
	if b.CustomerID == userID {
		if b.HelperID == nil {
			return 0, false
		}
		return *b.HelperID, true
	}
	if b.HelperID != nil && *b.HelperID == userID {
		return b.CustomerID, true
	}
	return 0, false
}

func AuthorizeView(b *models.Booking, a Actor) error {
	if !CanView(b, a.ID, a.Role) {
		return Forbidden("not authorized to view this booking")
	}
	return nil
}

func AuthorizeAccept(b *models.Booking, a Actor) error {
	if a.Role != models.RoleHelper {
		return Forbidden("only helpers can accept bookings")
	}
	if !a.Verified {
		return Forbidden("helper must be verified to accept bookings")
	}
	if b.HasHelper() || !CanTransition(b, models.StatusAccepted, a.Role) {
		return &TransitionError{Action: "accept", From: b.Status, To: models.StatusAccepted}
	}
	return nil
}

func authorizeAssignedHelper(b *models.Booking, a Actor, action string, to models.BookingStatus) error {
	if b.HelperID == nil || *b.HelperID != a.ID {
		return Forbidden("only the assigned helper can " + action + " this booking")
	}
	if !CanTransition(b, to, a.Role) {
		return &TransitionError{Action: action, From: b.Status, To: to}
	}
	return nil
}

func AuthorizeStart(b *models.Booking, a Actor) error {
	return authorizeAssignedHelper(b, a, "start", models.StatusInProgress)
}

func AuthorizeComplete(b *models.Booking, a Actor) error {
	return authorizeAssignedHelper(b, a, "complete", models.StatusCompleted)
}

func AuthorizeClose(b *models.Booking, a Actor) error {
	if b.CustomerID != a.ID {
		return Forbidden("only the customer can close this booking")
	}
	if !CanTransition(b, models.StatusClosed, a.Role) {
		return &TransitionError{Action: "close", From: b.Status, To: models.StatusClosed}
	}
	return nil
}

// AuthorizeAdminTransition guards cancel, dispute and force-close.
func AuthorizeAdminTransition(b *models.Booking, a Actor, action string, to models.BookingStatus) error {
	if !a.IsAdmin() {
		return Forbidden("admin access required")
	}
	if !CanTransition(b, to, a.Role) {
		return &TransitionError{Action: action, From: b.Status, To: to}
	}
	return nil
}

// IsRatable reports whether a booking's status admits a customer rating.
func IsRatable(s models.BookingStatus) bool {
	return s == models.StatusCompleted || s == models.StatusClosed
}

func AuthorizeRate(b *models.Booking, a Actor) error {
	if b.CustomerID != a.ID {
		return Forbidden("only the customer can rate this booking")
	}
	if !IsRatable(b.Status) {
		return &TransitionError{Action: "rate", From: b.Status}
	}
	if b.CustomerRating != nil {
		return Conflict("booking has already been rated")
	}
	return nil
}

// CanJoinRoom allows viewers into non-terminal rooms and admins into any room.
func CanJoinRoom(b *models.Booking, a Actor) bool {
	if !CanView(b, a.ID, a.Role) {
		return false
	}
	return !IsTerminal(b.Status) || a.IsAdmin()
}

// AuthorizeSend checks that a room member may post into the booking chat.
func AuthorizeSend(b *models.Booking, a Actor, inRoom bool) error {
	if !inRoom {
		return Forbidden("join the booking room before sending messages")
	}
	return AuthorizeParticipantSend(b, a)
}

// AuthorizeParticipantSend is the membership-free half of AuthorizeSend, used by
// the request/response fallback path.
func AuthorizeParticipantSend(b *models.Booking, a Actor) error {
	if !IsParticipant(b, a.ID) {
		return Forbidden("only booking participants can send messages")
	}
	if IsTerminal(b.Status) {
		return &TransitionError{Action: "send messages to", From: b.Status}
	}
	return nil
}
