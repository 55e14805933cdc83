package models

// BookingStatus is a position in the booking lifecycle.
type BookingStatus string

const (
	StatusRequested   BookingStatus = "REQUESTED"
	StatusAccepted    BookingStatus = "ACCEPTED"
	StatusInProgress  BookingStatus = "IN_PROGRESS"
	StatusCompleted   BookingStatus = "COMPLETED"
	StatusClosed      BookingStatus = "CLOSED"
	StatusCancelled   BookingStatus = "CANCELLED"
	StatusDisputed    BookingStatus = "DISPUTED"
	StatusForceClosed BookingStatus = "FORCE_CLOSED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []BookingStatus{
	StatusRequested,
	StatusAccepted,
	StatusInProgress,
	StatusCompleted,
	StatusClosed,
	StatusCancelled,
	StatusDisputed,
	StatusForceClosed,
}

func (s BookingStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleHelper   Role = "helper"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleHelper || r == RoleAdmin
}

type ServiceCategory string

const (
	CategoryHome    ServiceCategory = "home"
	CategoryErrands ServiceCategory = "errands"
	CategoryTech    ServiceCategory = "tech"
	CategoryCare    ServiceCategory = "care"
	CategoryOther   ServiceCategory = "other"
)

var ServiceCategories = []ServiceCategory{CategoryHome, CategoryErrands, CategoryTech, CategoryCare, CategoryOther}

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

type ActionType string

const (
	ActionUserDeactivate    ActionType = "USER_DEACTIVATE"
	ActionUserActivate      ActionType = "USER_ACTIVATE"
	ActionHelperVerify      ActionType = "HELPER_VERIFY"
	ActionHelperUnverify    ActionType = "HELPER_UNVERIFY"
	ActionBookingCancel     ActionType = "BOOKING_CANCEL"
	ActionBookingDispute    ActionType = "BOOKING_DISPUTE"
	ActionBookingForceClose ActionType = "BOOKING_FORCE_CLOSE"
	ActionServiceCreate     ActionType = "SERVICE_CREATE"
	ActionServiceUpdate     ActionType = "SERVICE_UPDATE"
	ActionServiceDeactivate ActionType = "SERVICE_DEACTIVATE"
)

type TargetType string

const (
	TargetUser    TargetType = "User"
	TargetBooking TargetType = "Booking"
	TargetService TargetType = "Service"
)

const (
	DefaultPage            = 1
	DefaultPageSize        = 20
	DefaultAuditPageSize   = 50
	DefaultMessagePageSize = 50
	MaxPageSize            = 100

	DefaultEstimatedDuration = 60
	MinEstimatedDuration     = 15
	MaxEstimatedDuration     = 480

	MinDescriptionLength = 10
	MaxDescriptionLength = 2000
	MinAddressLength     = 5
	MaxMessageLength     = 2000
	MaxReviewLength      = 500
	MaxReasonLength      = 1000
	MaxBioLength         = 500
	MaxNameLength        = 100

	MinRating = 1
	MaxRating = 5

	// PreviewLength is the number of runes of a message carried in a notification preview.
	PreviewLength = 100

	// RateLimitMessages bounds chat messages per user per RateLimitWindow seconds.
	RateLimitMessages = 20
	RateLimitWindow   = 60
)
